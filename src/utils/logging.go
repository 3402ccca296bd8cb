/*
Copyright (c) The DynamoDBtoCSV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

var (
	// ErrExitErr holds the last error passed to ErrExit (unchanged).
	ErrExitErr error

	// Tests swap this out to observe ErrExit without exiting.
	exitHook = atexit.Exit

	// Stdout may carry exported CSV data, so operator-facing messages go to
	// the diagnostic stream instead.
	diagOut io.Writer = os.Stderr
)

// SetExitHook replaces the function ErrExit terminates with; nil restores
// atexit.Exit so registered handlers still run.
func SetExitHook(h func(code int)) {
	if h == nil {
		exitHook = atexit.Exit
	} else {
		exitHook = h
	}
}

// SetDiagnosticOutput redirects PrintAndLog and ErrExit output. Pass nil to
// restore os.Stderr.
func SetDiagnosticOutput(w io.Writer) {
	if w == nil {
		diagOut = os.Stderr
	} else {
		diagOut = w
	}
}

func DiagnosticOutput() io.Writer {
	return diagOut
}

// ErrExit reports the error on the diagnostic stream and in the log, then exits 1.
func ErrExit(format string, args ...interface{}) {
	ErrExitErr = fmt.Errorf(format, args...)

	format = strings.Replace(format, "%w", "%s", -1)
	fmt.Fprintf(diagOut, format+"\n", args...)
	log.Errorf(format+"\n", args...)

	exitHook(1)
}

func PrintAndLog(formatString string, args ...interface{}) {
	log.Infof(formatString, args...)
	if !strings.HasSuffix(formatString, "\n") {
		formatString = formatString + "\n"
	}
	fmt.Fprintf(diagOut, formatString, args...)
}
