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
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"
	log "github.com/sirupsen/logrus"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
)

// ExhaustedSentinel is reported instead of a cursor after the final flush.
const ExhaustedSentinel = "File Written"

// Sink appends rendered chunks to the data destination and reports the
// resumption cursor on the diagnostic stream.
type Sink struct {
	out  io.Writer
	diag io.Writer

	file     *os.File
	lock     lockfile.Lockfile
	locked   bool
	filePath string

	bytesWritten int64
	lastReported string
}

// NewSink writes data to out and diagnostics to diag.
func NewSink(out io.Writer, diag io.Writer) *Sink {
	return &Sink{out: out, diag: diag}
}

// OpenFileSink opens path in append mode for the whole run. A lock file next
// to it keeps a second run from appending to the same file concurrently.
func OpenFileSink(path string, diag io.Writer) (*Sink, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("get absolute path for %q: %w", path, err)
	}
	lock, err := lockfile.New(absPath + ".lck")
	if err != nil {
		return nil, fmt.Errorf("create lockfile for %q: %w", absPath, err)
	}
	err = lock.TryLock()
	if err == lockfile.ErrBusy {
		return nil, fmt.Errorf("another export is writing to %s", absPath)
	} else if err != nil {
		return nil, fmt.Errorf("lock %q: %w", absPath, err)
	}

	file, err := os.OpenFile(absPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open output file %q: %w", absPath, err)
	}
	log.Infof("writing CSV output to %q", absPath)
	return &Sink{
		out:      file,
		diag:     diag,
		file:     file,
		lock:     lock,
		locked:   true,
		filePath: absPath,
	}, nil
}

// FilePath is empty when the sink writes to a stream.
func (s *Sink) FilePath() string {
	return s.filePath
}

// Flush writes one chunk and then reports the cursor the run would resume
// from. Diagnostic text is written before the cursor so the cursor is always
// the last thing the operator sees for a chunk.
func (s *Sink) Flush(chunk Chunk, cursor ddb.Cursor) error {
	if chunk.Diagnostic != "" {
		s.Diagnostic(chunk.Diagnostic)
	}
	if err := s.Write(chunk.Data); err != nil {
		return err
	}
	s.ReportCursor(cursor)
	return nil
}

// Write appends text to the data destination.
func (s *Sink) Write(text string) error {
	if text == "" {
		return nil
	}
	n, err := io.WriteString(s.out, text)
	s.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (s *Sink) BytesWritten() int64 {
	return s.bytesWritten
}

// Diagnostic writes text to the diagnostic stream. Failures there are only
// logged; they never abort a run.
func (s *Sink) Diagnostic(text string) {
	if _, err := io.WriteString(s.diag, text); err != nil {
		log.Warnf("write diagnostic output: %v", err)
	}
}

// ReportCursor tells the operator where a restarted run should resume. A nil
// cursor means the result set was exhausted.
func (s *Sink) ReportCursor(cursor ddb.Cursor) {
	value := ExhaustedSentinel
	if cursor != nil {
		value = ddb.FormatCursor(cursor)
	}
	s.lastReported = value
	log.Infof("last key: %s", value)
	s.Diagnostic("last key:\n" + value + "\n")
}

// LastReported is the most recent value passed through ReportCursor.
func (s *Sink) LastReported() string {
	return s.lastReported
}

func (s *Sink) Close() error {
	var err error
	if s.file != nil {
		if syncErr := s.file.Sync(); syncErr != nil {
			err = fmt.Errorf("sync %q: %w", s.filePath, syncErr)
		}
		if closeErr := s.file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %q: %w", s.filePath, closeErr)
		}
		s.file = nil
	}
	if s.locked {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("unlock %q: %w", s.filePath, unlockErr)
		}
		s.locked = false
	}
	return err
}
