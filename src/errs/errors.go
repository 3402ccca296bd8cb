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

package errs

import (
	"fmt"
)

const (
	// pipeline stages
	FETCH_STAGE   = "fetch"
	CONSUME_STAGE = "consume"
	RENDER_STAGE  = "render"
	WRITE_STAGE   = "write"
	UPLOAD_STAGE  = "upload"
)

// ExportError records which stage of the export pipeline failed and the last
// cursor that was reported to the operator before the failure.
type ExportError struct {
	stage      string
	page       int
	lastCursor string
	err        error
}

func (e *ExportError) Error() string {
	if e.lastCursor != "" {
		return fmt.Sprintf("export failed at stage '%s' on page %d (resume from %s): %s",
			e.stage, e.page, e.lastCursor, e.err.Error())
	}
	return fmt.Sprintf("export failed at stage '%s' on page %d: %s", e.stage, e.page, e.err.Error())
}

func (e *ExportError) Stage() string {
	return e.stage
}

func (e *ExportError) Page() int {
	return e.page
}

func (e *ExportError) LastCursor() string {
	return e.lastCursor
}

func (e *ExportError) Unwrap() error {
	return e.err
}

func NewExportError(stage string, page int, lastCursor string, err error) *ExportError {
	return &ExportError{
		stage:      stage,
		page:       page,
		lastCursor: lastCursor,
		err:        err,
	}
}

type InvalidConfigErr struct {
	flag   string
	reason string
}

func (e *InvalidConfigErr) Error() string {
	return fmt.Sprintf("invalid value for --%s: %s", e.flag, e.reason)
}

func (e *InvalidConfigErr) Flag() string {
	return e.flag
}

func NewInvalidConfigErr(flag string, reason string) *InvalidConfigErr {
	return &InvalidConfigErr{flag: flag, reason: reason}
}
