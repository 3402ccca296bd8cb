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
package pbreporter

import (
	"io"

	"github.com/vbauerster/mpb/v8"
)

// ExportProgressReporter tracks exported rows. The total may be unknown (0)
// or an estimate; it is pinned to the exported count on completion.
type ExportProgressReporter interface {
	SetTotalRowCount(totalRowCount int64, triggerComplete bool)
	SetExportedRowCount(exportedRowCount int64)
	IsComplete() bool
}

func NewExportPB(progressContainer *mpb.Progress, tableName string, disablePb bool) ExportProgressReporter {
	if disablePb || progressContainer == nil {
		return newDisablePBReporter()
	}
	return newEnablePBReporter(progressContainer, tableName)
}

// NewProgressContainer draws bars on out, which must not be the data output.
func NewProgressContainer(out io.Writer) *mpb.Progress {
	return mpb.New(mpb.WithOutput(out), mpb.WithAutoRefresh())
}
