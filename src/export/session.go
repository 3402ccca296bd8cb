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
	"github.com/edasque/DynamoDBtoCSV/src/tabular"
)

type RunCounters struct {
	RowsSeenSinceFlush int64
	TotalRowsWritten   int64
}

// ExportSession owns the mutable state of one export run. It is driven by a
// single goroutine.
type ExportSession struct {
	Headers  *tabular.HeaderSet
	Pending  []tabular.FlatRecord
	Counters RunCounters

	// Number of columns on the header line already written, -1 if none.
	writtenHeaderLen int
	// Number of HeaderSet names already warned about as missing from the
	// written header.
	reportedHeaderLen int
}

func NewExportSession(headers *tabular.HeaderSet) *ExportSession {
	if headers == nil {
		headers = tabular.NewHeaderSet()
	}
	return &ExportSession{
		Headers:           headers,
		writtenHeaderLen:  -1,
		reportedHeaderLen: -1,
	}
}

// IncludeHeader reports whether the next render must carry the header line.
func (s *ExportSession) IncludeHeader() bool {
	return s.Counters.TotalRowsWritten == 0 && s.writtenHeaderLen < 0
}

// MarkHeaderWritten records that a header with n columns is already present
// at the destination, e.g. when appending to an existing file.
func (s *ExportSession) MarkHeaderWritten(n int) {
	s.writtenHeaderLen = n
	s.reportedHeaderLen = n
}

// LateColumns returns columns discovered after the header line was written
// that have not been returned before.
func (s *ExportSession) LateColumns() []string {
	if s.writtenHeaderLen < 0 || s.reportedHeaderLen >= s.Headers.Len() {
		return nil
	}
	late := s.Headers.Since(s.reportedHeaderLen)
	s.reportedHeaderLen = s.Headers.Len()
	return late
}

func (s *ExportSession) completeFlush() {
	s.Counters.TotalRowsWritten += s.Counters.RowsSeenSinceFlush
	s.Counters.RowsSeenSinceFlush = 0
	s.Pending = nil
}
