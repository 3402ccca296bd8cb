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
package tabular

import (
	"fmt"
	"strings"

	"github.com/edasque/DynamoDBtoCSV/src/utils/csv"
)

// Serializer renders flat records as fully quoted delimited text.
type Serializer struct {
	Delimiter      byte
	LineTerminator string
	Newlines       csv.NewlinePolicy
}

func DefaultSerializer() Serializer {
	return Serializer{
		Delimiter:      ',',
		LineTerminator: "\r\n",
		Newlines:       csv.NewlineKeep,
	}
}

// Render writes one line per record with columns in the order of fields.
// Columns a record does not have render as "". The header line is written
// only when includeHeader is set and there is at least one field.
func (s Serializer) Render(fields []string, records []FlatRecord, includeHeader bool) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if s.Delimiter != 0 {
		w.Delimiter = s.Delimiter
	}
	if s.LineTerminator != "" {
		w.LineTerminator = s.LineTerminator
	}
	if s.Newlines != "" {
		w.Newlines = s.Newlines
	}

	if includeHeader && len(fields) > 0 {
		if err := w.Write(fields); err != nil {
			return "", fmt.Errorf("render header: %w", err)
		}
	}
	line := make([]string, len(fields))
	for i, record := range records {
		for j, field := range fields {
			line[j] = record[field]
		}
		if err := w.Write(line); err != nil {
			return "", fmt.Errorf("render record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return sb.String(), nil
}
