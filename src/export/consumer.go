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
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
	"github.com/edasque/DynamoDBtoCSV/src/tabular"
)

// PageConsumer is what the Paginator does with each page. It is chosen once
// per run: rows are flattened and buffered, or only tallied.
type PageConsumer interface {
	// Consume folds one page into the session and returns the number of
	// rows it accounts for.
	Consume(s *ExportSession, page *ddb.Page) (int64, error)
	// Render produces the chunk for the current flush from what the session
	// accumulated since the previous one.
	Render(s *ExportSession) (Chunk, error)
}

// Chunk is the output of one flush. Data goes to the CSV destination,
// Diagnostic to the operator.
type Chunk struct {
	Data       string
	Diagnostic string
}

// RowConsumer flattens items into the session's pending batch and writes
// them as CSV on flush.
type RowConsumer struct {
	flattener  *tabular.Flattener
	serializer tabular.Serializer
}

func NewRowConsumer(s *ExportSession, serializer tabular.Serializer) *RowConsumer {
	return &RowConsumer{
		flattener:  tabular.NewFlattener(s.Headers),
		serializer: serializer,
	}
}

func (rc *RowConsumer) Consume(s *ExportSession, page *ddb.Page) (int64, error) {
	records, err := rc.flattener.Flatten(page.Items)
	if err != nil {
		return 0, err
	}
	s.Pending = append(s.Pending, records...)
	return int64(len(page.Items)), nil
}

func (rc *RowConsumer) Render(s *ExportSession) (Chunk, error) {
	var chunk Chunk
	includeHeader := s.IncludeHeader()
	fields := s.Headers.Names()
	if late := s.LateColumns(); len(late) > 0 {
		msg := fmt.Sprintf("columns %v were discovered after the header line was written; "+
			"they are appended as trailing fields without a header name", late)
		log.Warn(msg)
		chunk.Diagnostic = "WARNING: " + msg + "\n"
	}
	if includeHeader && len(fields) == 0 && len(s.Pending) > 0 {
		// Rows with no attributes go out before any column is known. The
		// header is then empty and every later column is reported as late.
		msg := fmt.Sprintf("the first %d rows have no attributes; no header line is written", len(s.Pending))
		log.Warn(msg)
		chunk.Diagnostic += "WARNING: " + msg + "\n"
		includeHeader = false
		s.MarkHeaderWritten(0)
	}
	text, err := rc.serializer.Render(fields, s.Pending, includeHeader)
	if err != nil {
		return Chunk{}, err
	}
	if includeHeader && len(fields) > 0 {
		s.MarkHeaderWritten(len(fields))
	}
	chunk.Data = text
	return chunk, nil
}

// HeaderDiscoveryConsumer only grows the HeaderSet. It backs the first pass
// of the two-pass header policy.
type HeaderDiscoveryConsumer struct {
	flattener *tabular.Flattener
}

func NewHeaderDiscoveryConsumer(s *ExportSession) *HeaderDiscoveryConsumer {
	return &HeaderDiscoveryConsumer{flattener: tabular.NewFlattener(s.Headers)}
}

func (hc *HeaderDiscoveryConsumer) Consume(s *ExportSession, page *ddb.Page) (int64, error) {
	if _, err := hc.flattener.Flatten(page.Items); err != nil {
		return 0, err
	}
	return int64(len(page.Items)), nil
}

func (hc *HeaderDiscoveryConsumer) Render(s *ExportSession) (Chunk, error) {
	return Chunk{}, nil
}

// MissingStatsValue is the bucket for items that lack the stats field.
const MissingStatsValue = "(missing)"

// StatsConsumer counts occurrences of each value of a string attribute.
// Counts are cumulative for the whole run.
type StatsConsumer struct {
	Field  string
	counts map[string]int64
}

func NewStatsConsumer(field string) *StatsConsumer {
	return &StatsConsumer{Field: field, counts: make(map[string]int64)}
}

func (sc *StatsConsumer) Consume(s *ExportSession, page *ddb.Page) (int64, error) {
	for i, item := range page.Items {
		key, err := sc.valueOf(item)
		if err != nil {
			return 0, fmt.Errorf("stats field %q of item %d: %w", sc.Field, i, err)
		}
		sc.counts[key]++
	}
	return int64(len(page.Items)), nil
}

func (sc *StatsConsumer) valueOf(item ddb.Row) (string, error) {
	av, ok := item[sc.Field]
	if !ok {
		return MissingStatsValue, nil
	}
	if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
		return MissingStatsValue, nil
	}
	if _, isString := av.(*types.AttributeValueMemberS); !isString {
		return "", fmt.Errorf("only string fields are supported, got %T", av)
	}
	var value string
	if err := attributevalue.Unmarshal(av, &value); err != nil {
		return "", err
	}
	return value, nil
}

// Counts returns a copy of the tallies.
func (sc *StatsConsumer) Counts() map[string]int64 {
	return maps.Clone(sc.counts)
}

func (sc *StatsConsumer) Render(s *ExportSession) (Chunk, error) {
	var sb strings.Builder
	sb.WriteString("\nSTATS\n----------\n")
	keys := maps.Keys(sc.counts)
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&sb, "%s = %d\n", key, sc.counts[key])
	}
	return Chunk{Diagnostic: sb.String()}, nil
}

// CountConsumer sums the server side counts of COUNT requests.
type CountConsumer struct {
	total int64
}

func NewCountConsumer() *CountConsumer {
	return &CountConsumer{}
}

func (cc *CountConsumer) Consume(s *ExportSession, page *ddb.Page) (int64, error) {
	n := int64(page.Count)
	cc.total += n
	return n, nil
}

func (cc *CountConsumer) Total() int64 {
	return cc.total
}

func (cc *CountConsumer) Render(s *ExportSession) (Chunk, error) {
	return Chunk{Diagnostic: fmt.Sprintf("\nCOUNT\n----------\ntotal = %d\n", cc.total)}, nil
}
