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
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
	"github.com/edasque/DynamoDBtoCSV/src/errs"
	"github.com/edasque/DynamoDBtoCSV/src/pbreporter"
	"github.com/edasque/DynamoDBtoCSV/src/tabular"
)

type Mode string

const (
	ModeRows  Mode = "rows"
	ModeStats Mode = "stats"
	ModeCount Mode = "count"
)

// HeaderPolicy decides how columns first seen after the header line was
// written are handled.
type HeaderPolicy string

const (
	// HeaderPolicyAppend streams in one pass. Late columns are rendered as
	// trailing fields that the header line does not name.
	HeaderPolicyAppend HeaderPolicy = "append"
	// HeaderPolicyTwoPass enumerates the result set once to discover every
	// column before anything is written, then exports it.
	HeaderPolicyTwoPass HeaderPolicy = "two-pass"
)

func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch HeaderPolicy(strings.ToLower(s)) {
	case HeaderPolicyAppend:
		return HeaderPolicyAppend, nil
	case HeaderPolicyTwoPass:
		return HeaderPolicyTwoPass, nil
	}
	return "", fmt.Errorf("invalid header policy %q. Valid policies = [%s %s]", s, HeaderPolicyAppend, HeaderPolicyTwoPass)
}

type Options struct {
	Mode         Mode
	StatsField   string
	ChunkSize    int64
	StartCursor  ddb.Cursor
	HeaderPolicy HeaderPolicy
	Serializer   tabular.Serializer
	// HeaderNames is the header line the destination already starts with.
	// When set, no header is written and columns keep that order.
	HeaderNames []string
}

func (o *Options) Validate() error {
	switch o.Mode {
	case ModeRows, ModeCount:
	case ModeStats:
		if o.StatsField == "" {
			return errs.NewInvalidConfigErr("stats", "a field name is required")
		}
	default:
		return fmt.Errorf("unknown export mode %q", o.Mode)
	}
	if o.ChunkSize < 1 {
		return errs.NewInvalidConfigErr("size", fmt.Sprintf("must be at least 1, got %d", o.ChunkSize))
	}
	if o.HeaderPolicy == "" {
		o.HeaderPolicy = HeaderPolicyAppend
	}
	return nil
}

type Summary struct {
	Pages      int
	Flushes    int
	RowsFound  int64
	Headers    []string
	Stats      map[string]int64
	Count      int64
	BytesOut   int64
	LastCursor string
}

// Run exports the whole result set of fetcher into sink.
func Run(ctx context.Context, fetcher Fetcher, sink *Sink, opts Options, progress pbreporter.ExportProgressReporter) (*Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	session := newSession(opts.HeaderNames, nil)
	if opts.Mode == ModeRows && opts.HeaderPolicy == HeaderPolicyTwoPass {
		headers, err := DiscoverHeaders(ctx, fetcher, opts.StartCursor, opts.HeaderNames...)
		if err != nil {
			return nil, fmt.Errorf("discover headers: %w", err)
		}
		log.Infof("discovered %d columns: %v", headers.Len(), headers.Names())
		session = newSession(opts.HeaderNames, headers)
	}

	var consumer PageConsumer
	var stats *StatsConsumer
	var count *CountConsumer
	switch opts.Mode {
	case ModeStats:
		stats = NewStatsConsumer(opts.StatsField)
		consumer = stats
	case ModeCount:
		count = NewCountConsumer()
		consumer = count
	default:
		consumer = NewRowConsumer(session, opts.Serializer)
	}

	p, err := NewPaginator(PaginatorConfig{
		Fetcher:     fetcher,
		Consumer:    consumer,
		Sink:        sink,
		Session:     session,
		ChunkSize:   opts.ChunkSize,
		StartCursor: opts.StartCursor,
		Progress:    progress,
	})
	if err != nil {
		return nil, err
	}
	runErr := p.Run(ctx)

	summary := &Summary{
		Pages:      p.Pages(),
		Flushes:    p.Flushes(),
		RowsFound:  p.Fetched(),
		Headers:    session.Headers.Names(),
		BytesOut:   sink.BytesWritten(),
		LastCursor: p.ResumeCursor(),
	}
	if stats != nil {
		summary.Stats = stats.Counts()
	}
	if count != nil {
		summary.Count = count.Total()
	}
	return summary, runErr
}

// newSession seeds the HeaderSet with the header already at the
// destination, if any, so rows line up with it.
func newSession(existing []string, discovered *tabular.HeaderSet) *ExportSession {
	headers := discovered
	if headers == nil {
		headers = tabular.NewHeaderSet(existing...)
	}
	session := NewExportSession(headers)
	if len(existing) > 0 {
		session.MarkHeaderWritten(len(existing))
	}
	return session
}

// DiscoverHeaders enumerates the result set once and returns every column
// name, after the seed names, in first-seen order. Nothing is written.
func DiscoverHeaders(ctx context.Context, fetcher Fetcher, start ddb.Cursor, seed ...string) (*tabular.HeaderSet, error) {
	session := NewExportSession(tabular.NewHeaderSet(seed...))
	p, err := NewPaginator(PaginatorConfig{
		Fetcher:     fetcher,
		Consumer:    NewHeaderDiscoveryConsumer(session),
		Sink:        NewSink(io.Discard, io.Discard),
		Session:     session,
		ChunkSize:   math.MaxInt64,
		StartCursor: start,
	})
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx); err != nil {
		return nil, err
	}
	return session.Headers, nil
}
