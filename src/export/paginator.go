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

	log "github.com/sirupsen/logrus"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
	"github.com/edasque/DynamoDBtoCSV/src/errs"
	"github.com/edasque/DynamoDBtoCSV/src/pbreporter"
)

// DefaultChunkSize is the number of rows read before they are written out.
const DefaultChunkSize = 5000

type State string

const (
	FETCHING     State = "FETCHING"
	ACCUMULATING State = "ACCUMULATING"
	EXHAUSTED    State = "EXHAUSTED"
	FAILED       State = "FAILED"
)

// Fetcher returns one page per call. A page with a nil LastEvaluatedKey is
// the last one.
type Fetcher interface {
	Fetch(ctx context.Context, cursor ddb.Cursor) (*ddb.Page, error)
}

type PaginatorConfig struct {
	Fetcher  Fetcher
	Consumer PageConsumer
	Sink     *Sink
	Session  *ExportSession
	// ChunkSize is checked once per page, so the pending batch can exceed it
	// by up to one page of rows before a flush.
	ChunkSize   int64
	StartCursor ddb.Cursor
	Progress    pbreporter.ExportProgressReporter
}

// Paginator drives fetches page after page, handing each page to the consumer
// and flushing through the sink at chunk boundaries and on exhaustion.
type Paginator struct {
	PaginatorConfig

	state   State
	pages   int
	flushes int
	fetched int64
}

func NewPaginator(cfg PaginatorConfig) (*Paginator, error) {
	if cfg.Fetcher == nil || cfg.Consumer == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("paginator needs a fetcher, a consumer and a sink")
	}
	if cfg.ChunkSize < 1 {
		return nil, errs.NewInvalidConfigErr("size", fmt.Sprintf("chunk size must be at least 1, got %d", cfg.ChunkSize))
	}
	if cfg.Session == nil {
		cfg.Session = NewExportSession(nil)
	}
	return &Paginator{PaginatorConfig: cfg, state: FETCHING}, nil
}

func (p *Paginator) State() State {
	return p.state
}

// Pages is the number of successful fetches.
func (p *Paginator) Pages() int {
	return p.pages
}

func (p *Paginator) Flushes() int {
	return p.flushes
}

// Fetched is the number of rows accounted for by all consumed pages.
func (p *Paginator) Fetched() int64 {
	return p.fetched
}

// Run loops until the result set is exhausted or a step fails. Rows that were
// buffered but not flushed when an error occurs are lost; the last reported
// cursor is where a new run has to start.
func (p *Paginator) Run(ctx context.Context) error {
	cursor := p.StartCursor
	for {
		p.state = FETCHING
		if err := ctx.Err(); err != nil {
			return p.fail(errs.FETCH_STAGE, p.pages+1, err)
		}
		page, err := p.Fetcher.Fetch(ctx, cursor)
		if err != nil {
			return p.fail(errs.FETCH_STAGE, p.pages+1, err)
		}
		p.pages++

		p.state = ACCUMULATING
		n, err := p.Consumer.Consume(p.Session, page)
		if err != nil {
			return p.fail(errs.CONSUME_STAGE, p.pages, err)
		}
		p.Session.Counters.RowsSeenSinceFlush += n
		p.fetched += n
		if p.Progress != nil {
			p.Progress.SetExportedRowCount(p.fetched)
		}
		log.Debugf("page %d: %d rows, %d pending, next=%s",
			p.pages, n, p.Session.Counters.RowsSeenSinceFlush, ddb.FormatCursor(page.LastEvaluatedKey))

		if page.LastEvaluatedKey == nil {
			if err := p.flush(nil); err != nil {
				return err
			}
			p.state = EXHAUSTED
			if p.Progress != nil {
				p.Progress.SetTotalRowCount(-1, true)
			}
			log.Infof("export exhausted after %d pages, %d flushes, %d rows",
				p.pages, p.flushes, p.Session.Counters.TotalRowsWritten)
			return nil
		}
		if p.Session.Counters.RowsSeenSinceFlush >= p.ChunkSize {
			if err := p.flush(page.LastEvaluatedKey); err != nil {
				return err
			}
		}
		cursor = page.LastEvaluatedKey
	}
}

func (p *Paginator) flush(cursor ddb.Cursor) error {
	chunk, err := p.Consumer.Render(p.Session)
	if err != nil {
		return p.fail(errs.RENDER_STAGE, p.pages, err)
	}
	if err := p.Sink.Flush(chunk, cursor); err != nil {
		return p.fail(errs.WRITE_STAGE, p.pages, err)
	}
	p.flushes++
	log.Infof("flush %d: wrote %d rows (total %d)", p.flushes,
		p.Session.Counters.RowsSeenSinceFlush, p.Session.Counters.TotalRowsWritten+p.Session.Counters.RowsSeenSinceFlush)
	p.Session.completeFlush()
	return nil
}

// ResumeCursor is the cursor a restarted run should be given.
func (p *Paginator) ResumeCursor() string {
	if last := p.Sink.LastReported(); last != "" {
		return last
	}
	return ddb.FormatCursor(p.StartCursor)
}

func (p *Paginator) fail(stage string, page int, err error) error {
	p.state = FAILED
	exportErr := errs.NewExportError(stage, page, p.ResumeCursor(), err)
	log.Errorf("%v", exportErr)
	return exportErr
}
