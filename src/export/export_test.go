//go:build unit

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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
	"github.com/edasque/DynamoDBtoCSV/src/errs"
	"github.com/edasque/DynamoDBtoCSV/src/pbreporter"
	"github.com/edasque/DynamoDBtoCSV/src/tabular"
)

type fakeFetcher struct {
	pages   []*ddb.Page
	cursors []ddb.Cursor
	failAt  int
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, cursor ddb.Cursor) (*ddb.Page, error) {
	i := len(f.cursors)
	f.cursors = append(f.cursors, cursor)
	if f.err != nil && i == f.failAt {
		return nil, f.err
	}
	return f.pages[i], nil
}

func cursorFor(id int) ddb.Cursor {
	return ddb.Cursor{"id": &types.AttributeValueMemberS{Value: fmt.Sprint(id)}}
}

// makePages builds pages of the given sizes. Every page but the last carries
// a cursor naming its last item.
func makePages(sizes ...int) []*ddb.Page {
	var pages []*ddb.Page
	id := 0
	for i, size := range sizes {
		page := &ddb.Page{}
		for j := 0; j < size; j++ {
			id++
			page.Items = append(page.Items, ddb.Row{"id": &types.AttributeValueMemberS{Value: fmt.Sprint(id)}})
		}
		page.Count = int32(size)
		if i < len(sizes)-1 {
			page.LastEvaluatedKey = cursorFor(id)
		}
		pages = append(pages, page)
	}
	return pages
}

// chunkRecorder keeps every write separately.
type chunkRecorder struct {
	chunks []string
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.chunks = append(c.chunks, string(p))
	return len(p), nil
}

func rowOptions(chunkSize int64) Options {
	return Options{Mode: ModeRows, ChunkSize: chunkSize, Serializer: tabular.DefaultSerializer()}
}

func TestRunFlushesAtPageBoundaries(t *testing.T) {
	fetcher := &fakeFetcher{pages: makePages(3, 3, 2)}
	out := &chunkRecorder{}
	var diag bytes.Buffer
	sink := NewSink(out, &diag)

	summary, err := Run(context.Background(), fetcher, sink, rowOptions(5), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 2, summary.Flushes)
	assert.Equal(t, int64(8), summary.RowsFound)
	require.Len(t, out.chunks, 2)
	assert.Equal(t, "\"id\"\r\n\"1\"\r\n\"2\"\r\n\"3\"\r\n\"4\"\r\n\"5\"\r\n\"6\"\r\n", out.chunks[0])
	assert.Equal(t, "\"7\"\r\n\"8\"\r\n", out.chunks[1])

	// the first flush echoes the cursor of page 2, the final one the sentinel
	assert.Equal(t, "last key:\n{\"id\":{\"S\":\"6\"}}\nlast key:\nFile Written\n", diag.String())
	assert.Equal(t, ExhaustedSentinel, summary.LastCursor)

	// each fetch resumes from the previous page's cursor
	assert.Equal(t, []ddb.Cursor{nil, cursorFor(3), cursorFor(6)}, fetcher.cursors)
}

func TestRunCountsAndHeaderOnceForAllChunkSizes(t *testing.T) {
	layouts := [][]int{{1}, {4}, {3, 3, 2}, {1, 1, 1, 1, 1}, {5, 0, 5}, {7, 2, 9, 1}}
	for _, layout := range layouts {
		total := 0
		for _, n := range layout {
			total += n
		}
		for chunkSize := int64(1); chunkSize <= 10; chunkSize++ {
			t.Run(fmt.Sprintf("%v/size=%d", layout, chunkSize), func(t *testing.T) {
				out := &chunkRecorder{}
				summary, err := Run(context.Background(), &fakeFetcher{pages: makePages(layout...)},
					NewSink(out, &bytes.Buffer{}), rowOptions(chunkSize), nil)
				require.NoError(t, err)
				assert.Equal(t, int64(total), summary.RowsFound)
				assert.Equal(t, len(layout), summary.Pages)

				withHeader := 0
				lines := 0
				for _, chunk := range out.chunks {
					if strings.HasPrefix(chunk, "\"id\"\r\n") {
						withHeader++
					}
					lines += strings.Count(chunk, "\r\n")
				}
				assert.Equal(t, 1, withHeader)
				assert.Equal(t, total+1, lines)
			})
		}
	}
}

func TestPendingBatchMayExceedChunkSizeByOnePage(t *testing.T) {
	session := NewExportSession(nil)
	var pendingAtFlush []int
	consumer := &observingConsumer{RowConsumer: NewRowConsumer(session, tabular.DefaultSerializer()), seen: &pendingAtFlush}
	p, err := NewPaginator(PaginatorConfig{
		Fetcher:   &fakeFetcher{pages: makePages(4, 4, 4)},
		Consumer:  consumer,
		Sink:      NewSink(&bytes.Buffer{}, &bytes.Buffer{}),
		Session:   session,
		ChunkSize: 5,
	})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []int{8, 4}, pendingAtFlush)
	assert.Equal(t, EXHAUSTED, p.State())
}

type observingConsumer struct {
	*RowConsumer
	seen *[]int
}

func (oc *observingConsumer) Render(s *ExportSession) (Chunk, error) {
	*oc.seen = append(*oc.seen, len(s.Pending))
	return oc.RowConsumer.Render(s)
}

func TestHeaderSetIsUnionInFirstSeenOrder(t *testing.T) {
	pages := []*ddb.Page{
		{Items: []ddb.Row{{"b": &types.AttributeValueMemberS{Value: "1"}}}, LastEvaluatedKey: cursorFor(1)},
		{Items: []ddb.Row{
			{"a": &types.AttributeValueMemberS{Value: "2"}, "b": &types.AttributeValueMemberS{Value: "2"}},
			{"c": &types.AttributeValueMemberS{Value: "3"}},
		}},
	}
	summary, err := Run(context.Background(), &fakeFetcher{pages: pages},
		NewSink(&bytes.Buffer{}, &bytes.Buffer{}), rowOptions(100), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, summary.Headers)
}

func latePages() []*ddb.Page {
	return []*ddb.Page{
		{Items: []ddb.Row{{"id": &types.AttributeValueMemberS{Value: "1"}}}, LastEvaluatedKey: cursorFor(1)},
		{Items: []ddb.Row{{
			"id":    &types.AttributeValueMemberS{Value: "2"},
			"email": &types.AttributeValueMemberS{Value: "x@example.com"},
		}}},
	}
}

func TestAppendPolicyWarnsAboutLateColumns(t *testing.T) {
	var out, diag bytes.Buffer
	_, err := Run(context.Background(), &fakeFetcher{pages: latePages()}, NewSink(&out, &diag), rowOptions(1), nil)
	require.NoError(t, err)
	assert.Equal(t, "\"id\"\r\n\"1\"\r\n\"2\",\"x@example.com\"\r\n", out.String())
	assert.Contains(t, diag.String(), "WARNING: columns [email] were discovered after the header line was written")
}

func TestTwoPassPolicyWritesCompleteHeader(t *testing.T) {
	opts := rowOptions(1)
	opts.HeaderPolicy = HeaderPolicyTwoPass
	fetcher := &fakeFetcher{pages: append(latePages(), latePages()...)}
	var out, diag bytes.Buffer
	summary, err := Run(context.Background(), fetcher, NewSink(&out, &diag), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, "\"id\",\"email\"\r\n\"1\",\"\"\r\n\"2\",\"x@example.com\"\r\n", out.String())
	assert.NotContains(t, diag.String(), "WARNING")
	assert.Equal(t, 2, summary.Pages)
	// discovery pass plus export pass
	assert.Len(t, fetcher.cursors, 4)
}

func TestExistingHeaderIsNotRepeated(t *testing.T) {
	opts := rowOptions(10)
	opts.HeaderNames = []string{"id"}
	var out bytes.Buffer
	_, err := Run(context.Background(), &fakeFetcher{pages: makePages(2)}, NewSink(&out, &bytes.Buffer{}), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, "\"1\"\r\n\"2\"\r\n", out.String())
}

func resumedPages() []*ddb.Page {
	return []*ddb.Page{
		{Items: []ddb.Row{{
			"email": &types.AttributeValueMemberS{Value: "c@x"},
			"id":    &types.AttributeValueMemberS{Value: "3"},
		}}, LastEvaluatedKey: cursorFor(3)},
		{Items: []ddb.Row{{
			"name": &types.AttributeValueMemberS{Value: "d"},
			"id":   &types.AttributeValueMemberS{Value: "4"},
		}}},
	}
}

func TestResumedRunKeepsExistingColumnOrder(t *testing.T) {
	opts := rowOptions(1)
	opts.HeaderNames = []string{"id", "name"}
	opts.StartCursor = cursorFor(2)
	var out, diag bytes.Buffer
	summary, err := Run(context.Background(), &fakeFetcher{pages: resumedPages()}, NewSink(&out, &diag), opts, nil)
	require.NoError(t, err)

	assert.Equal(t, "\"3\",\"\",\"c@x\"\r\n\"4\",\"d\",\"\"\r\n", out.String())
	assert.Equal(t, []string{"id", "name", "email"}, summary.Headers)
	assert.Contains(t, diag.String(), "WARNING: columns [email] were discovered after the header line was written")
	assert.Equal(t, 1, strings.Count(diag.String(), "WARNING"))
}

func TestResumedTwoPassRunKeepsExistingColumnOrder(t *testing.T) {
	opts := rowOptions(1)
	opts.HeaderNames = []string{"id", "name"}
	opts.HeaderPolicy = HeaderPolicyTwoPass
	fetcher := &fakeFetcher{pages: append(resumedPages(), resumedPages()...)}
	var out, diag bytes.Buffer
	_, err := Run(context.Background(), fetcher, NewSink(&out, &diag), opts, nil)
	require.NoError(t, err)

	assert.Equal(t, "\"3\",\"\",\"c@x\"\r\n\"4\",\"d\",\"\"\r\n", out.String())
	assert.Contains(t, diag.String(), "columns [email]")
}

func TestRowsWithoutAttributesFirstSkipHeaderWithWarning(t *testing.T) {
	pages := []*ddb.Page{
		{Items: []ddb.Row{{}}, LastEvaluatedKey: cursorFor(1)},
		{Items: []ddb.Row{{"id": &types.AttributeValueMemberS{Value: "2"}}}},
	}
	var out, diag bytes.Buffer
	_, err := Run(context.Background(), &fakeFetcher{pages: pages}, NewSink(&out, &diag), rowOptions(1), nil)
	require.NoError(t, err)

	assert.Equal(t, "\r\n\"2\"\r\n", out.String())
	assert.Contains(t, diag.String(), "WARNING: the first 1 rows have no attributes; no header line is written")
	assert.Contains(t, diag.String(), "WARNING: columns [id] were discovered after the header line was written")
}

func statsPage(cursor ddb.Cursor, colors ...string) *ddb.Page {
	page := &ddb.Page{LastEvaluatedKey: cursor}
	for _, c := range colors {
		page.Items = append(page.Items, ddb.Row{"color": &types.AttributeValueMemberS{Value: c}})
	}
	return page
}

func TestStatsAreIndependentOfPageBoundaries(t *testing.T) {
	layouts := [][]*ddb.Page{
		{statsPage(nil, "red", "blue", "red")},
		{statsPage(cursorFor(1), "red"), statsPage(cursorFor(2), "blue"), statsPage(nil, "red")},
		{statsPage(cursorFor(1), "red", "blue"), statsPage(nil, "red")},
	}
	for i, pages := range layouts {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			var out, diag bytes.Buffer
			opts := Options{Mode: ModeStats, StatsField: "color", ChunkSize: 1}
			summary, err := Run(context.Background(), &fakeFetcher{pages: pages}, NewSink(&out, &diag), opts, nil)
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{"red": 2, "blue": 1}, summary.Stats)
			assert.Empty(t, out.String())
			assert.True(t, strings.HasSuffix(diag.String(),
				"\nSTATS\n----------\nblue = 1\nred = 2\nlast key:\nFile Written\n"), diag.String())
		})
	}
}

func TestStatsMissingAndNonStringValues(t *testing.T) {
	pages := []*ddb.Page{{Items: []ddb.Row{
		{"color": &types.AttributeValueMemberS{Value: "red"}},
		{"other": &types.AttributeValueMemberS{Value: "x"}},
		{"color": &types.AttributeValueMemberNULL{Value: true}},
	}}}
	summary, err := Run(context.Background(), &fakeFetcher{pages: pages}, NewSink(&bytes.Buffer{}, &bytes.Buffer{}),
		Options{Mode: ModeStats, StatsField: "color", ChunkSize: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"red": 1, MissingStatsValue: 2}, summary.Stats)

	pages = []*ddb.Page{{Items: []ddb.Row{{"color": &types.AttributeValueMemberN{Value: "7"}}}}}
	_, err = Run(context.Background(), &fakeFetcher{pages: pages}, NewSink(&bytes.Buffer{}, &bytes.Buffer{}),
		Options{Mode: ModeStats, StatsField: "color", ChunkSize: 10}, nil)
	var exportErr *errs.ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, errs.CONSUME_STAGE, exportErr.Stage())
}

func TestCountModeSumsServerCounts(t *testing.T) {
	pages := []*ddb.Page{
		{Count: 1000, LastEvaluatedKey: cursorFor(1)},
		{Count: 250},
	}
	var diag bytes.Buffer
	summary, err := Run(context.Background(), &fakeFetcher{pages: pages}, NewSink(&bytes.Buffer{}, &diag),
		Options{Mode: ModeCount, ChunkSize: 5000}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), summary.Count)
	assert.Equal(t, 1, summary.Flushes)
	assert.Contains(t, diag.String(), "total = 1250")
}

func TestFetchFailureStopsRun(t *testing.T) {
	fetcher := &fakeFetcher{pages: makePages(2, 2, 2), failAt: 2, err: errors.New("ThrottlingException: rate exceeded")}
	var out, diag bytes.Buffer
	session := NewExportSession(nil)
	p, err := NewPaginator(PaginatorConfig{
		Fetcher:   fetcher,
		Consumer:  NewRowConsumer(session, tabular.DefaultSerializer()),
		Sink:      NewSink(&out, &diag),
		Session:   session,
		ChunkSize: 2,
	})
	require.NoError(t, err)

	err = p.Run(context.Background())
	var exportErr *errs.ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, errs.FETCH_STAGE, exportErr.Stage())
	assert.Equal(t, 3, exportErr.Page())
	assert.Equal(t, `{"id":{"S":"4"}}`, exportErr.LastCursor())
	assert.Equal(t, FAILED, p.State())
	assert.Equal(t, int64(4), session.Counters.TotalRowsWritten)
	assert.Equal(t, "\"id\"\r\n\"1\"\r\n\"2\"\r\n\"3\"\r\n\"4\"\r\n", out.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("no space left on device")
}

func TestWriteFailureIsFatal(t *testing.T) {
	_, err := Run(context.Background(), &fakeFetcher{pages: makePages(3)}, NewSink(failingWriter{}, &bytes.Buffer{}), rowOptions(1), nil)
	var exportErr *errs.ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, errs.WRITE_STAGE, exportErr.Stage())
	assert.ErrorContains(t, err, "no space left on device")
}

func TestStartCursorIsUsedForFirstFetch(t *testing.T) {
	fetcher := &fakeFetcher{pages: makePages(1)}
	opts := rowOptions(10)
	opts.StartCursor = cursorFor(41)
	_, err := Run(context.Background(), fetcher, NewSink(&bytes.Buffer{}, &bytes.Buffer{}), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, cursorFor(41), fetcher.cursors[0])
}

func TestCancelledContextFailsBeforeFetching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{pages: makePages(1)}
	_, err := Run(ctx, fetcher, NewSink(&bytes.Buffer{}, &bytes.Buffer{}), rowOptions(10), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.cursors)
}

func TestProgressIsReportedPerPage(t *testing.T) {
	pb := pbreporter.NewExportPB(nil, "orders", true)
	_, err := Run(context.Background(), &fakeFetcher{pages: makePages(3, 3, 2)},
		NewSink(&bytes.Buffer{}, &bytes.Buffer{}), rowOptions(5), pb)
	require.NoError(t, err)
	assert.True(t, pb.IsComplete())
	assert.Equal(t, int64(8), pb.(*pbreporter.DisablePBReporter).CurrentRows)
}

func TestOptionsValidate(t *testing.T) {
	assert.ErrorContains(t, (&Options{Mode: ModeRows}).Validate(), "--size")
	assert.ErrorContains(t, (&Options{Mode: ModeStats, ChunkSize: 1}).Validate(), "--stats")
	assert.ErrorContains(t, (&Options{Mode: "sample", ChunkSize: 1}).Validate(), "unknown export mode")

	opts := Options{Mode: ModeRows, ChunkSize: 1}
	require.NoError(t, opts.Validate())
	assert.Equal(t, HeaderPolicyAppend, opts.HeaderPolicy)

	_, err := ParseHeaderPolicy("lazy")
	assert.Error(t, err)
	policy, err := ParseHeaderPolicy("TWO-PASS")
	require.NoError(t, err)
	assert.Equal(t, HeaderPolicyTwoPass, policy)
}

func TestFileSinkAppendsAndLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("\"id\"\r\n"), 0644))

	sink, err := OpenFileSink(path, &bytes.Buffer{})
	require.NoError(t, err)
	assert.FileExists(t, path+".lck")

	require.NoError(t, sink.Flush(Chunk{Data: "\"1\"\r\n"}, nil))
	require.NoError(t, sink.Close())

	bs, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"id\"\r\n\"1\"\r\n", string(bs))
	assert.NoFileExists(t, path+".lck")

}

func TestFileSinkRefusesLockHeldByAnotherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	// pid 1 is always alive, so the lock looks owned by a running process
	require.NoError(t, os.WriteFile(path+".lck", []byte("1\n"), 0644))
	_, err := OpenFileSink(path, &bytes.Buffer{})
	assert.ErrorContains(t, err, "another export is writing to")
}
