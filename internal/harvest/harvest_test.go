package harvest

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"heiten-crawler/internal/checkpoint"
	"heiten-crawler/internal/crawler"
	"heiten-crawler/internal/ioformats"
	"heiten-crawler/internal/models"
	"heiten-crawler/pkg/logger"
)

const (
	listURL = "https://kaiten-heiten.com/category/restaurant/"
	query   = "【閉店】"
)

func rec(slug string) models.Record {
	return models.Record{Name: slug, URL: "https://kaiten-heiten.com/" + slug + "/"}
}

// pagedWalker serves records per listing page; missing pages are empty.
type pagedWalker struct {
	pages   map[string][]models.Record
	failing map[string]bool
	walked  []string
	yielded int
}

func (w *pagedWalker) Walk(ctx context.Context, listingURL string) (iter.Seq[models.Record], error) {
	w.walked = append(w.walked, listingURL)
	if w.failing[listingURL] {
		return nil, &crawler.FetchExhaustedError{URL: listingURL, Attempts: 3, Err: errors.New("503")}
	}
	recs := w.pages[listingURL]
	return func(yield func(models.Record) bool) {
		for _, r := range recs {
			w.yielded++
			if !yield(r) {
				return
			}
		}
	}, nil
}

// memorySink records writes and flushes.
type memorySink struct {
	mode    ioformats.Mode
	rows    []models.Record
	flushed []int
	closed  bool
}

func (s *memorySink) Write(r models.Record) error {
	s.rows = append(s.rows, r)
	return nil
}

func (s *memorySink) Flush() error {
	s.flushed = append(s.flushed, len(s.rows))
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

type fixture struct {
	driver *Driver
	walker *pagedWalker
	store  checkpoint.Store
	sink   *memorySink
	sleeps []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := checkpoint.OpenJSONStore(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	f := &fixture{
		walker: &pagedWalker{pages: map[string][]models.Record{}, failing: map[string]bool{}},
		store:  store,
		sink:   &memorySink{},
	}
	open := func(mode ioformats.Mode) (ioformats.Sink, error) {
		f.sink.mode = mode
		return f.sink, nil
	}
	f.driver = New(listURL, f.walker, store, open, 3*time.Second, logger.Discard()).
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return ctx.Err()
		})
	return f
}

func (f *fixture) page(n int, recs ...models.Record) {
	f.walker.pages[f.driver.ListingURL(n, query)] = recs
}

func (f *fixture) checkpoint(t *testing.T) models.Record {
	t.Helper()
	e, ok, err := f.store.Get(context.Background(), query)
	require.NoError(t, err)
	require.True(t, ok)
	return e.Value
}

func urls(recs []models.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.URL
	}
	return out
}

func TestListingURL(t *testing.T) {
	f := newFixture(t)
	require.Equal(t,
		"https://kaiten-heiten.com/category/restaurant/page/2/?s=%E3%80%90%E9%96%89%E5%BA%97%E3%80%91",
		f.driver.ListingURL(2, query))
}

func TestRunUntilEmptyPageCheckpointsNewest(t *testing.T) {
	f := newFixture(t)
	f.page(1, rec("r1"), rec("r2"), rec("r3"))
	f.page(2, rec("r4"))

	sum, err := f.driver.Run(context.Background(), query, 1, -1)
	require.NoError(t, err)

	require.Equal(t, urls([]models.Record{rec("r1"), rec("r2"), rec("r3"), rec("r4")}), urls(f.sink.rows))
	require.Equal(t, rec("r1"), f.checkpoint(t), "checkpoint tracks the newest record")
	require.Equal(t, ioformats.Create, f.sink.mode)
	require.True(t, f.sink.closed)
	// one flush per page, the empty third page included
	require.Equal(t, []int{3, 4, 4}, f.sink.flushed)
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, f.sleeps)

	require.Equal(t, StopExhausted, sum.Reason)
	require.Equal(t, 3, sum.Pages)
	require.Equal(t, 4, sum.Written)
}

func TestRunStopsAtCheckpointedURL(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Upsert(context.Background(), query, rec("old")))
	f.page(1, rec("new1"), rec("new2"), rec("old"), rec("older"))
	f.page(2, rec("oldest"))

	sum, err := f.driver.Run(context.Background(), query, 1, -1)
	require.NoError(t, err)

	require.Equal(t, urls([]models.Record{rec("new1"), rec("new2")}), urls(f.sink.rows))
	require.Equal(t, 3, f.walker.yielded, "records after the sentinel are not consumed")
	require.Len(t, f.walker.walked, 1)
	require.Equal(t, rec("new1"), f.checkpoint(t))
	require.Equal(t, StopSentinel, sum.Reason)
	require.Equal(t, rec("old").URL, sum.Sentinel)
	require.Equal(t, []int{2}, f.sink.flushed)
}

func TestRunNothingNewKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Upsert(context.Background(), query, rec("old")))
	f.page(1, rec("old"), rec("older"))

	sum, err := f.driver.Run(context.Background(), query, 1, -1)
	require.NoError(t, err)
	require.Empty(t, f.sink.rows)
	require.Equal(t, rec("old"), f.checkpoint(t))
	require.Equal(t, StopSentinel, sum.Reason)
}

func TestRunBoundedIgnoresSentinel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Upsert(context.Background(), query, rec("old")))
	f.page(1, rec("new"), rec("old"))
	f.page(2, rec("older"))
	f.page(3, rec("never"))

	sum, err := f.driver.Run(context.Background(), query, 1, 2)
	require.NoError(t, err)
	require.Equal(t, urls([]models.Record{rec("new"), rec("old"), rec("older")}), urls(f.sink.rows))
	require.Equal(t, StopEndPage, sum.Reason)
	require.Equal(t, 2, sum.LastPage)
	require.Empty(t, sum.Sentinel)
	require.Len(t, f.walker.walked, 2)
}

func TestRunFromLaterPageAppends(t *testing.T) {
	f := newFixture(t)
	f.page(3, rec("r5"), rec("r6"))

	_, err := f.driver.Run(context.Background(), query, 3, 3)
	require.NoError(t, err)
	require.Equal(t, ioformats.Append, f.sink.mode)
	require.Equal(t, rec("r5"), f.checkpoint(t), "first page of this crawl is page 3")
	require.Empty(t, f.sleeps)
}

func TestRunListingFailureEndsCrawl(t *testing.T) {
	f := newFixture(t)
	f.page(1, rec("r1"))
	f.walker.failing[f.driver.ListingURL(2, query)] = true
	f.page(3, rec("r3"))

	sum, err := f.driver.Run(context.Background(), query, 1, -1)
	require.NoError(t, err)
	require.Equal(t, StopListingFailed, sum.Reason)
	require.Equal(t, urls([]models.Record{rec("r1")}), urls(f.sink.rows))
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t)
	f.page(1, rec("r1"))
	f.page(2, rec("r2"))
	ctx, cancel := context.WithCancel(context.Background())
	f.driver.WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})

	sum, err := f.driver.Run(ctx, query, 1, -1)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StopCanceled, sum.Reason)
	require.Equal(t, []int{1}, f.sink.flushed)
	require.True(t, f.sink.closed)
}

func TestRunRejectsBadBegin(t *testing.T) {
	f := newFixture(t)
	_, err := f.driver.Run(context.Background(), query, 0, -1)
	require.Error(t, err)
}

func TestRunSinkOpenFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.page(1, rec("r1"))
	d := New(listURL, f.walker, f.store, func(ioformats.Mode) (ioformats.Sink, error) {
		return nil, errors.New("permission denied")
	}, 0, logger.Discard())

	_, err := d.Run(context.Background(), query, 1, -1)
	require.ErrorContains(t, err, "open output")
	require.Empty(t, f.walker.walked)
}
