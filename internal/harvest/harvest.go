package harvest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"time"

	"heiten-crawler/internal/checkpoint"
	"heiten-crawler/internal/crawler"
	"heiten-crawler/internal/ioformats"
	"heiten-crawler/internal/models"
	"heiten-crawler/pkg/logger"
)

// Walker yields the records linked from one listing page.
type Walker interface {
	Walk(ctx context.Context, listingURL string) (iter.Seq[models.Record], error)
}

// SinkOpener opens the output in the given mode. The driver owns the
// returned sink until Run returns.
type SinkOpener func(mode ioformats.Mode) (ioformats.Sink, error)

type StopReason string

const (
	StopExhausted     StopReason = "no more records"
	StopEndPage       StopReason = "end page reached"
	StopSentinel      StopReason = "caught up with checkpoint"
	StopListingFailed StopReason = "listing fetch failed"
	StopCanceled      StopReason = "canceled"
)

type Summary struct {
	Query     string
	FirstPage int
	LastPage  int
	Pages     int
	Written   int
	Sentinel  string
	Reason    StopReason
}

type Driver struct {
	walker    Walker
	store     checkpoint.Store
	openSink  SinkOpener
	listURL   string
	pageDelay time.Duration
	sleep     crawler.Sleeper
	log       *logger.Logger
}

func New(listURL string, walker Walker, store checkpoint.Store, openSink SinkOpener, pageDelay time.Duration, l *logger.Logger) *Driver {
	return &Driver{
		walker:    walker,
		store:     store,
		openSink:  openSink,
		listURL:   listURL,
		pageDelay: pageDelay,
		sleep:     crawler.Sleep,
		log:       l,
	}
}

// WithSleeper swaps the wait between listing pages.
func (d *Driver) WithSleeper(s crawler.Sleeper) *Driver {
	d.sleep = s
	return d
}

// ListingURL builds the search listing URL for page n.
func (d *Driver) ListingURL(page int, query string) string {
	return fmt.Sprintf("%spage/%d/?", d.listURL, page) + url.Values{"s": {query}}.Encode()
}

// cursor is the driver's private paging state.
type cursor struct {
	query    string
	page     int
	begin    int
	end      int // 0 when unbounded
	sentinel string
	marked   bool // checkpoint already moved this run
}

func (c *cursor) firstPage() bool { return c.page == c.begin }

func (c *cursor) pastEnd() bool { return c.end > 0 && c.page > c.end }

// Run crawls listing pages from begin. end < begin means no upper bound; in
// that case the crawl stops at the URL checkpointed by the previous run of
// the same query, which relies on the listing being newest-first.
//
// The checkpoint moves to the first record written on the first page. The
// sink is flushed after every page.
func (d *Driver) Run(ctx context.Context, query string, begin, end int) (sum Summary, err error) {
	if begin < 1 {
		return Summary{}, fmt.Errorf("begin page must be at least 1, got %d", begin)
	}
	cur := cursor{query: query, page: begin, begin: begin, end: end}
	sum = Summary{Query: query, FirstPage: begin}

	last, found, err := d.store.Get(ctx, query)
	if err != nil {
		return sum, fmt.Errorf("read checkpoint %q: %w", query, err)
	}
	if found {
		d.log.Debugf("previous last: %s (%s)", last.Value.URL, last.Value.Name)
	}
	if end < begin {
		cur.end = 0
		if found {
			cur.sentinel = last.Value.URL
		}
	}
	sum.Sentinel = cur.sentinel

	sink, err := d.openSink(ioformats.ModeForPage(begin))
	if err != nil {
		return sum, fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	for {
		d.log.Infof("scraping page: %d", cur.page)
		written, stopped, perr := d.page(ctx, &cur, sink)
		sum.Pages++
		sum.LastPage = cur.page
		sum.Written += written
		if ferr := sink.Flush(); ferr != nil {
			return sum, fmt.Errorf("flush output: %w", ferr)
		}

		switch {
		case ctx.Err() != nil:
			sum.Reason = StopCanceled
			return sum, ctx.Err()
		case errors.Is(perr, crawler.ErrFetchExhausted):
			d.log.Errorf("listing page %d: %v", cur.page, perr)
			sum.Reason = StopListingFailed
			return sum, nil
		case perr != nil:
			return sum, perr
		case stopped:
			d.log.Infof("reached last record of previous run: %s", cur.sentinel)
			sum.Reason = StopSentinel
			return sum, nil
		case written == 0:
			sum.Reason = StopExhausted
			return sum, nil
		}

		cur.page++
		if cur.pastEnd() {
			sum.Reason = StopEndPage
			return sum, nil
		}
		if serr := d.sleep(ctx, d.pageDelay); serr != nil {
			sum.Reason = StopCanceled
			return sum, serr
		}
	}
}

// page writes one listing page's records. stopped reports that the
// sentinel was met.
func (d *Driver) page(ctx context.Context, cur *cursor, sink ioformats.Sink) (written int, stopped bool, err error) {
	records, err := d.walker.Walk(ctx, d.ListingURL(cur.page, cur.query))
	if err != nil {
		return 0, false, err
	}
	for rec := range records {
		if cur.sentinel != "" && rec.URL == cur.sentinel {
			return written, true, nil
		}
		if err := sink.Write(rec); err != nil {
			return written, false, fmt.Errorf("write %s: %w", rec.URL, err)
		}
		written++
		if cur.firstPage() && !cur.marked {
			cur.marked = true
			if err := d.store.Upsert(ctx, cur.query, rec); err != nil {
				d.log.Errorf("update checkpoint %q: %v", cur.query, err)
			}
		}
	}
	return written, false, nil
}
