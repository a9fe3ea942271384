package crawler

import (
	"context"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"heiten-crawler/internal/models"
	"heiten-crawler/pkg/logger"
)

const detailLinkSel = "div.mainarea a.post_links"

// Walker reads one listing page and yields a record per linked detail page.
type Walker struct {
	listing *Retrier
	details *DetailFetcher
	log     *logger.Logger
}

func NewWalker(listing *Retrier, details *DetailFetcher, l *logger.Logger) *Walker {
	return &Walker{listing: listing, details: details, log: l}
}

// Links fetches the listing page and returns its detail links in document
// order, resolved against listingURL.
func (w *Walker) Links(ctx context.Context, listingURL string) ([]string, error) {
	doc, err := w.listing.FetchDocument(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find(detailLinkSel).Each(func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			w.log.Debugf("bad detail link %q: %v", href, err)
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}

// Walk fetches the listing eagerly and the details lazily, in link order.
// Details that exhaust their retries are logged and left out. An empty
// sequence means the listing had no links, i.e. pagination has ended.
// Each call re-fetches the listing.
func (w *Walker) Walk(ctx context.Context, listingURL string) (iter.Seq[models.Record], error) {
	links, err := w.Links(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	w.log.Debugf("%d detail links on %s", len(links), listingURL)

	return func(yield func(models.Record) bool) {
		for _, link := range links {
			w.log.Debugf("scraping: %s", link)
			rec, err := w.details.Fetch(ctx, link)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Errorf("skipping %s: %v", link, err)
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}, nil
}
