package crawler

import (
	"context"

	"heiten-crawler/internal/models"
	"heiten-crawler/internal/parser"
)

// DetailFetcher turns one detail page URL into a record.
type DetailFetcher struct {
	docs      *Retrier
	extractor *parser.Extractor
}

func NewDetailFetcher(docs *Retrier, extractor *parser.Extractor) *DetailFetcher {
	return &DetailFetcher{docs: docs, extractor: extractor}
}

// Fetch returns a *FetchExhaustedError when every attempt failed; callers
// skip the record and carry on.
func (f *DetailFetcher) Fetch(ctx context.Context, pageURL string) (models.Record, error) {
	doc, err := f.docs.FetchDocument(ctx, pageURL)
	if err != nil {
		return models.Record{}, err
	}
	return f.extractor.Extract(doc, pageURL), nil
}
