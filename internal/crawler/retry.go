package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"heiten-crawler/pkg/logger"
)

var ErrFetchExhausted = errors.New("fetch exhausted")

// FetchExhaustedError reports a URL that failed on every attempt.
// It matches ErrFetchExhausted and the last underlying error.
type FetchExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("failed to get %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() []error {
	return []error{ErrFetchExhausted, e.Err}
}

// RetryPolicy bounds retrieval attempts. RetryDelay separates failed
// attempts; PoliteDelay follows every attempt, failed or not.
type RetryPolicy struct {
	MaxAttempts int
	RetryDelay  time.Duration
	PoliteDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		RetryDelay:  30 * time.Second,
		PoliteDelay: 3 * time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier wraps a DocumentFetcher with a RetryPolicy. Every retrieval
// error is treated as transient.
type Retrier struct {
	docs   DocumentFetcher
	policy RetryPolicy
	sleep  Sleeper
	log    *logger.Logger
}

func NewRetrier(docs DocumentFetcher, policy RetryPolicy, l *logger.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{docs: docs, policy: policy, sleep: Sleep, log: l}
}

// WithSleeper swaps the wait function; tests use it to record delays.
func (r *Retrier) WithSleeper(s Sleeper) *Retrier {
	r.sleep = s
	return r
}

func (r *Retrier) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		doc, err := r.docs.FetchDocument(ctx, rawURL)
		if serr := r.sleep(ctx, r.policy.PoliteDelay); serr != nil {
			return nil, serr
		}
		if err == nil {
			return doc, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		r.log.Warnf("failed to get %s (attempt %d/%d): %v", rawURL, attempt, r.policy.MaxAttempts, err)
		if attempt == r.policy.MaxAttempts {
			break
		}
		r.log.Warnf("retrying in %s", r.policy.RetryDelay)
		if serr := r.sleep(ctx, r.policy.RetryDelay); serr != nil {
			return nil, serr
		}
	}
	r.log.Errorf("failed to get dom from: %s", rawURL)
	return nil, &FetchExhaustedError{URL: rawURL, Attempts: r.policy.MaxAttempts, Err: lastErr}
}
