package sync

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/offlinehq/recbox/internal/recordsdk"
)

const (
	defaultMaxRetryAttempts = 3
	retryJitterMax          = 500 * time.Millisecond
	rateLimitBaseDelay      = 1 * time.Second
	rateLimitMaxDelay       = 30 * time.Second
)

// Fetcher drains cursor-paginated record listings into complete result sets.
// Every page request passes through the shared rate limiter. Transient
// transport errors are retried with exponential backoff and jitter;
// rate-limit responses are retried honoring the server backoff without
// counting against the attempt budget. A failed page aborts the whole fetch:
// partial results propagate as failure, never as partial success.
type Fetcher struct {
	api        RemoteAPI
	limiter    *RateLimiter
	maxRetries int
}

func NewFetcher(api RemoteAPI, limiter *RateLimiter) *Fetcher {
	return &Fetcher{
		api:        api,
		limiter:    limiter,
		maxRetries: defaultMaxRetryAttempts,
	}
}

// FetchAll lists the entire remote item set of a collection.
func (f *Fetcher) FetchAll(ctx context.Context, collectionID string, batchSize int) ([]*Record, error) {
	return f.drain(ctx, &recordsdk.ListRecordsParams{
		CollectionID: collectionID,
		Limit:        batchSize,
	})
}

// FetchSince lists items modified at or after since. The filter is applied
// server-side; the result set cannot prove absence of unreturned items.
func (f *Fetcher) FetchSince(ctx context.Context, collectionID string, since time.Time, batchSize int) ([]*Record, error) {
	return f.drain(ctx, &recordsdk.ListRecordsParams{
		CollectionID:  collectionID,
		ModifiedSince: &since,
		Limit:         batchSize,
	})
}

func (f *Fetcher) drain(ctx context.Context, params *recordsdk.ListRecordsParams) ([]*Record, error) {
	var records []*Record

	for {
		page, err := f.fetchPage(ctx, params)
		if err != nil {
			return nil, &FetchError{CollectionID: params.CollectionID, Err: err}
		}

		for _, w := range page.Records {
			records = append(records, fromWire(w))
		}

		if !page.HasMore || page.NextCursor == "" {
			return records, nil
		}
		params.Cursor = page.NextCursor
	}
}

// fetchPage requests one page, retrying transient failures with
// `2^attempt + random(0, 0.5)` seconds of backoff up to the attempt budget.
func (f *Fetcher) fetchPage(ctx context.Context, params *recordsdk.ListRecordsParams) (*recordsdk.ListRecordsResponse, error) {
	attempt := 0
	rateDelay := rateLimitBaseDelay

	for {
		if err := f.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		page, err := f.api.ListRecords(ctx, params)
		if err == nil {
			return page, nil
		}

		if recordsdk.IsRateLimited(err) {
			// does not count against the retry budget
			delay := recordsdk.RetryAfterHint(err)
			if delay <= 0 {
				delay = rateDelay
				rateDelay = min(rateDelay*2, rateLimitMaxDelay)
			}
			slog.Debug("fetch rate limited", "collection", params.CollectionID, "delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if !recordsdk.IsTransient(err) || attempt >= f.maxRetries {
			return nil, err
		}

		delay := backoffDelay(attempt)
		attempt++
		slog.Debug("fetch retry", "collection", params.CollectionID, "attempt", attempt, "delay", delay, "error", err)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	jitter := time.Duration(rand.Int63n(int64(retryJitterMax)))
	return base + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
