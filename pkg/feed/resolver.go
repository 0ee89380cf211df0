package feed

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"zapfeed/pkg/cache"
	"zapfeed/pkg/zapfeed"
)

// FetchReferenceFunc loads the secondary event referenced by one receipt.
// A nil result with nil error means no relay has the event.
type FetchReferenceFunc func(ctx context.Context) (*zapfeed.ReceiptEvent, error)

// ReferenceResolver memoizes secondary-event lookups per receipt id.
//
// Concurrent requests for the same id share one in-flight fetch, which
// matters during batch processing when dozens of receipts can request
// resolution in the same instant.
type ReferenceResolver struct {
	logger   *slog.Logger
	resolved *cache.LRU[string, *zapfeed.ReceiptEvent]
	flight   singleflight.Group
}

// NewReferenceResolver creates a resolver bounded to capacity cached results.
func NewReferenceResolver(capacity int, logger *slog.Logger) *ReferenceResolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReferenceResolver{
		logger:   logger,
		resolved: cache.NewLRU[string, *zapfeed.ReceiptEvent](capacity),
	}
}

// GetOrFetch returns the resolved reference for eventID.
//
// A cached result returns immediately. Otherwise fetch runs behind a
// single-flight gate; a non-nil result is cached, and any fetch failure is
// logged and degraded to a nil reference. Failures are never retried
// automatically: the receipt simply renders without its reference.
func (r *ReferenceResolver) GetOrFetch(ctx context.Context, eventID string, fetch FetchReferenceFunc) (*zapfeed.ReceiptEvent, error) {
	if eventID == "" {
		return nil, fmt.Errorf("resolve reference: empty event id")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve reference %s: %w", eventID, err)
	}

	if reference, exists := r.resolved.Get(eventID); exists {
		return reference, nil
	}

	result, err, _ := r.flight.Do(eventID, func() (any, error) {
		if reference, exists := r.resolved.Get(eventID); exists {
			return reference, nil
		}

		reference, fetchErr := fetch(ctx)
		if fetchErr != nil {
			r.logger.WarnContext(ctx,
				"reference resolution failed",
				"event_id", eventID,
				"error", fetchErr,
			)
			return (*zapfeed.ReceiptEvent)(nil), nil
		}
		if reference != nil {
			r.resolved.Set(eventID, reference)
		}

		return reference, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve reference %s: %w", eventID, err)
	}

	reference, ok := result.(*zapfeed.ReceiptEvent)
	if !ok {
		return nil, nil
	}

	return reference, nil
}

// Peek returns a cached resolution without fetching.
func (r *ReferenceResolver) Peek(eventID string) (*zapfeed.ReceiptEvent, bool) {
	return r.resolved.Peek(eventID)
}

// Clear discards every cached resolution.
func (r *ReferenceResolver) Clear() {
	r.resolved.Clear()
}
