package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"

	"zapfeed/pkg/zapfeed"
)

const (
	defaultInitialLimit      = 50
	defaultPageSize          = 25
	defaultFlushInterval     = 300 * time.Millisecond
	defaultFlushMinGap       = 200 * time.Millisecond
	defaultPaginationTimeout = 10 * time.Second
	defaultAutoArmMinimum    = 10
	defaultResolveWorkers    = 4
)

// CoordinatorOption mutates coordinator configuration.
type CoordinatorOption func(*Coordinator)

// WithLogger injects the coordinator logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock injects the time source used by the flush scheduler.
func WithClock(clock func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithInitialLimit sets the backfill subscription limit.
func WithInitialLimit(limit int) CoordinatorOption {
	return func(c *Coordinator) {
		if limit > 0 {
			c.initialLimit = limit
		}
	}
}

// WithPageSize sets the backward-pagination batch size.
func WithPageSize(size int) CoordinatorOption {
	return func(c *Coordinator) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithFlushInterval sets the buffered-render tick interval.
func WithFlushInterval(interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if interval > 0 {
			c.flushInterval = interval
		}
	}
}

// WithFlushMinGap sets the minimum gap enforced between buffered renders.
func WithFlushMinGap(gap time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if gap > 0 {
			c.flushMinGap = gap
		}
	}
}

// WithPaginationTimeout bounds one pagination batch end to end.
func WithPaginationTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.paginationTimeout = timeout
		}
	}
}

// WithAutoArmMinimum sets how many backfill receipts arm infinite scroll
// immediately at finalization.
func WithAutoArmMinimum(minimum int) CoordinatorOption {
	return func(c *Coordinator) {
		if minimum > 0 {
			c.autoArmMinimum = minimum
		}
	}
}

// WithResolveWorkers bounds concurrent reference resolutions per batch.
func WithResolveWorkers(workers int) CoordinatorOption {
	return func(c *Coordinator) {
		if workers > 0 {
			c.resolveWorkers = workers
		}
	}
}

// Coordinator orchestrates backfill, live streaming, and backward pagination
// for every open view against one relay transport.
type Coordinator struct {
	transport zapfeed.RelayTransport
	fetcher   zapfeed.EventFetcher
	profiles  zapfeed.ProfileFetcher
	registry  *Registry
	logger    *slog.Logger
	clock     func() time.Time

	initialLimit      int
	pageSize          int
	flushInterval     time.Duration
	flushMinGap       time.Duration
	paginationTimeout time.Duration
	autoArmMinimum    int
	resolveWorkers    int

	mu    sync.Mutex
	views map[string]*viewSession
}

// NewCoordinator creates a coordinator over the given collaborators and the
// session cache registry. fetcher and profiles may be nil: receipts then
// render without references and senders render as anonymous.
func NewCoordinator(
	transport zapfeed.RelayTransport,
	fetcher zapfeed.EventFetcher,
	profiles zapfeed.ProfileFetcher,
	registry *Registry,
	options ...CoordinatorOption,
) (*Coordinator, error) {
	if transport == nil {
		return nil, fmt.Errorf("new coordinator: %w: nil transport", zapfeed.ErrInvalidConfig)
	}
	if registry == nil {
		return nil, fmt.Errorf("new coordinator: %w: nil registry", zapfeed.ErrInvalidConfig)
	}

	coordinator := &Coordinator{
		transport:         transport,
		fetcher:           fetcher,
		profiles:          profiles,
		registry:          registry,
		logger:            slog.Default(),
		clock:             time.Now,
		initialLimit:      defaultInitialLimit,
		pageSize:          defaultPageSize,
		flushInterval:     defaultFlushInterval,
		flushMinGap:       defaultFlushMinGap,
		paginationTimeout: defaultPaginationTimeout,
		autoArmMinimum:    defaultAutoArmMinimum,
		resolveWorkers:    defaultResolveWorkers,
		views:             make(map[string]*viewSession),
	}
	for _, option := range options {
		option(coordinator)
	}

	return coordinator, nil
}

// OpenRequest describes one view to start collecting receipts for.
type OpenRequest struct {
	// ViewID addresses this view's slice in every shared cache.
	ViewID string
	// Target is the bech32 (or raw hex) feed target identifier.
	Target string
	// Relays are the relay URLs to subscribe against.
	Relays []string
	// Renderer receives this view's notifications.
	Renderer zapfeed.FeedRenderer
	// Observer optionally drives infinite scroll; nil disables automatic
	// pagination arming.
	Observer zapfeed.ScrollObserver
}

// viewSession owns the live subscription lifecycle for one open view.
type viewSession struct {
	id       string
	target   zapfeed.Target
	relays   []string
	renderer zapfeed.FeedRenderer
	observer zapfeed.ScrollObserver

	ctx        context.Context
	cancel     context.CancelFunc
	cancelLive zapfeed.CancelFunc
	flusher    *flushScheduler

	eoseSeen atomic.Bool
	enrich   sync.WaitGroup
}

// Open validates the request, decodes the target, and starts the initial
// collection phase. Configuration and decode failures are fatal for the view
// and surface before any subscription opens.
func (c *Coordinator) Open(ctx context.Context, request OpenRequest) error {
	if request.ViewID == "" {
		return fmt.Errorf("open view: %w: empty view id", zapfeed.ErrInvalidConfig)
	}
	if len(request.Relays) == 0 {
		return fmt.Errorf("open view %s: %w: empty relay list", request.ViewID, zapfeed.ErrInvalidConfig)
	}
	if request.Renderer == nil {
		return fmt.Errorf("open view %s: %w: nil renderer", request.ViewID, zapfeed.ErrInvalidConfig)
	}

	target, err := zapfeed.DecodeTarget(request.Target)
	if err != nil {
		return fmt.Errorf("open view %s: %w", request.ViewID, err)
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("open view %s: %w", request.ViewID, err)
	}

	sessionCtx, sessionCancel := context.WithCancel(context.Background())
	session := &viewSession{
		id:       request.ViewID,
		target:   target,
		relays:   append([]string(nil), request.Relays...),
		renderer: request.Renderer,
		observer: request.Observer,
		ctx:      sessionCtx,
		cancel:   sessionCancel,
	}
	session.flusher = newFlushScheduler(c.flushInterval, c.flushMinGap, c.clock, func() {
		session.renderer.BatchUpdate(c.registry.Events.Events(session.id), zapfeed.BufferUpdate)
	})

	c.mu.Lock()
	if _, exists := c.views[request.ViewID]; exists {
		c.mu.Unlock()
		sessionCancel()
		return fmt.Errorf("open view %s: %w", request.ViewID, zapfeed.ErrViewActive)
	}
	c.views[request.ViewID] = session
	c.mu.Unlock()

	filter := target.ReceiptFilter(c.initialLimit)
	cancelLive, err := c.transport.Subscribe(ctx, session.relays, nostr.Filters{filter}, zapfeed.SubscriptionSink{
		OnEvent: func(event *nostr.Event) {
			c.ingest(session, event)
		},
		OnEndOfStream: func() {
			c.finalize(session)
		},
	})
	if err != nil {
		c.mu.Lock()
		delete(c.views, request.ViewID)
		c.mu.Unlock()
		sessionCancel()
		return fmt.Errorf("open view %s subscribe: %w", request.ViewID, err)
	}
	session.cancelLive = cancelLive
	session.flusher.start()

	c.logger.InfoContext(ctx,
		"view opened",
		"view_id", session.id,
		"target_kind", string(target.Kind),
		"relays", len(session.relays),
	)

	return nil
}

// ingest runs every arriving event through dedup, cursor, and notification.
func (c *Coordinator) ingest(session *viewSession, event *nostr.Event) {
	if session.ctx.Err() != nil {
		return
	}

	realTime := session.eoseSeen.Load()
	receipt, err := zapfeed.FromRelayEvent(event, realTime)
	if err != nil {
		c.logger.WarnContext(session.ctx, "dropping malformed relay event", "view_id", session.id, "error", err)
		return
	}

	if !c.registry.Events.AddEvent(session.id, receipt) {
		return
	}
	c.registry.Loads.ObserveEvent(session.id, receipt.CreatedAt)
	session.flusher.markDirty()

	if realTime {
		session.renderer.PrependZap(receipt)
	}

	session.enrich.Add(1)
	go func() {
		defer session.enrich.Done()
		if err := runSafely("enrich receipt", func() error {
			c.enrichReceipt(session, receipt)
			return nil
		}); err != nil {
			c.logger.WarnContext(session.ctx, "receipt enrichment failed", "view_id", session.id, "event_id", receipt.ID, "error", err)
		}
	}()
}

// enrichReceipt resolves the secondary reference and warms the sender
// profile. Both are best-effort: failures leave the receipt rendered without
// reference and the sender anonymous.
func (c *Coordinator) enrichReceipt(session *viewSession, receipt *zapfeed.ReceiptEvent) {
	if c.profiles != nil {
		c.registry.Profiles.Warm(session.ctx, session.relays, []string{receipt.SenderPubKey()}, c.profiles)
	}

	if c.fetcher == nil {
		return
	}
	referenceID, ok := receipt.ReferencedEventID()
	if !ok {
		return
	}

	reference, err := c.registry.References.GetOrFetch(session.ctx, referenceID, func(ctx context.Context) (*zapfeed.ReceiptEvent, error) {
		fetched, fetchErr := c.fetcher.FetchOne(ctx, session.relays, nostr.Filter{IDs: []string{referenceID}})
		if fetchErr != nil {
			return nil, fetchErr
		}
		if fetched == nil {
			return nil, nil
		}
		return zapfeed.FromRelayEvent(fetched, false)
	})
	if err != nil || reference == nil {
		return
	}

	if updated := c.registry.Events.AttachReference(session.id, receipt.ID, reference); updated != nil {
		session.renderer.UpdateZapReference(updated)
	}
}

// finalize ends the backfill phase once the transport reports end-of-stream.
func (c *Coordinator) finalize(session *viewSession) {
	if session.ctx.Err() != nil {
		return
	}
	if session.eoseSeen.Swap(true) {
		return
	}

	c.registry.Loads.MarkInitialComplete(session.id)
	session.flusher.clearDirty()

	events := c.registry.Events.Events(session.id)
	session.renderer.BatchUpdate(events, zapfeed.FullUpdate)
	if len(events) == 0 {
		session.renderer.ShowNoZapsMessage()
	} else if len(events) >= c.autoArmMinimum && session.observer != nil {
		viewID := session.id
		session.observer.Arm(func() {
			if _, err := c.LoadMore(context.Background(), viewID); err != nil {
				c.logger.Warn("scroll-triggered pagination failed", "view_id", viewID, "error", err)
			}
		})
	}

	c.logger.InfoContext(session.ctx,
		"initial collection complete",
		"view_id", session.id,
		"events", len(events),
	)
}

// LoadMore runs one backward pagination batch for the view and reports how
// many receipts were newly accepted.
//
// A zero count is the exhaustion sentinel: the scroll observer is disarmed
// and further batches are refused until the view is reopened. Calling while a
// batch is in flight (or before backfill completes) is a guarded no-op
// returning zero.
func (c *Coordinator) LoadMore(ctx context.Context, viewID string) (int, error) {
	c.mu.Lock()
	session, exists := c.views[viewID]
	c.mu.Unlock()
	if !exists {
		return 0, fmt.Errorf("load more %s: %w", viewID, zapfeed.ErrViewUnknown)
	}

	if !c.registry.Loads.BeginPagination(viewID) {
		return 0, nil
	}
	defer c.registry.Loads.EndPagination(viewID)

	cursor, hasCursor := c.registry.Loads.Cursor(viewID)
	if !hasCursor {
		return 0, nil
	}

	batch, err := c.collectPage(ctx, session, cursor)
	if err != nil {
		// Transport failure or timeout degrades to an exhausted view rather
		// than retrying indefinitely.
		c.logger.WarnContext(ctx, "pagination batch failed", "view_id", viewID, "error", err)
		c.registry.Loads.MarkExhausted(viewID)
		c.disarm(session)
		return 0, nil
	}

	accepted := make([]*zapfeed.ReceiptEvent, 0, len(batch))
	for _, event := range batch {
		receipt, convertErr := zapfeed.FromRelayEvent(event, false)
		if convertErr != nil {
			c.logger.WarnContext(ctx, "dropping malformed pagination event", "view_id", viewID, "error", convertErr)
			continue
		}
		if !c.registry.Events.AddEvent(viewID, receipt) {
			continue
		}
		c.registry.Loads.ObserveEvent(viewID, receipt.CreatedAt)
		accepted = append(accepted, receipt)
	}

	if len(accepted) == 0 {
		c.registry.Loads.MarkExhausted(viewID)
		c.disarm(session)
		return 0, nil
	}

	c.resolveBatch(ctx, session, accepted)
	session.renderer.BatchUpdate(c.registry.Events.Events(viewID), zapfeed.FullUpdate)

	c.logger.InfoContext(ctx,
		"pagination batch merged",
		"view_id", viewID,
		"accepted", len(accepted),
		"cursor", int64(cursor),
	)

	return len(accepted), nil
}

// collectPage opens one bounded subscription below cursor and gathers up to
// pageSize events, ending on batch fill, end-of-stream, or timeout.
func (c *Coordinator) collectPage(ctx context.Context, session *viewSession, cursor nostr.Timestamp) ([]*nostr.Event, error) {
	batchCtx, cancel := context.WithTimeout(ctx, c.paginationTimeout)
	defer cancel()

	filter := session.target.ReceiptFilter(c.pageSize)
	until := cursor
	filter.Until = &until

	var (
		mu     sync.Mutex
		batch  []*nostr.Event
		filled = make(chan struct{})
		eose   = make(chan struct{})
		once   sync.Once
		sealed sync.Once
	)
	cancelSub, err := c.transport.Subscribe(batchCtx, session.relays, nostr.Filters{filter}, zapfeed.SubscriptionSink{
		OnEvent: func(event *nostr.Event) {
			mu.Lock()
			defer mu.Unlock()
			if len(batch) >= c.pageSize {
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.pageSize {
				once.Do(func() { close(filled) })
			}
		},
		OnEndOfStream: func() {
			sealed.Do(func() { close(eose) })
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pagination subscribe: %w", err)
	}
	defer cancelSub()

	select {
	case <-filled:
	case <-eose:
	case <-batchCtx.Done():
		return nil, fmt.Errorf("pagination batch: %w", batchCtx.Err())
	}

	mu.Lock()
	defer mu.Unlock()

	return append([]*nostr.Event(nil), batch...), nil
}

// resolveBatch enriches one pagination batch before it is rendered:
// references resolve under a bounded worker pool and sender profiles warm in
// one batch lookup.
func (c *Coordinator) resolveBatch(ctx context.Context, session *viewSession, receipts []*zapfeed.ReceiptEvent) {
	if c.profiles != nil {
		pubkeys := make([]string, 0, len(receipts))
		for _, receipt := range receipts {
			pubkeys = append(pubkeys, receipt.SenderPubKey())
		}
		c.registry.Profiles.Warm(ctx, session.relays, pubkeys, c.profiles)
	}

	if c.fetcher == nil {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.resolveWorkers)
	for _, receipt := range receipts {
		receipt := receipt
		group.Go(func() error {
			return runSafely("resolve batch reference", func() error {
				referenceID, ok := receipt.ReferencedEventID()
				if !ok {
					return nil
				}
				reference, err := c.registry.References.GetOrFetch(groupCtx, referenceID, func(fetchCtx context.Context) (*zapfeed.ReceiptEvent, error) {
					fetched, fetchErr := c.fetcher.FetchOne(fetchCtx, session.relays, nostr.Filter{IDs: []string{referenceID}})
					if fetchErr != nil {
						return nil, fetchErr
					}
					if fetched == nil {
						return nil, nil
					}
					return zapfeed.FromRelayEvent(fetched, false)
				})
				if err != nil || reference == nil {
					return nil
				}
				c.registry.Events.AttachReference(session.id, receipt.ID, reference)
				return nil
			})
		})
	}
	if err := group.Wait(); err != nil {
		c.logger.WarnContext(ctx, "batch reference resolution incomplete", "view_id", session.id, "error", err)
	}
}

// Close tears the view down: the live subscription, flush scheduler, and
// scroll observer are cancelled synchronously so no late callback can touch a
// disposed view. Cached receipts are deliberately retained for instant
// reopen; only the load state is discarded.
func (c *Coordinator) Close(viewID string) error {
	c.mu.Lock()
	session, exists := c.views[viewID]
	if exists {
		delete(c.views, viewID)
	}
	c.mu.Unlock()
	if !exists {
		return fmt.Errorf("close view %s: %w", viewID, zapfeed.ErrViewUnknown)
	}

	session.cancel()
	if session.cancelLive != nil {
		session.cancelLive()
	}
	session.flusher.stopAndWait()
	c.disarm(session)
	session.enrich.Wait()
	c.registry.Loads.Forget(viewID)

	c.logger.Info("view closed", "view_id", viewID)

	return nil
}

func (c *Coordinator) disarm(session *viewSession) {
	if session.observer != nil {
		session.observer.Disarm()
	}
}
