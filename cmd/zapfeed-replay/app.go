// Command zapfeed-replay is a development harness: it replays a JSONL file of
// relay events through the feed engine with an in-process transport, printing
// every renderer notification. It exists to exercise the full
// backfill/live/pagination path without network relays.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"zapfeed/pkg/feed"
	"zapfeed/pkg/zapfeed"
)

const replayRelayURL = "replay://local"

func run() error {
	var (
		eventsPath = flag.String("events", "", "path to a JSONL file of relay events")
		target     = flag.String("target", "", "feed target (npub, nprofile, note, nevent, naddr, or hex pubkey)")
		viewID     = flag.String("view", "replay", "view id for the replayed feed")
		pageSize   = flag.Int("page", 25, "pagination batch size")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	if *eventsPath == "" || *target == "" {
		flag.Usage()
		return fmt.Errorf("load config: %w: -events and -target are required", zapfeed.ErrInvalidConfig)
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	transport, err := loadReplayTransport(*eventsPath)
	if err != nil {
		return fmt.Errorf("load replay events: %w", err)
	}

	registry := feed.NewRegistry(feed.WithRegistryLogger(logger))
	coordinator, err := feed.NewCoordinator(transport, transport, nil, registry,
		feed.WithLogger(logger),
		feed.WithPageSize(*pageSize),
	)
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	renderer := newConsoleRenderer(logger)
	request := feed.OpenRequest{
		ViewID:   *viewID,
		Target:   *target,
		Relays:   []string{replayRelayURL},
		Renderer: renderer,
	}
	if err := coordinator.Open(context.Background(), request); err != nil {
		return fmt.Errorf("open replay view: %w", err)
	}

	select {
	case <-renderer.initialDone:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("replay: initial collection did not finish")
	}

	for {
		loaded, err := coordinator.LoadMore(context.Background(), *viewID)
		if err != nil {
			return fmt.Errorf("replay pagination: %w", err)
		}
		if loaded == 0 {
			break
		}
	}

	return coordinator.Close(*viewID)
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// replayTransport serves subscriptions and single-event fetches from an
// in-memory event list loaded from disk.
type replayTransport struct {
	mu     sync.Mutex
	events []*nostr.Event
}

func loadReplayTransport(path string) (*replayTransport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	transport := &replayTransport{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var event nostr.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		transport.events = append(transport.events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return transport, nil
}

// Subscribe delivers matching stored events newest-first, then reports
// end-of-stream. There is no live phase in a replay.
func (t *replayTransport) Subscribe(ctx context.Context, _ []string, filters nostr.Filters, sink zapfeed.SubscriptionSink) (zapfeed.CancelFunc, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("replay subscribe: empty filters")
	}

	matched := t.match(filters)
	stop := make(chan struct{})
	var stopOnce sync.Once
	go func() {
		for _, event := range matched {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			default:
			}
			if sink.OnEvent != nil {
				sink.OnEvent(event)
			}
		}
		select {
		case <-ctx.Done():
		case <-stop:
		default:
			if sink.OnEndOfStream != nil {
				sink.OnEndOfStream()
			}
		}
	}()

	return func() {
		stopOnce.Do(func() { close(stop) })
	}, nil
}

// FetchOne serves reference lookups from the same stored events.
func (t *replayTransport) FetchOne(_ context.Context, _ []string, filter nostr.Filter) (*nostr.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, event := range t.events {
		if filter.Matches(event) {
			return event, nil
		}
	}

	return nil, nil
}

func (t *replayTransport) match(filters nostr.Filters) []*nostr.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var matched []*nostr.Event
	for _, event := range t.events {
		if filters.Match(event) {
			matched = append(matched, event)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	limit := 0
	for _, filter := range filters {
		if filter.Limit > limit {
			limit = filter.Limit
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched
}

// consoleRenderer logs every notification the engine emits.
type consoleRenderer struct {
	logger      *slog.Logger
	initialDone chan struct{}
	doneOnce    sync.Once
}

func newConsoleRenderer(logger *slog.Logger) *consoleRenderer {
	return &consoleRenderer{
		logger:      logger,
		initialDone: make(chan struct{}),
	}
}

func (r *consoleRenderer) PrependZap(event *zapfeed.ReceiptEvent) {
	r.logger.Info("prepend zap", "event_id", event.ID, "sats", event.AmountSats())
}

func (r *consoleRenderer) BatchUpdate(events []*zapfeed.ReceiptEvent, kind zapfeed.UpdateKind) {
	r.logger.Info("batch update", "kind", string(kind), "events", len(events))
	if kind == zapfeed.FullUpdate {
		r.doneOnce.Do(func() { close(r.initialDone) })
	}
}

func (r *consoleRenderer) ShowNoZapsMessage() {
	r.logger.Info("no zaps yet")
	r.doneOnce.Do(func() { close(r.initialDone) })
}

func (r *consoleRenderer) UpdateZapReference(event *zapfeed.ReceiptEvent) {
	reference := ""
	if event.Reference != nil {
		reference = event.Reference.ID
	}
	r.logger.Info("zap reference resolved", "event_id", event.ID, "reference_id", reference)
}
