package feed

import (
	"sort"
	"sync"

	"zapfeed/pkg/cache"
	"zapfeed/pkg/zapfeed"
)

// EventStore holds the ordered receipt collection for each view.
//
// Views are independent slices addressed by view id inside one shared bounded
// cache; evicting a cold view drops its whole collection at once. After any
// mutation a view's collection is sorted by created_at descending.
type EventStore struct {
	mu    sync.Mutex
	views *cache.LRU[string, []*zapfeed.ReceiptEvent]
}

// NewEventStore creates a store bounded to maxViews retained views.
func NewEventStore(maxViews int) *EventStore {
	return &EventStore{
		views: cache.NewLRU[string, []*zapfeed.ReceiptEvent](maxViews),
	}
}

// AddEvent inserts event into the view's collection.
//
// It returns false when the event is a duplicate: either an id already seen
// by this view, or an event whose (kind, pubkey, content, created_at)
// identity matches an existing entry under a drifted relay-assigned id.
func (s *EventStore) AddEvent(viewID string, event *zapfeed.ReceiptEvent) bool {
	if event == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, _ := s.views.Get(viewID)
	identity := event.Identity()
	for _, existing := range events {
		if existing.ID == event.ID || existing.Identity() == identity {
			return false
		}
	}

	events = append(events, event)
	sortDescending(events)
	s.views.Set(viewID, events)

	return true
}

// Events returns the view's current ordered collection. The returned slice is
// a snapshot the caller may keep; the receipts themselves are shared and
// immutable.
func (s *EventStore) Events(viewID string) []*zapfeed.ReceiptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, exists := s.views.Get(viewID)
	if !exists {
		return nil
	}

	return append([]*zapfeed.ReceiptEvent(nil), events...)
}

// Count returns the number of receipts currently held for the view.
func (s *EventStore) Count(viewID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, _ := s.views.Peek(viewID)

	return len(events)
}

// SetEvents bulk-replaces the view's collection.
//
// With maintainOrder set, existing receipts absent from events are preserved
// and the two sets are unioned (by id) before sorting, so an incremental
// merge cannot silently drop data.
func (s *EventStore) SetEvents(viewID string, events []*zapfeed.ReceiptEvent, maintainOrder bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]*zapfeed.ReceiptEvent, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, event := range events {
		if event == nil || seen[event.ID] {
			continue
		}
		seen[event.ID] = true
		merged = append(merged, event)
	}

	if maintainOrder {
		existing, _ := s.views.Get(viewID)
		for _, event := range existing {
			if seen[event.ID] {
				continue
			}
			seen[event.ID] = true
			merged = append(merged, event)
		}
	}

	sortDescending(merged)
	s.views.Set(viewID, merged)
}

// AttachReference records the resolved secondary event for one receipt and
// returns the updated receipt, or nil when the view no longer holds it.
func (s *EventStore) AttachReference(viewID string, eventID string, reference *zapfeed.ReceiptEvent) *zapfeed.ReceiptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, exists := s.views.Peek(viewID)
	if !exists {
		return nil
	}
	for _, event := range events {
		if event.ID == eventID {
			event.Reference = reference
			return event
		}
	}

	return nil
}

// DropView removes one view's collection outright. Normal teardown retains
// cached receipts for instant reopen; this exists for explicit invalidation.
func (s *EventStore) DropView(viewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.views.Delete(viewID)
}

// Clear removes every view.
func (s *EventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.views.Clear()
}

func sortDescending(events []*zapfeed.ReceiptEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
}
