package feed

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"zapfeed/pkg/cache"
)

// ViewState is a snapshot of one view's pagination state.
type ViewState struct {
	// InitialFetchComplete reports whether the backfill phase finished.
	InitialFetchComplete bool
	// LastEventTime is the minimum created_at accepted so far; only valid
	// when HasCursor is set.
	LastEventTime nostr.Timestamp
	// HasCursor reports whether any event has been accepted yet.
	HasCursor bool
	// Loading reports an in-flight pagination batch.
	Loading bool
	// Exhausted reports that a pagination batch accepted zero events; further
	// pagination for this view is refused.
	Exhausted bool
	// Count is the monotonic accepted-event counter.
	Count int
}

// LoadTracker owns per-view pagination state.
//
// States are created lazily on first access and mutated only through the
// coordinator; everything else reads snapshots.
type LoadTracker struct {
	mu     sync.Mutex
	states *cache.LRU[string, *ViewState]
}

// NewLoadTracker creates a tracker bounded to maxViews retained states.
func NewLoadTracker(maxViews int) *LoadTracker {
	return &LoadTracker{
		states: cache.NewLRU[string, *ViewState](maxViews),
	}
}

// State returns a snapshot of the view's state, creating it when absent.
func (t *LoadTracker) State(viewID string) ViewState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return *t.stateLocked(viewID)
}

// ObserveEvent records one accepted event: the cursor only ever moves
// backward and the counter only ever grows.
func (t *LoadTracker) ObserveEvent(viewID string, createdAt nostr.Timestamp) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(viewID)
	if !state.HasCursor || createdAt < state.LastEventTime {
		state.LastEventTime = createdAt
		state.HasCursor = true
	}
	state.Count++
}

// Cursor returns the backward-pagination bound for the view.
func (t *LoadTracker) Cursor(viewID string) (nostr.Timestamp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(viewID)

	return state.LastEventTime, state.HasCursor
}

// MarkInitialComplete ends the backfill phase for the view.
func (t *LoadTracker) MarkInitialComplete(viewID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateLocked(viewID).InitialFetchComplete = true
}

// BeginPagination attempts to claim the pagination slot for the view.
//
// It returns false when the initial fetch has not completed, no cursor
// exists, a batch is already in flight, or the view is exhausted. A true
// return must always be paired with EndPagination.
func (t *LoadTracker) BeginPagination(viewID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(viewID)
	if !state.InitialFetchComplete || !state.HasCursor || state.Loading || state.Exhausted {
		return false
	}
	state.Loading = true

	return true
}

// EndPagination releases the pagination slot. It always clears the loading
// flag: a stuck flag would silently disable all further pagination.
func (t *LoadTracker) EndPagination(viewID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateLocked(viewID).Loading = false
}

// MarkExhausted records that backward pagination found nothing further.
func (t *LoadTracker) MarkExhausted(viewID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateLocked(viewID).Exhausted = true
}

// Forget discards the view's state on teardown.
func (t *LoadTracker) Forget(viewID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states.Delete(viewID)
}

// Clear discards every view's state.
func (t *LoadTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states.Clear()
}

func (t *LoadTracker) stateLocked(viewID string) *ViewState {
	if state, exists := t.states.Get(viewID); exists {
		return state
	}
	state := &ViewState{}
	t.states.Set(viewID, state)

	return state
}
