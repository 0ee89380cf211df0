package feed

import (
	"math/rand"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"zapfeed/pkg/zapfeed"
)

func TestAddEventDedupByID(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	first := receipt(t, 1, 1000)

	if !store.AddEvent("view", first) {
		t.Fatal("first add rejected")
	}
	if store.AddEvent("view", receipt(t, 1, 1000)) {
		t.Fatal("same id accepted twice")
	}
	if count := store.Count("view"); count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestAddEventDedupByIdentity(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	first := receipt(t, 1, 1000)
	drifted := receipt(t, 2, 1000)
	drifted.PubKey = first.PubKey
	drifted.Content = first.Content

	if !store.AddEvent("view", first) {
		t.Fatal("first add rejected")
	}
	if store.AddEvent("view", drifted) {
		t.Fatal("drifted-id duplicate accepted")
	}
	if count := store.Count("view"); count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestEventsSortedDescending(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	timestamps := []nostr.Timestamp{500, 1500, 100, 900, 1200, 700}
	rand.Shuffle(len(timestamps), func(i, j int) {
		timestamps[i], timestamps[j] = timestamps[j], timestamps[i]
	})
	for seed, createdAt := range timestamps {
		if !store.AddEvent("view", receipt(t, seed+1, createdAt)) {
			t.Fatalf("add %d rejected", createdAt)
		}
	}

	events := store.Events("view")
	if len(events) != len(timestamps) {
		t.Fatalf("len = %d, want %d", len(events), len(timestamps))
	}
	for i := 1; i < len(events); i++ {
		if events[i-1].CreatedAt < events[i].CreatedAt {
			t.Fatalf("order violated at %d: %d before %d", i, events[i-1].CreatedAt, events[i].CreatedAt)
		}
	}
}

func TestEventsUnknownViewIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	if events := store.Events("missing"); len(events) != 0 {
		t.Fatalf("unknown view returned %d events", len(events))
	}
}

func TestSetEventsMaintainOrderUnions(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	existing := receipt(t, 1, 900)
	store.AddEvent("view", existing)
	store.AddEvent("view", receipt(t, 2, 800))

	replacement := []*zapfeed.ReceiptEvent{receipt(t, 3, 1000), receipt(t, 2, 800)}
	store.SetEvents("view", replacement, true)

	events := store.Events("view")
	if len(events) != 3 {
		t.Fatalf("union len = %d, want 3", len(events))
	}
	if events[0].CreatedAt != 1000 || events[2].CreatedAt != 800 {
		t.Fatalf("union not sorted: %d..%d", events[0].CreatedAt, events[2].CreatedAt)
	}
}

func TestSetEventsReplaceDropsExisting(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	store.AddEvent("view", receipt(t, 1, 900))

	store.SetEvents("view", []*zapfeed.ReceiptEvent{receipt(t, 2, 1000)}, false)

	events := store.Events("view")
	if len(events) != 1 || events[0].ID != hexID(2) {
		t.Fatalf("replace kept stale events: %v", events)
	}
}

func TestAttachReference(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	target := receipt(t, 1, 1000)
	store.AddEvent("view", target)

	reference := receipt(t, 2, 990)
	updated := store.AttachReference("view", target.ID, reference)
	if updated == nil || updated.Reference != reference {
		t.Fatal("reference not attached")
	}

	if store.AttachReference("view", hexID(99), reference) != nil {
		t.Fatal("attach to unknown event must report nil")
	}
	if store.AttachReference("other", target.ID, reference) != nil {
		t.Fatal("attach to unknown view must report nil")
	}
}

func TestViewsAreIndependent(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	shared := receipt(t, 1, 1000)
	if !store.AddEvent("a", shared) {
		t.Fatal("add to view a rejected")
	}
	if !store.AddEvent("b", shared) {
		t.Fatal("dedup must not cross views")
	}
}

func TestStoreEvictsColdViews(t *testing.T) {
	t.Parallel()

	store := NewEventStore(2)
	store.AddEvent("a", receipt(t, 1, 1000))
	store.AddEvent("b", receipt(t, 2, 1000))
	store.AddEvent("c", receipt(t, 3, 1000))

	if len(store.Events("a")) != 0 {
		t.Fatal("coldest view survived beyond capacity")
	}
	if len(store.Events("b")) != 1 || len(store.Events("c")) != 1 {
		t.Fatal("warm views evicted")
	}
}
