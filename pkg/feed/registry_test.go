package feed

import (
	"context"
	"testing"

	"zapfeed/pkg/zapfeed"
)

func TestRegistryClearAllEmptiesEveryCache(t *testing.T) {
	registry := NewRegistry(WithMaxViews(4))

	registry.Events.AddEvent("view", receipt(t, 1, 1000))
	registry.Loads.ObserveEvent("view", 1000)
	reference := receipt(t, 2, 900)
	if _, err := registry.References.GetOrFetch(context.Background(), reference.ID, func(context.Context) (*zapfeed.ReceiptEvent, error) {
		return reference, nil
	}); err != nil {
		t.Fatalf("seed resolver: %v", err)
	}
	registry.Profiles.Warm(context.Background(), nil, []string{hexID(3)}, &stubProfileFetcher{
		profiles: map[string]*zapfeed.Profile{hexID(3): {PubKey: hexID(3), Name: "carol"}},
	})

	registry.ClearAll()

	if count := registry.Events.Count("view"); count != 0 {
		t.Fatalf("events after clear = %d, want 0", count)
	}
	if registry.Loads.State("view").HasCursor {
		t.Fatal("load state survived clear")
	}
	if _, cached := registry.References.Peek(reference.ID); cached {
		t.Fatal("resolved reference survived clear")
	}
	if _, found := registry.Profiles.Profile(hexID(3)); found {
		t.Fatal("profile survived clear")
	}
}

func TestRegistryViewsAreIndependent(t *testing.T) {
	registry := NewRegistry(WithMaxViews(4))

	registry.Events.AddEvent("a", receipt(t, 1, 1000))
	registry.Events.AddEvent("b", receipt(t, 2, 900))
	registry.Events.DropView("a")

	if count := registry.Events.Count("a"); count != 0 {
		t.Fatalf("dropped view count = %d, want 0", count)
	}
	if count := registry.Events.Count("b"); count != 1 {
		t.Fatalf("surviving view count = %d, want 1", count)
	}
}
