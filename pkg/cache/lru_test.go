package cache

import (
	"fmt"
	"testing"
)

func TestLRUBound(t *testing.T) {
	t.Parallel()

	const capacity = 8
	lru := NewLRU[string, int](capacity)
	for i := 0; i < capacity+1; i++ {
		lru.Set(fmt.Sprintf("key-%d", i), i)
	}

	if lru.Len() != capacity {
		t.Fatalf("len = %d, want %d", lru.Len(), capacity)
	}
	if lru.Has("key-0") {
		t.Fatal("first inserted key survived beyond capacity")
	}
	for i := 1; i <= capacity; i++ {
		if !lru.Has(fmt.Sprintf("key-%d", i)) {
			t.Fatalf("key-%d missing", i)
		}
	}
}

func TestLRUGetTouchesRecency(t *testing.T) {
	t.Parallel()

	lru := NewLRU[string, int](2)
	lru.Set("a", 1)
	lru.Set("b", 2)
	if _, found := lru.Get("a"); !found {
		t.Fatal("a missing before eviction")
	}
	lru.Set("c", 3)

	if lru.Has("b") {
		t.Fatal("b should be evicted as least recently touched")
	}
	if !lru.Has("a") || !lru.Has("c") {
		t.Fatal("a and c should remain")
	}
}

func TestLRUOverwriteDoesNotEvict(t *testing.T) {
	t.Parallel()

	lru := NewLRU[string, int](2)
	lru.Set("a", 1)
	lru.Set("b", 2)
	lru.Set("a", 10)

	if lru.Len() != 2 {
		t.Fatalf("len = %d, want 2", lru.Len())
	}
	value, found := lru.Get("a")
	if !found || value != 10 {
		t.Fatalf("a = %d found=%v, want 10 true", value, found)
	}
	if !lru.Has("b") {
		t.Fatal("overwrite must not evict the other key")
	}
}

func TestLRUPeekDoesNotTouch(t *testing.T) {
	t.Parallel()

	lru := NewLRU[string, int](2)
	lru.Set("a", 1)
	lru.Set("b", 2)
	if _, found := lru.Peek("a"); !found {
		t.Fatal("peek a missing")
	}
	lru.Set("c", 3)

	if lru.Has("a") {
		t.Fatal("peek must not refresh recency; a should be evicted")
	}
}

func TestLRUDeleteAndClear(t *testing.T) {
	t.Parallel()

	lru := NewLRU[string, int](4)
	lru.Set("a", 1)
	lru.Set("b", 2)

	lru.Delete("a")
	if lru.Has("a") {
		t.Fatal("a survived delete")
	}
	lru.Delete("missing")

	lru.Clear()
	if lru.Len() != 0 {
		t.Fatalf("len after clear = %d, want 0", lru.Len())
	}

	lru.Set("d", 4)
	if value, found := lru.Get("d"); !found || value != 4 {
		t.Fatal("cache unusable after clear")
	}
}

func TestLRUZeroCapacityFallsBack(t *testing.T) {
	t.Parallel()

	lru := NewLRU[int, int](0)
	for i := 0; i < 32; i++ {
		lru.Set(i, i)
	}
	if lru.Len() != 32 {
		t.Fatalf("len = %d, want 32", lru.Len())
	}
}
