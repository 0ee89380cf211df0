package feed

import (
	"fmt"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"zapfeed/pkg/zapfeed"
)

func hexID(seed int) string {
	return fmt.Sprintf("%064x", seed)
}

func relayEvent(seed int, createdAt nostr.Timestamp) *nostr.Event {
	return &nostr.Event{
		ID:        hexID(seed),
		PubKey:    hexID(seed + 100_000),
		CreatedAt: createdAt,
		Kind:      nostr.KindZap,
		Content:   fmt.Sprintf("receipt-%d", seed),
	}
}

func receipt(t *testing.T, seed int, createdAt nostr.Timestamp) *zapfeed.ReceiptEvent {
	t.Helper()

	converted, err := zapfeed.FromRelayEvent(relayEvent(seed, createdAt), false)
	if err != nil {
		t.Fatalf("build receipt %d: %v", seed, err)
	}

	return converted
}
