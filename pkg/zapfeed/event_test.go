package zapfeed

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func hexID(seed int) string {
	return fmt.Sprintf("%064x", seed)
}

func relayEvent(seed int, createdAt nostr.Timestamp) *nostr.Event {
	return &nostr.Event{
		ID:        hexID(seed),
		PubKey:    hexID(seed + 1000),
		CreatedAt: createdAt,
		Kind:      nostr.KindZap,
		Content:   fmt.Sprintf("receipt-%d", seed),
	}
}

func TestFromRelayEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   *nostr.Event
		wantErr bool
	}{
		{
			name:  "valid receipt",
			event: relayEvent(1, 1000),
		},
		{
			name:    "nil event",
			event:   nil,
			wantErr: true,
		},
		{
			name: "short id",
			event: &nostr.Event{
				ID:        "abc",
				PubKey:    hexID(2),
				CreatedAt: 1000,
				Kind:      nostr.KindZap,
			},
			wantErr: true,
		},
		{
			name: "uppercase id rejected",
			event: &nostr.Event{
				ID:        "ABCDEF" + hexID(3)[6:],
				PubKey:    hexID(2),
				CreatedAt: 1000,
				Kind:      nostr.KindZap,
			},
			wantErr: true,
		},
		{
			name: "missing created_at",
			event: &nostr.Event{
				ID:     hexID(4),
				PubKey: hexID(5),
				Kind:   nostr.KindZap,
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			receipt, err := FromRelayEvent(testCase.event, true)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidEvent) {
					t.Fatalf("error = %v, want ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !receipt.RealTime {
				t.Fatal("real-time provenance flag lost")
			}
			if receipt.ID != testCase.event.ID {
				t.Fatalf("id = %q, want %q", receipt.ID, testCase.event.ID)
			}
		})
	}
}

func TestIdentityMatchesDriftedIDs(t *testing.T) {
	t.Parallel()

	first := relayEvent(1, 1000)
	second := relayEvent(2, 1000)
	second.PubKey = first.PubKey
	second.Content = first.Content

	receiptA, err := FromRelayEvent(first, false)
	if err != nil {
		t.Fatalf("first receipt: %v", err)
	}
	receiptB, err := FromRelayEvent(second, false)
	if err != nil {
		t.Fatalf("second receipt: %v", err)
	}

	if receiptA.ID == receiptB.ID {
		t.Fatal("test needs distinct ids")
	}
	if receiptA.Identity() != receiptB.Identity() {
		t.Fatal("identical (kind, pubkey, content, created_at) must share identity")
	}
}

func TestReferencedEventID(t *testing.T) {
	t.Parallel()

	receipt := &ReceiptEvent{Tags: nostr.Tags{{"e", hexID(7)}}}
	id, ok := receipt.ReferencedEventID()
	if !ok || id != hexID(7) {
		t.Fatalf("reference = %q ok=%v, want %q true", id, ok, hexID(7))
	}

	bare := &ReceiptEvent{}
	if _, ok := bare.ReferencedEventID(); ok {
		t.Fatal("receipt without e tag must report no reference")
	}

	malformed := &ReceiptEvent{Tags: nostr.Tags{{"e", "not-hex"}}}
	if _, ok := malformed.ReferencedEventID(); ok {
		t.Fatal("malformed e tag must report no reference")
	}
}

func TestSenderPubKey(t *testing.T) {
	t.Parallel()

	issuer := hexID(10)
	sender := hexID(11)

	tagged := &ReceiptEvent{PubKey: issuer, Tags: nostr.Tags{{"P", sender}}}
	if got := tagged.SenderPubKey(); got != sender {
		t.Fatalf("sender = %q, want %q", got, sender)
	}

	untagged := &ReceiptEvent{PubKey: issuer}
	if got := untagged.SenderPubKey(); got != issuer {
		t.Fatalf("sender = %q, want issuer %q", got, issuer)
	}
}

func TestAmountSats(t *testing.T) {
	tests := []struct {
		name string
		tags nostr.Tags
		want int64
	}{
		{
			name: "bolt11 micro",
			tags: nostr.Tags{{"bolt11", "lnbc10u1pexample"}},
			want: 1000,
		},
		{
			name: "bolt11 milli",
			tags: nostr.Tags{{"bolt11", "lnbc2m1pexample"}},
			want: 200_000,
		},
		{
			name: "bolt11 nano rounds down",
			tags: nostr.Tags{{"bolt11", "lnbc15n1pexample"}},
			want: 1,
		},
		{
			name: "amount tag fallback millisats",
			tags: nostr.Tags{{"amount", "21000"}},
			want: 21,
		},
		{
			name: "bolt11 wins over amount tag",
			tags: nostr.Tags{{"amount", "999000"}, {"bolt11", "lnbc10u1pexample"}},
			want: 1000,
		},
		{
			name: "unparseable reports zero",
			tags: nostr.Tags{{"bolt11", "garbage"}},
			want: 0,
		},
		{
			name: "no tags reports zero",
			want: 0,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			receipt := &ReceiptEvent{Tags: testCase.tags}
			if got := receipt.AmountSats(); got != testCase.want {
				t.Fatalf("amount = %d, want %d", got, testCase.want)
			}
		})
	}
}
