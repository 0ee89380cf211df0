package zapfeed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// ReceiptEvent is one immutable zap receipt observed for a view.
//
// All fields except Reference are fixed at ingestion time. Reference is
// attached exactly once by the event store after asynchronous resolution of
// the zapped note; consumers must treat everything else as read-only.
type ReceiptEvent struct {
	// ID is the content-addressed 64-hex event identifier.
	ID string
	// PubKey is the hex public key of the issuing relay client.
	PubKey string
	// CreatedAt is the receipt timestamp in unix seconds.
	CreatedAt nostr.Timestamp
	// Kind is the protocol event-type tag.
	Kind int
	// Content is the opaque receipt payload.
	Content string
	// Tags carries the ordered receipt annotations.
	Tags nostr.Tags
	// Reference is the zapped secondary event, attached after async resolution.
	Reference *ReceiptEvent
	// RealTime reports whether the receipt arrived on the live stream rather
	// than during backfill.
	RealTime bool
}

// Identity keys two receipts that differ in id but describe the same logical
// receipt. Relays occasionally re-assign ids on rebroadcast, so the store
// treats matching identities as duplicates.
type Identity struct {
	Kind      int
	PubKey    string
	Content   string
	CreatedAt nostr.Timestamp
}

// FromRelayEvent converts one decoded relay event into a receipt record.
//
// realTime marks provenance: true for live-stream arrivals, false for
// backfill and pagination results.
func FromRelayEvent(event *nostr.Event, realTime bool) (*ReceiptEvent, error) {
	if event == nil {
		return nil, fmt.Errorf("receipt from relay event: %w: nil event", ErrInvalidEvent)
	}

	receipt := &ReceiptEvent{
		ID:        event.ID,
		PubKey:    event.PubKey,
		CreatedAt: event.CreatedAt,
		Kind:      event.Kind,
		Content:   event.Content,
		Tags:      append(nostr.Tags(nil), event.Tags...),
		RealTime:  realTime,
	}
	if err := receipt.Validate(); err != nil {
		return nil, fmt.Errorf("receipt from relay event: %w", err)
	}

	return receipt, nil
}

// Validate checks receipt invariants.
func (e *ReceiptEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil receipt", ErrInvalidEvent)
	}
	if !isHex(e.ID, 64) {
		return fmt.Errorf("%w: id %q is not 64-hex", ErrInvalidEvent, e.ID)
	}
	if !isHex(e.PubKey, 64) {
		return fmt.Errorf("%w: pubkey %q is not 64-hex", ErrInvalidEvent, e.PubKey)
	}
	if e.CreatedAt <= 0 {
		return fmt.Errorf("%w: missing created_at", ErrInvalidEvent)
	}
	if e.Kind < 0 {
		return fmt.Errorf("%w: negative kind %d", ErrInvalidEvent, e.Kind)
	}

	return nil
}

// Identity returns the secondary dedup identity for this receipt.
func (e *ReceiptEvent) Identity() Identity {
	return Identity{
		Kind:      e.Kind,
		PubKey:    e.PubKey,
		Content:   e.Content,
		CreatedAt: e.CreatedAt,
	}
}

// ReferencedEventID returns the id of the zapped note from the first e tag.
//
// When the receipt carries no e tag, ok is false and the receipt renders
// without a secondary reference.
func (e *ReceiptEvent) ReferencedEventID() (id string, ok bool) {
	tag := e.Tags.GetFirst([]string{"e"})
	if tag == nil {
		return "", false
	}
	value := tag.Value()
	if !isHex(value, 64) {
		return "", false
	}

	return value, true
}

// SenderPubKey returns the zap sender from the capital-P tag when present,
// falling back to the receipt issuer.
func (e *ReceiptEvent) SenderPubKey() string {
	if tag := e.Tags.GetFirst([]string{"P"}); tag != nil && isHex(tag.Value(), 64) {
		return tag.Value()
	}

	return e.PubKey
}

// AmountSats returns the zapped amount in satoshis.
//
// The bolt11 tag is authoritative; the amount tag of the embedded zap
// request (millisats) is the fallback. Unparseable receipts report zero.
func (e *ReceiptEvent) AmountSats() int64 {
	if tag := e.Tags.GetFirst([]string{"bolt11"}); tag != nil {
		if sats := parseBolt11AmountSats(tag.Value()); sats > 0 {
			return sats
		}
	}
	if tag := e.Tags.GetFirst([]string{"amount"}); tag != nil {
		millisats, err := strconv.ParseInt(tag.Value(), 10, 64)
		if err == nil && millisats > 0 {
			return millisats / 1000
		}
	}

	return 0
}

var bolt11AmountPattern = regexp.MustCompile(`^ln(?:bc|tb|bcrt)(\d+)([munp])?`)

// parseBolt11AmountSats extracts the satoshi amount encoded in a bolt11
// invoice human-readable part. Returns 0 when no amount can be parsed.
func parseBolt11AmountSats(invoice string) int64 {
	matches := bolt11AmountPattern.FindStringSubmatch(strings.ToLower(invoice))
	if len(matches) < 2 {
		return 0
	}

	amount, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0
	}

	multiplier := ""
	if len(matches) >= 3 {
		multiplier = matches[2]
	}
	switch multiplier {
	case "m":
		return amount * 100_000
	case "u":
		return amount * 100
	case "n":
		return amount / 10
	case "p":
		return amount / 10_000
	default:
		return amount * 100_000_000
	}
}

func isHex(value string, length int) bool {
	if len(value) != length {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}

	return true
}
