package zapfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// CancelFunc synchronously tears down one live subscription. Calling it more
// than once is a no-op.
type CancelFunc func()

// SubscriptionSink receives decoded relay traffic for one subscription.
//
// OnEvent delivers one event at a time in arrival order, which is not
// necessarily timestamp order. OnEndOfStream fires exactly once, after every
// relay in the subscription has reported exhaustion of stored events.
type SubscriptionSink struct {
	OnEvent       func(event *nostr.Event)
	OnEndOfStream func()
}

// RelayTransport is the external subscribe/fetch collaborator.
//
// Implementations own relay connection management; the engine only consumes
// this contract and never opens sockets itself.
type RelayTransport interface {
	// Subscribe opens one subscription against the given relays.
	//
	// The returned cancel function must stop event delivery synchronously so
	// that late callbacks cannot mutate state for a closed view.
	Subscribe(ctx context.Context, relays []string, filters nostr.Filters, sink SubscriptionSink) (CancelFunc, error)
}

// EventFetcher is the external single-event lookup collaborator used for
// secondary reference resolution.
type EventFetcher interface {
	// FetchOne returns the first event matching filter, or nil when no relay
	// has it.
	FetchOne(ctx context.Context, relays []string, filter nostr.Filter) (*nostr.Event, error)
}

// ProfileFetcher is the external batch profile-metadata collaborator.
type ProfileFetcher interface {
	// FetchProfiles returns metadata keyed by pubkey. Unknown pubkeys are
	// simply absent from the result.
	FetchProfiles(ctx context.Context, relays []string, pubkeys []string) (map[string]*Profile, error)
}

// UpdateKind tags one batched renderer notification.
type UpdateKind string

const (
	// FullUpdate replaces the rendered list with the complete current view.
	FullUpdate UpdateKind = "full"
	// BufferUpdate is a periodic coalesced refresh during collection.
	BufferUpdate UpdateKind = "buffer"
)

// FeedRenderer is the external rendering collaborator for one view.
//
// All methods are fire-and-forget and must be idempotent with respect to
// re-delivery of the same event id.
type FeedRenderer interface {
	// PrependZap renders one live receipt at the top of the list immediately.
	PrependZap(event *ReceiptEvent)
	// BatchUpdate re-renders the list from the given ordered snapshot.
	BatchUpdate(events []*ReceiptEvent, kind UpdateKind)
	// ShowNoZapsMessage renders the empty state after a zero-event backfill.
	ShowNoZapsMessage()
	// UpdateZapReference re-renders one receipt after its secondary reference
	// resolved.
	UpdateZapReference(event *ReceiptEvent)
}

// ScrollObserver is the external infinite-scroll collaborator for one view.
type ScrollObserver interface {
	// Arm installs trigger to fire on scroll proximity. Re-arming replaces
	// the previous trigger.
	Arm(trigger func())
	// Disarm removes the trigger. Disarming an unarmed observer is a no-op.
	Disarm()
}

// Profile is sender metadata resolved from kind-0 events.
type Profile struct {
	// PubKey is the profile owner.
	PubKey string
	// Name is the short handle.
	Name string
	// DisplayName is the preferred human-readable name.
	DisplayName string
	// Picture is the avatar URL.
	Picture string
}

// ParseProfile decodes kind-0 metadata content for one pubkey.
func ParseProfile(pubkey string, content string) (*Profile, error) {
	var metadata struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Picture     string `json:"picture"`
	}
	if err := json.Unmarshal([]byte(content), &metadata); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", pubkey, err)
	}

	return &Profile{
		PubKey:      pubkey,
		Name:        metadata.Name,
		DisplayName: metadata.DisplayName,
		Picture:     metadata.Picture,
	}, nil
}

// BestName returns the preferred display label, or empty when the sender
// should render as anonymous.
func (p *Profile) BestName() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}

	return p.Name
}
