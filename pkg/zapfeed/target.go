package zapfeed

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// TargetKind selects which entity a view collects receipts for.
type TargetKind string

const (
	// TargetProfile collects receipts zapped to one profile.
	TargetProfile TargetKind = "profile"
	// TargetNote collects receipts zapped to one note.
	TargetNote TargetKind = "note"
	// TargetEntity collects receipts zapped to one addressable event.
	TargetEntity TargetKind = "entity"
)

// Target is a decoded feed target identifier.
type Target struct {
	// Kind selects which pointer fields are populated.
	Kind TargetKind
	// PubKey is the profile key for TargetProfile, or the addressable-event
	// author for TargetEntity.
	PubKey string
	// EventID is the zapped note id for TargetNote.
	EventID string
	// EventKind is the addressable-event kind for TargetEntity.
	EventKind int
	// Identifier is the addressable-event d tag for TargetEntity.
	Identifier string
	// RelayHints carries relays embedded in the identifier when present.
	RelayHints []string
}

// DecodeTarget decodes a bech32 feed target (npub, nprofile, note, nevent,
// naddr) or a raw 64-hex public key.
func DecodeTarget(code string) (Target, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Target{}, fmt.Errorf("decode target: %w: empty identifier", ErrDecodeTarget)
	}
	if isHex(code, 64) {
		return Target{Kind: TargetProfile, PubKey: code}, nil
	}

	prefix, value, err := nip19.Decode(code)
	if err != nil {
		return Target{}, fmt.Errorf("decode target %q: %w: %w", code, ErrDecodeTarget, err)
	}

	switch prefix {
	case "npub":
		pubkey, ok := value.(string)
		if !ok {
			return Target{}, fmt.Errorf("decode target %q: %w: unexpected npub payload", code, ErrDecodeTarget)
		}
		return Target{Kind: TargetProfile, PubKey: pubkey}, nil
	case "nprofile":
		pointer, ok := value.(nostr.ProfilePointer)
		if !ok {
			return Target{}, fmt.Errorf("decode target %q: %w: unexpected nprofile payload", code, ErrDecodeTarget)
		}
		return Target{Kind: TargetProfile, PubKey: pointer.PublicKey, RelayHints: pointer.Relays}, nil
	case "note":
		id, ok := value.(string)
		if !ok {
			return Target{}, fmt.Errorf("decode target %q: %w: unexpected note payload", code, ErrDecodeTarget)
		}
		return Target{Kind: TargetNote, EventID: id}, nil
	case "nevent":
		pointer, ok := value.(nostr.EventPointer)
		if !ok {
			return Target{}, fmt.Errorf("decode target %q: %w: unexpected nevent payload", code, ErrDecodeTarget)
		}
		return Target{Kind: TargetNote, EventID: pointer.ID, PubKey: pointer.Author, RelayHints: pointer.Relays}, nil
	case "naddr":
		pointer, ok := value.(nostr.EntityPointer)
		if !ok {
			return Target{}, fmt.Errorf("decode target %q: %w: unexpected naddr payload", code, ErrDecodeTarget)
		}
		return Target{
			Kind:       TargetEntity,
			PubKey:     pointer.PublicKey,
			EventKind:  pointer.Kind,
			Identifier: pointer.Identifier,
			RelayHints: pointer.Relays,
		}, nil
	default:
		return Target{}, fmt.Errorf("decode target %q: %w: unsupported prefix %q", code, ErrDecodeTarget, prefix)
	}
}

// Validate checks that the decoded pointer fields are coherent.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetProfile:
		if !isHex(t.PubKey, 64) {
			return fmt.Errorf("%w: profile target needs 64-hex pubkey", ErrDecodeTarget)
		}
	case TargetNote:
		if !isHex(t.EventID, 64) {
			return fmt.Errorf("%w: note target needs 64-hex event id", ErrDecodeTarget)
		}
	case TargetEntity:
		if !isHex(t.PubKey, 64) || t.Identifier == "" {
			return fmt.Errorf("%w: entity target needs pubkey and identifier", ErrDecodeTarget)
		}
	default:
		return fmt.Errorf("%w: unsupported target kind %q", ErrDecodeTarget, t.Kind)
	}

	return nil
}

// ReceiptFilter builds the zap-receipt subscription filter for this target.
func (t Target) ReceiptFilter(limit int) nostr.Filter {
	filter := nostr.Filter{
		Kinds: []int{nostr.KindZap},
		Tags:  nostr.TagMap{},
		Limit: limit,
	}

	switch t.Kind {
	case TargetProfile:
		filter.Tags["p"] = []string{t.PubKey}
	case TargetNote:
		filter.Tags["e"] = []string{t.EventID}
	case TargetEntity:
		filter.Tags["a"] = []string{fmt.Sprintf("%d:%s:%s", t.EventKind, t.PubKey, t.Identifier)}
	}

	return filter
}
