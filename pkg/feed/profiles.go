package feed

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"zapfeed/pkg/cache"
	"zapfeed/pkg/zapfeed"
)

// ProfileDirectory caches sender metadata keyed by pubkey.
//
// Lookups that fail or return nothing leave the sender anonymous; a profile
// fetch error never surfaces past this directory.
type ProfileDirectory struct {
	logger   *slog.Logger
	profiles *cache.LRU[string, *zapfeed.Profile]
	flight   singleflight.Group
}

// NewProfileDirectory creates a directory bounded to capacity profiles.
func NewProfileDirectory(capacity int, logger *slog.Logger) *ProfileDirectory {
	if logger == nil {
		logger = slog.Default()
	}

	return &ProfileDirectory{
		logger:   logger,
		profiles: cache.NewLRU[string, *zapfeed.Profile](capacity),
	}
}

// Profile returns cached metadata for one pubkey. A false return renders the
// sender as anonymous.
func (d *ProfileDirectory) Profile(pubkey string) (*zapfeed.Profile, bool) {
	profile, exists := d.profiles.Get(pubkey)
	if !exists || profile == nil {
		return nil, false
	}

	return profile, true
}

// Warm resolves metadata for the given pubkeys through fetcher, serving
// cached entries and batch-fetching only the misses. Identical concurrent
// batches share one fetch.
func (d *ProfileDirectory) Warm(ctx context.Context, relays []string, pubkeys []string, fetcher zapfeed.ProfileFetcher) {
	if fetcher == nil || len(pubkeys) == 0 {
		return
	}

	missing := make([]string, 0, len(pubkeys))
	seen := make(map[string]bool, len(pubkeys))
	for _, pubkey := range pubkeys {
		if pubkey == "" || seen[pubkey] || d.profiles.Has(pubkey) {
			continue
		}
		seen[pubkey] = true
		missing = append(missing, pubkey)
	}
	if len(missing) == 0 {
		return
	}
	sort.Strings(missing)

	batchKey := strings.Join(missing, ",")
	_, _, _ = d.flight.Do(batchKey, func() (any, error) {
		fetched, err := fetcher.FetchProfiles(ctx, relays, missing)
		if err != nil {
			d.logger.WarnContext(ctx,
				"profile batch fetch failed",
				"pubkeys", len(missing),
				"error", err,
			)
			return nil, nil
		}
		for pubkey, profile := range fetched {
			if profile == nil {
				continue
			}
			d.profiles.Set(pubkey, profile)
		}

		return nil, nil
	})
}

// Clear discards every cached profile.
func (d *ProfileDirectory) Clear() {
	d.profiles.Clear()
}
