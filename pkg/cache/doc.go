// Package cache provides the generic bounded LRU store shared by every
// feed-engine cache: per-view event slices, load states, resolved references,
// and sender profiles all sit behind one eviction policy.
package cache
