// Package feed implements the zap-receipt feed engine: the per-view ordered
// event store, the pagination load-state tracker, the single-flight reference
// resolver, the sender profile directory, and the subscription coordinator
// that merges historical backfill with the live stream and drives backward
// pagination.
package feed
