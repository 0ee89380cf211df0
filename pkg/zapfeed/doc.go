// Package zapfeed defines the neutral domain contract for the zap-receipt
// feed engine: the immutable receipt record, feed target decoding, the
// sentinel error taxonomy, and the collaborator interfaces (relay transport,
// reference and profile fetchers, renderer, scroll observer) that external
// layers implement.
package zapfeed
