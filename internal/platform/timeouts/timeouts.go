// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between trigger handlers and
// makes the durations discoverable.
package timeouts

import "time"

// StoreRead caps a single keyed read or index query against the record store.
const StoreRead = 2 * time.Second

// StoreWrite caps a conditional put or multi-item transaction against the
// record store.
const StoreWrite = 5 * time.Second

// AttributeSync caps the mirror call that writes the canonical id back onto
// the provider's user record. The mirror is advisory; it must never hold up
// the durable write path.
const AttributeSync = 3 * time.Second
