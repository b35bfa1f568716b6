// Package ephemeral provides the TTL key/value store used for session
// presence, topic state, and handoff signals. Entries expire; absence after
// the TTL is indistinguishable from "never written", and callers must not
// assume any durability beyond the TTL window.
package ephemeral

import (
	"context"
	"time"
)

// Store is the minimal contract the coordination layer needs from a
// TTL-capable key/value backend. All operations must be safe under
// concurrent callers from different processes.
type Store interface {
	// Put writes value under key with the given time-to-live, replacing any
	// prior value.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the live value for key, or ok=false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes key only if its live value equals expected,
	// reporting whether this call won the removal. It is the single atomic
	// primitive the layer relies on (at-most-once handoff consumption).
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// Scan returns a best-effort snapshot of all live entries whose key
	// starts with prefix. The result may race with concurrent writes and
	// expirations; callers treat it as advisory.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
}
