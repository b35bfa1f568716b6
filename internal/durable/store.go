// Package durable provides the record store used for conversation memories,
// preferences, and tasks. Records persist indefinitely absent explicit
// deletion; there is no multi-record transaction guarantee, and callers must
// tolerate a create succeeding while an associated secondary write fails.
package durable

import "context"

// Record types known to the store. The store itself is type-agnostic; these
// constants keep callers from drifting on table-partition names.
const (
	TypeConversation = "conversation_memory"
	TypePreference   = "user_preference"
	TypeTask         = "active_task"
)

// Filter matches records whose named fields equal the given values exactly.
type Filter map[string]any

// QueryOptions shape a Query: ordering on one record field, an optional
// lower bound on that field, and a result cap.
type QueryOptions struct {
	OrderBy    string // record field name; required when Descending or Since is used
	Descending bool
	Since      string // inclusive lower bound on OrderBy, compared as stored
	Limit      int    // 0 = no limit
}

// Store is the minimal contract over a record-oriented durable backend.
// Records cross the boundary as JSON documents; callers own the schema of
// each record type and validate before writing.
type Store interface {
	// Create inserts a new record under key. It fails if (recordType, key)
	// already exists — callers rely on this for write-once records.
	Create(ctx context.Context, recordType, key string, record any) error

	// Upsert inserts or fully replaces the record under key.
	Upsert(ctx context.Context, recordType, key string, record any) error

	// Get returns the raw record under key, or ok=false when absent.
	Get(ctx context.Context, recordType, key string) (data []byte, ok bool, err error)

	// Query returns the raw records of recordType matching filter, ordered
	// and limited per opts.
	Query(ctx context.Context, recordType string, filter Filter, opts QueryOptions) ([][]byte, error)
}
