// ABOUTME: Minimal document-store contract the version engine is written against
// ABOUTME: Backends: in-memory, SQLite, PostgreSQL, Firestore

package docstore

import "context"

// Record is a single stored document
type Record struct {
	ID   string
	Data map[string]any
}

// Filter is an equality predicate on a top-level document field
type Filter struct {
	Field string
	Value any
}

// Order sorts query results by a top-level document field
type Order struct {
	Field string
	Desc  bool
}

// Query selects records from one collection
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int // 0 = no limit
}

// Store is the document database collaborator.
//
// No transactions are assumed. Implementations must make Delete of a missing
// record succeed and must apply Update preconditions atomically with the write.
type Store interface {
	// Insert stores a new record. ErrConflict if the id already exists.
	Insert(ctx context.Context, collection string, rec Record) error

	// Query returns matching records in the requested order
	Query(ctx context.Context, q Query) ([]Record, error)

	// Get returns a record by id, or ErrNotFound
	Get(ctx context.Context, collection, id string) (*Record, error)

	// Update merges top-level fields into a record. It returns ErrNotFound when
	// the record is absent and ErrConflict when a precondition does not hold.
	Update(ctx context.Context, collection, id string, fields map[string]any, preconditions ...Filter) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Sequencer hands out per-scope, strictly increasing sequence numbers
type Sequencer interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
}

// Pinger is implemented by stores that can report reachability
type Pinger interface {
	Ping(ctx context.Context) error
}
