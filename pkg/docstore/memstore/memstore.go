// ABOUTME: In-process document store used for tests and single-node embedding
// ABOUTME: Documents are held as encoded JSON so reads behave like a real store

package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nainya/contentver/pkg/docstore"
)

// Store is a mutex-guarded map of collections
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	sequences   map[string]int64

	// fail, when set, is returned by every operation (simulates an outage)
	fail error
}

// New creates an empty store
func New() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
		sequences:   make(map[string]int64),
	}
}

// SetFailure makes every subsequent call return err; nil restores service
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Len returns the number of records in a collection
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Insert stores a new record
func (s *Store) Insert(ctx context.Context, collection string, rec docstore.Record) error {
	if err := s.check(ctx, "insert"); err != nil {
		return err
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("insert: encode %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.collections[collection] = docs
	}
	if _, exists := docs[rec.ID]; exists {
		return docstore.Wrap("insert", docstore.ErrConflict, fmt.Errorf("id %s already exists", rec.ID))
	}
	docs[rec.ID] = data
	return nil
}

// Query returns matching records sorted by q.OrderBy
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	if err := s.check(ctx, "query"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := s.collections[q.Collection]
	records := make([]docstore.Record, 0, len(docs))
	for id, raw := range docs {
		data, err := decode(raw)
		if err != nil {
			s.mu.RUnlock()
			return nil, fmt.Errorf("query: decode %s: %w", id, err)
		}
		if docstore.Matches(data, q.Filters) {
			records = append(records, docstore.Record{ID: id, Data: data})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compareValues(records[i].Data[o.Field], records[j].Data[o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return records[i].ID < records[j].ID
	})

	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

// Get returns a record by id
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Record, error) {
	if err := s.check(ctx, "get"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	raw, ok := s.collections[collection][id]
	s.mu.RUnlock()
	if !ok {
		return nil, docstore.Wrap("get", docstore.ErrNotFound, fmt.Errorf("%s/%s", collection, id))
	}

	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("get: decode %s: %w", id, err)
	}
	return &docstore.Record{ID: id, Data: data}, nil
}

// Update merges fields into a record when all preconditions hold
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any, preconditions ...docstore.Filter) error {
	if err := s.check(ctx, "update"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.collections[collection][id]
	if !ok {
		return docstore.Wrap("update", docstore.ErrNotFound, fmt.Errorf("%s/%s", collection, id))
	}
	data, err := decode(raw)
	if err != nil {
		return fmt.Errorf("update: decode %s: %w", id, err)
	}
	if !docstore.Matches(data, preconditions) {
		return docstore.Wrap("update", docstore.ErrConflict, fmt.Errorf("precondition failed for %s", id))
	}

	for k, v := range fields {
		data[k] = v
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("update: encode %s: %w", id, err)
	}
	s.collections[collection][id] = encoded
	return nil
}

// Delete removes a record; missing records are ignored
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.check(ctx, "delete"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

// NextSequence increments the scope's counter
func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	if err := s.check(ctx, "next sequence"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[scope]++
	return s.sequences[scope], nil
}

// Ping reports the simulated availability
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx, "ping")
}

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return docstore.Classify(op, err)
	}

	s.mu.RLock()
	fail := s.fail
	s.mu.RUnlock()
	if fail != nil {
		return docstore.Classify(op, fail)
	}
	return nil
}

func decode(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// compareValues orders decoded JSON scalars: nil < bool < number < string
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	default:
		return 0
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
