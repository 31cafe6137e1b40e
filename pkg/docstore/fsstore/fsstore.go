// ABOUTME: Cloud Firestore document store
// ABOUTME: Conditional updates and sequences run inside Firestore transactions

package fsstore

import (
	"context"
	"encoding/base64"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/contentver/pkg/docstore"
)

// SequenceCollection holds one counter document per scope
const SequenceCollection = "content_sequences"

// Store implements docstore.Store and docstore.Sequencer on Firestore.
//
// Version queries filter on pageType and field and order by timestamp then
// sequence, which needs a composite index on
// (pageType ASC, field ASC, timestamp DESC, sequence DESC).
type Store struct {
	client *firestore.Client
}

// Open creates a client for projectID. FIRESTORE_EMULATOR_HOST is honoured
// by the client library.
func Open(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, docstore.Classify("open firestore", err)
	}
	return New(client), nil
}

// New wraps an existing client
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reads a sentinel document; absence still proves reachability
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(SequenceCollection).Doc("_ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return docstore.Classify("ping", err)
	}
	return nil
}

// Insert creates a document; an existing id is a conflict
func (s *Store) Insert(ctx context.Context, collection string, rec docstore.Record) error {
	_, err := s.client.Collection(collection).Doc(rec.ID).Create(ctx, rec.Data)
	return docstore.Classify("insert", err)
}

// Query runs an equality/order/limit query
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, "==", f.Value)
	}
	for _, o := range q.OrderBy {
		dir := firestore.Asc
		if o.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(o.Field, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, docstore.Classify("query", err)
	}

	records := make([]docstore.Record, 0, len(snaps))
	for _, snap := range snaps {
		records = append(records, docstore.Record{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return records, nil
}

// Get reads a document by id
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Record, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, docstore.Classify("get", err)
	}
	return &docstore.Record{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

// Update merges fields inside a transaction that re-checks the preconditions
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any, preconditions ...docstore.Filter) error {
	if len(fields) == 0 {
		return nil
	}

	ref := s.client.Collection(collection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if err := checkPreconditions(id, snap.Data(), preconditions); err != nil {
			return err
		}
		return tx.Set(ref, fields, firestore.MergeAll)
	})
	return docstore.Classify("update", err)
}

// Delete removes a document; Firestore treats a missing document as success
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return docstore.Classify("delete", err)
}

// NextSequence increments the scope counter in a transaction
func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	ref := s.client.Collection(SequenceCollection).Doc(sequenceDocID(scope))

	var next int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var data map[string]any
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			data = snap.Data()
		}

		next, err = nextSequenceValue(scope, data)
		if err != nil {
			return err
		}
		return tx.Set(ref, map[string]any{"scope": scope, "value": next})
	})
	if err != nil {
		return 0, docstore.Classify("next sequence", err)
	}
	return next, nil
}

// checkPreconditions returns a conflict unless every precondition holds for
// the stored document
func checkPreconditions(id string, data map[string]any, preconditions []docstore.Filter) error {
	if docstore.Matches(data, preconditions) {
		return nil
	}
	return docstore.Wrap("update", docstore.ErrConflict, fmt.Errorf("precondition failed for %s", id))
}

// nextSequenceValue returns the counter value after data; nil data is a
// counter that does not exist yet
func nextSequenceValue(scope string, data map[string]any) (int64, error) {
	if data == nil {
		return 1, nil
	}

	switch n := data["value"].(type) {
	case int64:
		return n + 1, nil
	case nil:
		return 0, fmt.Errorf("sequence %q has no value", scope)
	default:
		return 0, fmt.Errorf("sequence %q has non-integer value %T", scope, n)
	}
}

// sequenceDocID maps a scope to a valid document id ("/" is not allowed)
func sequenceDocID(scope string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(scope))
}
