package fsstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/contentver/pkg/docstore"
)

func TestSequenceDocID(t *testing.T) {
	id := sequenceDocID("home/hero")
	assert.NotContains(t, id, "/")
	assert.NotEqual(t, sequenceDocID("home/hero2"), id)
}

func TestCheckPreconditions(t *testing.T) {
	stored := map[string]any{"approved": false, "sequence": int64(3)}

	tests := []struct {
		name     string
		data     map[string]any
		pre      []docstore.Filter
		conflict bool
	}{
		{name: "no preconditions", data: stored},
		{name: "holds", data: stored, pre: []docstore.Filter{{Field: "approved", Value: false}}},
		{name: "numbers compare by value", data: stored, pre: []docstore.Filter{{Field: "sequence", Value: float64(3)}}},
		{name: "already approved", data: map[string]any{"approved": true}, pre: []docstore.Filter{{Field: "approved", Value: false}}, conflict: true},
		{name: "field missing", data: map[string]any{}, pre: []docstore.Filter{{Field: "approved", Value: false}}, conflict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPreconditions("v1", tt.data, tt.pre)
			if !tt.conflict {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, docstore.ErrConflict)
			// The transaction's error passes through classification unchanged
			assert.ErrorIs(t, docstore.Classify("update", err), docstore.ErrConflict)
		})
	}
}

func TestNextSequenceValue(t *testing.T) {
	n, err := nextSequenceValue("home/hero", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = nextSequenceValue("home/hero", map[string]any{"scope": "home/hero", "value": int64(41)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = nextSequenceValue("home/hero", map[string]any{"value": "7"})
	assert.ErrorContains(t, err, "non-integer")

	_, err = nextSequenceValue("home/hero", map[string]any{"scope": "home/hero"})
	assert.ErrorContains(t, err, "no value")
}

func TestTransactionErrorsClassify(t *testing.T) {
	tests := []struct {
		code codes.Code
		kind error
	}{
		{codes.NotFound, docstore.ErrNotFound},
		{codes.Aborted, docstore.ErrUnavailable},
		{codes.Unavailable, docstore.ErrUnavailable},
		{codes.PermissionDenied, docstore.ErrPermissionDenied},
		{codes.AlreadyExists, docstore.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := docstore.Classify("update", status.Error(tt.code, "rpc failed"))
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

// The remaining tests need the Firestore emulator
func openEmulator(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	s, err := Open(context.Background(), "contentver-test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func uniqueCollection(t *testing.T) string {
	return fmt.Sprintf("test_%s_%d", t.Name(), time.Now().UnixNano())
}

func TestEmulatorCRUD(t *testing.T) {
	s := openEmulator(t)
	ctx := context.Background()
	col := uniqueCollection(t)

	require.NoError(t, s.Insert(ctx, col, docstore.Record{ID: "v1", Data: map[string]any{"pageType": "home", "approved": false}}))
	assert.ErrorIs(t, s.Insert(ctx, col, docstore.Record{ID: "v1", Data: map[string]any{}}), docstore.ErrConflict)

	cond := docstore.Filter{Field: "approved", Value: false}
	require.NoError(t, s.Update(ctx, col, "v1", map[string]any{"approved": true}, cond))
	assert.ErrorIs(t, s.Update(ctx, col, "v1", map[string]any{"approved": true}, cond), docstore.ErrConflict)
	assert.ErrorIs(t, s.Update(ctx, col, "missing", map[string]any{"approved": true}), docstore.ErrNotFound)

	got, err := s.Get(ctx, col, "v1")
	require.NoError(t, err)
	assert.Equal(t, true, got.Data["approved"])

	require.NoError(t, s.Delete(ctx, col, "v1"))
	require.NoError(t, s.Delete(ctx, col, "v1"))
	_, err = s.Get(ctx, col, "v1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestEmulatorQueryAndSequence(t *testing.T) {
	s := openEmulator(t)
	ctx := context.Background()
	col := uniqueCollection(t)

	for i := int64(1); i <= 3; i++ {
		seq, err := s.NextSequence(ctx, col+"/scope")
		require.NoError(t, err)
		assert.Equal(t, i, seq)
		require.NoError(t, s.Insert(ctx, col, docstore.Record{
			ID:   fmt.Sprintf("v%d", i),
			Data: map[string]any{"scope": "x", "sequence": seq},
		}))
	}

	got, err := s.Query(ctx, docstore.Query{
		Collection: col,
		Filters:    []docstore.Filter{{Field: "scope", Value: "x"}},
		OrderBy:    []docstore.Order{{Field: "sequence", Desc: true}},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v3", got[0].ID)
	assert.Equal(t, "v2", got[1].ID)

	require.NoError(t, s.Ping(ctx))
}
