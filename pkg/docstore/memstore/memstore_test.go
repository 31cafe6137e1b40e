package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentver/pkg/docstore"
)

func TestInsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := docstore.Record{ID: "v1", Data: map[string]any{"pageType": "home", "n": 3}}
	require.NoError(t, s.Insert(ctx, "versions", rec))

	got, err := s.Get(ctx, "versions", "v1")
	require.NoError(t, err)
	assert.Equal(t, "home", got.Data["pageType"])
	assert.Equal(t, 3.0, got.Data["n"], "numbers come back as JSON numbers")

	err = s.Insert(ctx, "versions", rec)
	assert.ErrorIs(t, err, docstore.ErrConflict)

	require.NoError(t, s.Delete(ctx, "versions", "v1"))
	require.NoError(t, s.Delete(ctx, "versions", "v1"), "second delete is a no-op")

	_, err = s.Get(ctx, "versions", "v1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestQueryFilterOrderLimit(t *testing.T) {
	ctx := context.Background()
	s := New()

	docs := []docstore.Record{
		{ID: "a", Data: map[string]any{"scope": "x", "ts": 10, "seq": 1}},
		{ID: "b", Data: map[string]any{"scope": "x", "ts": 20, "seq": 2}},
		{ID: "c", Data: map[string]any{"scope": "x", "ts": 20, "seq": 3}},
		{ID: "d", Data: map[string]any{"scope": "y", "ts": 30, "seq": 1}},
	}
	for _, d := range docs {
		require.NoError(t, s.Insert(ctx, "col", d))
	}

	got, err := s.Query(ctx, docstore.Query{
		Collection: "col",
		Filters:    []docstore.Filter{{Field: "scope", Value: "x"}},
		OrderBy:    []docstore.Order{{Field: "ts", Desc: true}, {Field: "seq", Desc: true}},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	none, err := s.Query(ctx, docstore.Query{Collection: "missing"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdatePreconditions(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Insert(ctx, "col", docstore.Record{ID: "v", Data: map[string]any{"approved": false}}))

	cond := docstore.Filter{Field: "approved", Value: false}
	require.NoError(t, s.Update(ctx, "col", "v", map[string]any{"approved": true, "by": "ann"}, cond))

	err := s.Update(ctx, "col", "v", map[string]any{"approved": true, "by": "bob"}, cond)
	assert.ErrorIs(t, err, docstore.ErrConflict)

	got, err := s.Get(ctx, "col", "v")
	require.NoError(t, err)
	assert.Equal(t, "ann", got.Data["by"])

	err = s.Update(ctx, "col", "nope", map[string]any{"approved": true})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestNextSequenceConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	seen := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.NextSequence(ctx, "home/hero")
			assert.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for n := range seen {
		unique[n] = true
	}
	assert.Len(t, unique, 100)

	other, err := s.NextSequence(ctx, "home/footer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestSetFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetFailure(docstore.ErrUnavailable)

	err := s.Insert(ctx, "col", docstore.Record{ID: "x"})
	assert.ErrorIs(t, err, docstore.ErrUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), docstore.ErrUnavailable)

	s.SetFailure(nil)
	assert.NoError(t, s.Ping(ctx))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Query(ctx, docstore.Query{Collection: "col"})
	assert.ErrorIs(t, err, context.Canceled)
}
