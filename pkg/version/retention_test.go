package version

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentver/pkg/docstore"
	"github.com/nainya/contentver/pkg/docstore/memstore"
)

func TestRetentionKeepsNewestFifty(t *testing.T) {
	s, docs := newTestStore(t)
	ctx := context.Background()
	scope := Scope{PageType: "home", Field: "hero"}

	ids := saveN(t, s, scope, 55)

	versions, err := s.List(ctx, scope, 100)
	require.NoError(t, err)
	require.Len(t, versions, MaxVersionsPerField)
	assert.Equal(t, MaxVersionsPerField, docs.Len(DefaultCollection))

	kept := map[string]bool{}
	for _, v := range versions {
		kept[v.ID] = true
	}
	for _, id := range ids[:5] {
		assert.False(t, kept[id], "oldest version %s should be pruned", id)
	}
	for _, id := range ids[5:] {
		assert.True(t, kept[id], "version %s should be retained", id)
	}
}

func TestRetentionLeavesOtherScopesAlone(t *testing.T) {
	s, _ := newTestStore(t, WithMaxVersions(3))
	ctx := context.Background()

	saveN(t, s, Scope{PageType: "home", Field: "hero"}, 6)
	saveN(t, s, Scope{PageType: "home", Field: "footer"}, 2)

	footer, err := s.List(ctx, Scope{PageType: "home", Field: "footer"}, 10)
	require.NoError(t, err)
	assert.Len(t, footer, 2)

	hero, err := s.List(ctx, Scope{PageType: "home", Field: "hero"}, 10)
	require.NoError(t, err)
	assert.Len(t, hero, 3)
}

func TestRetentionDrainsBacklogLargerThanBuffer(t *testing.T) {
	loose, docs := newTestStore(t, WithMaxVersions(1000))
	scope := Scope{PageType: "home", Field: "hero"}
	ids := saveN(t, loose, scope, 80)

	strict, err := NewStore(docs)
	require.NoError(t, err)

	deleted, err := strict.Retention().Enforce(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 30, deleted)

	versions, err := strict.List(context.Background(), scope, 200)
	require.NoError(t, err)
	require.Len(t, versions, 50)
	assert.Equal(t, ids[79], versions[0].ID)
	assert.Equal(t, ids[30], versions[49].ID)
}

func TestRetentionWithoutOverflowBuffer(t *testing.T) {
	s, _ := newTestStore(t, WithMaxVersions(5), WithOverflowBuffer(0))
	scope := Scope{PageType: "home", Field: "hero"}

	saveN(t, s, scope, 9)

	versions, err := s.List(context.Background(), scope, 100)
	require.NoError(t, err)
	assert.Len(t, versions, 5)
}

func TestRetentionIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, WithMaxVersions(10))
	scope := Scope{PageType: "home", Field: "hero"}
	saveN(t, s, scope, 10)

	for i := 0; i < 3; i++ {
		deleted, err := s.Retention().Enforce(context.Background(), scope)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	}
}

func TestConcurrentSavesAndRetentionKeepBound(t *testing.T) {
	const bound = 20
	frozen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t,
		WithMaxVersions(bound),
		WithOverflowBuffer(5),
		WithClock(func() time.Time { return frozen }))
	ctx := context.Background()
	scope := Scope{PageType: "home", Field: "hero"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 15; i++ {
				_, err := s.Save(ctx, SaveRequest{PageType: scope.PageType, Field: scope.Field, NewValue: "x"})
				assert.NoError(t, err)
			}
		}()
	}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := s.Retention().Enforce(ctx, scope)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	_, err := s.Retention().Enforce(ctx, scope)
	require.NoError(t, err)

	versions, err := s.List(ctx, scope, 1000)
	require.NoError(t, err)
	require.Len(t, versions, bound)

	// Timestamps are frozen, so survivors are the newest 20 of 120 sequences
	for i, v := range versions {
		assert.Equal(t, int64(120-i), v.Sequence)
	}
}

func TestRetentionFailureDoesNotFailSave(t *testing.T) {
	docs := &failingDeletes{memstore.New()}
	s, err := NewStore(docs, WithMaxVersions(2), WithClock(newStepClock(time.Millisecond).Now))
	require.NoError(t, err)
	scope := Scope{PageType: "home", Field: "hero"}

	saveN(t, s, scope, 4)

	versions, err := s.List(context.Background(), scope, 100)
	require.NoError(t, err)
	assert.Len(t, versions, 4, "deletes failed, every save still stored")

	_, err = s.Retention().Enforce(context.Background(), scope)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRetentionRejectsEmptyScope(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Retention().Enforce(context.Background(), Scope{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// failingDeletes is a memstore whose deletes are rejected
type failingDeletes struct {
	*memstore.Store
}

func (f *failingDeletes) Delete(context.Context, string, string) error {
	return docstore.Wrap("delete", docstore.ErrPermissionDenied, nil)
}
