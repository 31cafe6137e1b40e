package version

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHistorySummaries(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	h := NewHistoryReader(s)
	scope := Scope{PageType: "home", Field: "hero"}

	save := func(oldValue, newValue any, author string) string {
		id, err := s.Save(ctx, SaveRequest{PageType: scope.PageType, Field: scope.Field, OldValue: oldValue, NewValue: newValue, Author: author})
		require.NoError(t, err)
		return id
	}

	noop := save("same", "same", "ann")
	single := save("abc", "xyz", "bob")
	pair := save("Book Now", "Reserve Your Ride", "cy")
	many := save(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 3, "c": 4}, "dee")

	entries, err := h.GetHistory(ctx, scope)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, many, entries[0].VersionID)
	assert.Equal(t, "dee", entries[0].Author)
	assert.Equal(t, "3 changes: Added fields: c, Removed fields: a...", entries[0].Summary)

	assert.Equal(t, pair, entries[1].VersionID)
	assert.Equal(t, "2 changes: Length changed from 8 to 17 characters, Content modified", entries[1].Summary)

	assert.Equal(t, single, entries[2].VersionID)
	assert.Equal(t, "Content modified", entries[2].Summary)

	assert.Equal(t, noop, entries[3].VersionID)
	assert.Equal(t, "No changes detected", entries[3].Summary)

	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].Timestamp.After(entries[i].Timestamp))
	}
}

func TestGetHistoryEmptyScope(t *testing.T) {
	s, _ := newTestStore(t)

	entries, err := NewHistoryReader(s).GetHistory(context.Background(), Scope{PageType: "none", Field: "none"})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestDiffBetweenVersions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	h := NewHistoryReader(s)

	first, err := s.Save(ctx, SaveRequest{PageType: "home", Field: "hero", OldValue: "", NewValue: map[string]any{"title": "Hi", "cta": "Go"}})
	require.NoError(t, err)
	second, err := s.Save(ctx, SaveRequest{PageType: "home", Field: "hero", OldValue: nil, NewValue: map[string]any{"title": "Hello", "img": "a.png"}})
	require.NoError(t, err)

	changes, err := h.Diff(ctx, first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"Added fields: img", "Removed fields: cta", "Modified field: title"}, changes)

	other, err := s.Save(ctx, SaveRequest{PageType: "home", Field: "footer", NewValue: "x"})
	require.NoError(t, err)
	_, err = h.Diff(ctx, first, other)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.Diff(ctx, first, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
