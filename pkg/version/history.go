package version

import (
	"context"
	"fmt"

	"github.com/nainya/contentver/pkg/diff"
)

// HistoryReader is the read-only view used by history screens
type HistoryReader struct {
	store *Store
}

// NewHistoryReader creates a reader over store
func NewHistoryReader(store *Store) *HistoryReader {
	return &HistoryReader{store: store}
}

// GetHistory returns the scope's retained versions newest first, each with
// a one-line summary of its changes
func (h *HistoryReader) GetHistory(ctx context.Context, scope Scope) ([]HistoryEntry, error) {
	versions, err := h.store.List(ctx, scope, h.store.retention.window())
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(versions))
	for _, v := range versions {
		entries = append(entries, HistoryEntry{
			VersionID: v.ID,
			Timestamp: v.Timestamp,
			Author:    v.Author,
			Summary:   diff.Summarize(v.Changes),
		})
	}
	return entries, nil
}

// Diff compares the content two versions of the same scope ended up with
func (h *HistoryReader) Diff(ctx context.Context, fromID, toID string) ([]string, error) {
	from, err := h.load(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := h.load(ctx, toID)
	if err != nil {
		return nil, err
	}

	if from.Scope() != to.Scope() {
		return nil, fmt.Errorf("%w: versions %s and %s belong to different scopes", ErrInvalidArgument, fromID, toID)
	}
	return h.store.mode.Detect(from.NewValue, to.NewValue), nil
}

func (h *HistoryReader) load(ctx context.Context, id string) (*ContentVersion, error) {
	v, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("diff: version %s: %w", id, ErrNotFound)
	}
	return v, nil
}
