package version

import (
	"context"
	"fmt"
)

// RollbackEngine undoes a version by appending its inverse
type RollbackEngine struct {
	store *Store
}

// NewRollbackEngine creates a rollback engine over store
func NewRollbackEngine(store *Store) *RollbackEngine {
	return &RollbackEngine{store: store}
}

// Rollback saves a new version in the target's scope with old and new values
// swapped and returns its id. The target is left untouched.
func (r *RollbackEngine) Rollback(ctx context.Context, id, author, authorEmail string) (string, error) {
	v, _, err := r.rollback(ctx, id, author, authorEmail)
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

func (r *RollbackEngine) rollback(ctx context.Context, id, author, authorEmail string) (*ContentVersion, *ContentVersion, error) {
	target, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("rollback: %w", err)
	}
	if target == nil {
		return nil, nil, fmt.Errorf("rollback version %s: %w", id, ErrNotFound)
	}

	v, err := r.store.save(ctx, SaveRequest{
		PageType:    target.PageType,
		Field:       target.Field,
		OldValue:    target.NewValue,
		NewValue:    target.OldValue,
		Author:      author,
		AuthorEmail: authorEmail,
		Comment:     fmt.Sprintf(rollbackCommentFormat, target.ID),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rollback version %s: %w", id, err)
	}

	r.store.logger.Info().
		Str("scope", target.Scope().String()).
		Str("version_id", v.ID).
		Str("rolled_back", target.ID).
		Msg("Version rolled back")
	return v, target, nil
}
