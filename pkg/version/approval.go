package version

import (
	"context"
	"errors"
	"fmt"
)

// ApprovalWorkflow moves a version from unapproved to approved, once
type ApprovalWorkflow struct {
	store *Store
}

// NewApprovalWorkflow creates a workflow over store
func NewApprovalWorkflow(store *Store) *ApprovalWorkflow {
	return &ApprovalWorkflow{store: store}
}

// Approve marks a version approved. Approving an approved version succeeds
// without changing it; an unknown id returns ErrNotFound.
func (w *ApprovalWorkflow) Approve(ctx context.Context, id, approvedBy string) error {
	_, err := w.approve(ctx, id, approvedBy)
	return err
}

// approve reports whether this call performed the transition
func (w *ApprovalWorkflow) approve(ctx context.Context, id, approvedBy string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("approve version: empty id: %w", ErrNotFound)
	}

	err := w.store.markApproved(ctx, id, approvedBy, w.store.clock())
	switch {
	case err == nil:
		w.store.logger.Info().
			Str("version_id", id).
			Str("approved_by", approvedBy).
			Msg("Version approved")
		return true, nil

	case errors.Is(err, ErrConflict):
		// Precondition approved == false failed: someone approved it first
		v, getErr := w.store.Get(ctx, id)
		if getErr != nil {
			return false, fmt.Errorf("approve version %s: %w", id, getErr)
		}
		if v == nil {
			return false, fmt.Errorf("approve version %s: %w", id, ErrNotFound)
		}
		if v.Approved {
			return false, nil
		}
		return false, fmt.Errorf("approve version %s: %w", id, err)

	default:
		return false, fmt.Errorf("approve version %s: %w", id, err)
	}
}
