package version

import (
	"context"
	"fmt"
)

// RetentionPolicy keeps at most max versions per scope, deleting oldest first
type RetentionPolicy struct {
	store    *Store
	max      int
	overflow int
}

// Max returns the per-scope bound
func (p *RetentionPolicy) Max() int {
	return p.max
}

// window is how many versions one pass reads; at least one past the bound
func (p *RetentionPolicy) window() int {
	if p.overflow < 1 {
		return p.max + 1
	}
	return p.max + p.overflow
}

// Enforce deletes the versions of scope that fall outside the newest max and
// returns how many it removed.
//
// Targets come from a newest-first snapshot, so a concurrent save never makes
// a newer version a target, and a target that another run already removed
// counts as deleted. Passes repeat until a read returns no overflow.
func (p *RetentionPolicy) Enforce(ctx context.Context, scope Scope) (int, error) {
	if err := scope.validate(); err != nil {
		return 0, err
	}

	total := 0
	for {
		all, err := p.store.List(ctx, scope, p.window())
		if err != nil {
			return total, fmt.Errorf("enforce retention: %w", err)
		}
		if len(all) <= p.max {
			return total, nil
		}

		excess := all[p.max:]
		ids := make([]string, 0, len(excess))
		for _, v := range excess {
			if err := p.store.delete(ctx, v.ID); err != nil {
				p.report(ctx, scope, ids)
				return total, fmt.Errorf("enforce retention: delete %s: %w", v.ID, err)
			}
			ids = append(ids, v.ID)
			total++
		}
		p.report(ctx, scope, ids)

		if len(all) < p.window() {
			return total, nil
		}
	}
}

func (p *RetentionPolicy) report(ctx context.Context, scope Scope, ids []string) {
	if len(ids) == 0 {
		return
	}

	p.store.recorder.VersionsPruned(len(ids))
	p.store.logger.Info().
		Str("scope", scope.String()).
		Int("deleted", len(ids)).
		Msg("Pruned old versions")
	p.store.notify.publish(ctx, Event{
		Type:       EventPruned,
		PageType:   scope.PageType,
		Field:      scope.Field,
		VersionIDs: ids,
	})
}
