package version

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nainya/contentver/pkg/docstore/memstore"
)

// stepClock advances by step on every call
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *memstore.Store) {
	t.Helper()
	docs := memstore.New()
	opts = append([]Option{WithClock(newStepClock(time.Millisecond).Now)}, opts...)
	s, err := NewStore(docs, opts...)
	require.NoError(t, err)
	return s, docs
}

func saveN(t *testing.T, s *Store, scope Scope, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.Save(context.Background(), SaveRequest{
			PageType: scope.PageType,
			Field:    scope.Field,
			OldValue: fmt.Sprintf("v%d", i),
			NewValue: fmt.Sprintf("v%d", i+1),
			Author:   "ann",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) ofType(t EventType) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeRecorder struct {
	mu        sync.Mutex
	ops       map[string][]string
	pruned    int
	published map[string]int
	failed    int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ops: map[string][]string{}, published: map[string]int{}}
}

func (r *fakeRecorder) ObserveOperation(op, kind string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op] = append(r.ops[op], kind)
}

func (r *fakeRecorder) VersionsPruned(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruned += n
}

func (r *fakeRecorder) EventPublished(eventType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.published[eventType]++
}
