// ABOUTME: Append-only version store over the document-store collaborator
// ABOUTME: Orders each scope by (timestamp, sequence), newest first

package version

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/contentver/pkg/diff"
	"github.com/nainya/contentver/pkg/docstore"
)

// Store persists ContentVersion records
type Store struct {
	docs       docstore.Store
	seq        docstore.Sequencer
	collection string
	mode       diff.Mode
	clock      func() time.Time
	newID      func() string
	logger     zerolog.Logger
	recorder   Recorder
	notify     *notifier

	retention      *RetentionPolicy
	asyncRetention bool
	background     sync.WaitGroup
}

// NewStore creates a version store. The sequencer defaults to docs itself
// when it implements docstore.Sequencer.
func NewStore(docs docstore.Store, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newStore(docs, o)
}

func newStore(docs docstore.Store, o options) (*Store, error) {
	if docs == nil {
		return nil, fmt.Errorf("%w: document store is required", ErrInvalidArgument)
	}

	seq := o.sequencer
	if seq == nil {
		s, ok := docs.(docstore.Sequencer)
		if !ok {
			return nil, fmt.Errorf("%w: document store has no sequencer; use WithSequencer", ErrInvalidArgument)
		}
		seq = s
	}

	s := &Store{
		docs:           docs,
		seq:            seq,
		collection:     o.collection,
		mode:           o.mode,
		clock:          o.clock,
		newID:          o.newID,
		logger:         o.logger.With().Str("component", "version_store").Logger(),
		recorder:       o.recorder,
		asyncRetention: o.asyncRetention,
		notify: &notifier{
			publisher: o.publisher,
			recorder:  o.recorder,
			logger:    o.logger,
			clock:     o.clock,
		},
	}
	s.retention = &RetentionPolicy{store: s, max: o.maxVersions, overflow: o.overflow}
	return s, nil
}

// Retention returns the policy the store triggers after each save
func (s *Store) Retention() *RetentionPolicy {
	return s.retention
}

// Collection returns the collection name
func (s *Store) Collection() string {
	return s.collection
}

// Save records an edit and returns the new version id
func (s *Store) Save(ctx context.Context, req SaveRequest) (string, error) {
	v, err := s.save(ctx, req)
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

func (s *Store) save(ctx context.Context, req SaveRequest) (*ContentVersion, error) {
	scope := req.Scope()
	if err := scope.validate(); err != nil {
		return nil, err
	}

	oldValue, err := diff.Normalize(req.OldValue)
	if err != nil {
		return nil, fmt.Errorf("%w: oldValue: %v", ErrInvalidArgument, err)
	}
	newValue, err := diff.Normalize(req.NewValue)
	if err != nil {
		return nil, fmt.Errorf("%w: newValue: %v", ErrInvalidArgument, err)
	}

	seq, err := s.seq.NextSequence(ctx, scope.String())
	if err != nil {
		return nil, fmt.Errorf("save version: allocate sequence: %w", err)
	}

	v := &ContentVersion{
		ID:          s.newID(),
		PageType:    scope.PageType,
		Field:       scope.Field,
		OldValue:    oldValue,
		NewValue:    newValue,
		Author:      req.Author,
		AuthorEmail: req.AuthorEmail,
		Timestamp:   s.clock().UTC().Truncate(time.Microsecond),
		Sequence:    seq,
		Changes:     s.mode.Detect(oldValue, newValue),
		Comment:     req.Comment,
	}

	if err := s.docs.Insert(ctx, s.collection, docstore.Record{ID: v.ID, Data: encode(v)}); err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}

	s.logger.Debug().
		Str("scope", scope.String()).
		Str("version_id", v.ID).
		Int64("sequence", seq).
		Int("changes", len(v.Changes)).
		Msg("Version saved")

	s.enforceRetention(ctx, scope)
	return v, nil
}

// enforceRetention runs the retention policy after a save. Failures are
// logged and counted; the save has already succeeded.
func (s *Store) enforceRetention(ctx context.Context, scope Scope) {
	run := func(ctx context.Context) {
		start := time.Now()
		deleted, err := s.retention.Enforce(ctx, scope)
		s.recorder.ObserveOperation("enforce_retention", ErrorKind(err), time.Since(start))
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("scope", scope.String()).
				Int("deleted", deleted).
				Msg("Retention after save failed")
		}
	}

	if !s.asyncRetention {
		run(ctx)
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		run(context.WithoutCancel(ctx))
	}()
}

// Wait blocks until background retention runs have finished
func (s *Store) Wait() {
	s.background.Wait()
}

// List returns up to limit versions of a scope, newest first. A limit of
// zero or less returns an empty slice.
func (s *Store) List(ctx context.Context, scope Scope, limit int) ([]*ContentVersion, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []*ContentVersion{}, nil
	}

	recs, err := s.docs.Query(ctx, docstore.Query{
		Collection: s.collection,
		Filters: []docstore.Filter{
			{Field: fieldPageType, Value: scope.PageType},
			{Field: fieldField, Value: scope.Field},
		},
		OrderBy: []docstore.Order{
			{Field: fieldTimestamp, Desc: true},
			{Field: fieldSequence, Desc: true},
		},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", scope, err)
	}

	versions := make([]*ContentVersion, 0, len(recs))
	for _, rec := range recs {
		v, err := decode(rec)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// Get returns a version by id, or nil when it does not exist
func (s *Store) Get(ctx context.Context, id string) (*ContentVersion, error) {
	if id == "" {
		return nil, nil
	}

	rec, err := s.docs.Get(ctx, s.collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get version %s: %w", id, err)
	}
	return decode(*rec)
}

// markApproved flips approved false -> true in place
func (s *Store) markApproved(ctx context.Context, id, approvedBy string, at time.Time) error {
	return s.docs.Update(ctx, s.collection, id,
		map[string]any{
			fieldApproved:   true,
			fieldApprovedBy: approvedBy,
			fieldApprovedAt: at.UTC().UnixMicro(),
		},
		docstore.Filter{Field: fieldApproved, Value: false},
	)
}

func (s *Store) delete(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, s.collection, id); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	return nil
}
