// ABOUTME: Engine is the entry point the editor and admin tooling call
// ABOUTME: It composes the components and adds tracing, metrics and events

package version

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nainya/contentver/pkg/docstore"
)

// Engine exposes the content versioning operations
type Engine struct {
	store    *Store
	approval *ApprovalWorkflow
	rollback *RollbackEngine
	history  *HistoryReader
	tracer   trace.Tracer
	recorder Recorder
	notify   *notifier
	docs     docstore.Store
}

// NewEngine wires a Store and its workflows over docs
func NewEngine(docs docstore.Store, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	store, err := newStore(docs, o)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:    store,
		approval: NewApprovalWorkflow(store),
		rollback: NewRollbackEngine(store),
		history:  NewHistoryReader(store),
		tracer:   o.tracer(),
		recorder: o.recorder,
		notify:   store.notify,
		docs:     docs,
	}, nil
}

// Store returns the underlying version store
func (e *Engine) Store() *Store {
	return e.store
}

// SaveVersion records an edit and returns the new version id
func (e *Engine) SaveVersion(ctx context.Context, req SaveRequest) (id string, err error) {
	ctx, done := e.start(ctx, "save_version", scopeAttrs(req.Scope())...)
	defer func() { done(err) }()

	v, err := e.store.save(ctx, req)
	if err != nil {
		return "", err
	}

	e.notify.publish(ctx, Event{
		Type:       EventSaved,
		PageType:   v.PageType,
		Field:      v.Field,
		VersionID:  v.ID,
		Actor:      v.Author,
		OccurredAt: v.Timestamp,
	})
	return v.ID, nil
}

// ListVersions returns up to limit versions of a scope, newest first
func (e *Engine) ListVersions(ctx context.Context, pageType, field string, limit int) (versions []*ContentVersion, err error) {
	scope := Scope{PageType: pageType, Field: field}
	ctx, done := e.start(ctx, "list_versions", scopeAttrs(scope)...)
	defer func() { done(err) }()

	return e.store.List(ctx, scope, limit)
}

// GetVersion returns a version, or nil when it does not exist
func (e *Engine) GetVersion(ctx context.Context, id string) (v *ContentVersion, err error) {
	ctx, done := e.start(ctx, "get_version", attribute.String("version.id", id))
	defer func() { done(err) }()

	return e.store.Get(ctx, id)
}

// ApproveVersion approves a version; repeated calls are no-ops
func (e *Engine) ApproveVersion(ctx context.Context, id, approvedBy string) (err error) {
	ctx, done := e.start(ctx, "approve_version", attribute.String("version.id", id))
	defer func() { done(err) }()

	changed, err := e.approval.approve(ctx, id, approvedBy)
	if err != nil || !changed {
		return err
	}

	v, err := e.store.Get(ctx, id)
	if err != nil || v == nil {
		// The approval stands; only the event loses its scope
		e.notify.logger.Warn().Err(err).Str("version_id", id).Msg("Approved version not readable for event")
		return nil
	}
	e.notify.publish(ctx, Event{
		Type:      EventApproved,
		PageType:  v.PageType,
		Field:     v.Field,
		VersionID: v.ID,
		Actor:     approvedBy,
	})
	return nil
}

// RollbackToVersion appends the inverse of a version and returns the new id
func (e *Engine) RollbackToVersion(ctx context.Context, id, author, authorEmail string) (newID string, err error) {
	ctx, done := e.start(ctx, "rollback_to_version", attribute.String("version.id", id))
	defer func() { done(err) }()

	v, target, err := e.rollback.rollback(ctx, id, author, authorEmail)
	if err != nil {
		return "", err
	}

	e.notify.publish(ctx, Event{
		Type:       EventRolledBack,
		PageType:   v.PageType,
		Field:      v.Field,
		VersionID:  v.ID,
		SourceID:   target.ID,
		Actor:      author,
		OccurredAt: v.Timestamp,
	})
	return v.ID, nil
}

// GetVersionHistory returns the summarised history of a scope
func (e *Engine) GetVersionHistory(ctx context.Context, pageType, field string) (entries []HistoryEntry, err error) {
	scope := Scope{PageType: pageType, Field: field}
	ctx, done := e.start(ctx, "get_version_history", scopeAttrs(scope)...)
	defer func() { done(err) }()

	return e.history.GetHistory(ctx, scope)
}

// EnforceRetention runs the retention policy for a scope on demand
func (e *Engine) EnforceRetention(ctx context.Context, pageType, field string) (deleted int, err error) {
	scope := Scope{PageType: pageType, Field: field}
	ctx, done := e.start(ctx, "enforce_retention", scopeAttrs(scope)...)
	defer func() { done(err) }()

	return e.store.retention.Enforce(ctx, scope)
}

// DiffVersions returns the changes between the content of two versions
func (e *Engine) DiffVersions(ctx context.Context, fromID, toID string) (changes []string, err error) {
	ctx, done := e.start(ctx, "diff_versions",
		attribute.String("version.from", fromID),
		attribute.String("version.to", toID))
	defer func() { done(err) }()

	return e.history.Diff(ctx, fromID, toID)
}

// Ping reports whether the document store is reachable
func (e *Engine) Ping(ctx context.Context) error {
	if p, ok := e.docs.(docstore.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Wait blocks until background retention runs have finished
func (e *Engine) Wait() {
	e.store.Wait()
}

func (e *Engine) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := e.tracer.Start(ctx, "version."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		kind := ErrorKind(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("error.kind", kind))
		span.End()

		elapsed := time.Since(begin)
		e.recorder.ObserveOperation(op, kind, elapsed)

		event := e.store.logger.Debug()
		if err != nil {
			event = e.store.logger.Error().Err(err)
		}
		event.Str("operation", op).
			Str("kind", kind).
			Dur("duration_ms", elapsed).
			Msg("Version operation completed")
	}
}

func scopeAttrs(s Scope) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("content.page_type", s.PageType),
		attribute.String("content.field", s.Field),
	}
}
