package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/nainya/contentver/pkg/version"
)

// Replay outcomes reported to the Recorder
const (
	OutcomeSaved     = "saved"
	OutcomeDiscarded = "discarded"
	OutcomeDeferred  = "deferred"
)

// Saver is the write path pending saves are replayed into
type Saver interface {
	SaveVersion(ctx context.Context, req version.SaveRequest) (string, error)
}

// Recorder receives queue measurements
type Recorder interface {
	OutboxDepth(n int)
	OutboxReplayed(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) OutboxDepth(int)       {}
func (nopRecorder) OutboxReplayed(string) {}

// Pending is a save waiting for the document store
type Pending struct {
	LSN        uint64
	Request    version.SaveRequest
	EnqueuedAt time.Time
}

// ReplayStats summarises one Replay call
type ReplayStats struct {
	Saved     int
	Discarded int
	Remaining int
}

// Option configures a Queue
type Option func(*Queue)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(q *Queue) {
		if r != nil {
			q.recorder = r
		}
	}
}

// WithMaxSegmentSize sets the size at which the log rotates
func WithMaxSegmentSize(n int64) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxSegmentSize = n
		}
	}
}

// WithBackOff sets the retry schedule used for each replayed save
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(q *Queue) {
		if newBackOff != nil {
			q.newBackOff = newBackOff
		}
	}
}

// Queue is a durable FIFO of saves that failed because the document store
// was unavailable
type Queue struct {
	logger         zerolog.Logger
	recorder       Recorder
	maxSegmentSize int64
	newBackOff     func() backoff.BackOff

	log *segmentLog

	mu      sync.Mutex
	pending map[uint64]*Entry

	// replaying serialises Replay calls
	replaying sync.Mutex
}

// Open opens the queue in dir, restoring the saves still pending there
func Open(dir string, opts ...Option) (*Queue, error) {
	q := &Queue{
		logger:         zerolog.Nop(),
		recorder:       nopRecorder{},
		maxSegmentSize: DefaultMaxSegmentSize,
		newBackOff:     defaultBackOff,
		pending:        make(map[uint64]*Entry),
	}
	for _, opt := range opts {
		opt(q)
	}

	log, entries, torn, err := openLog(dir, q.maxSegmentSize)
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", dir, err)
	}
	q.log = log

	for _, e := range entries {
		switch e.Op {
		case OpEnqueue:
			q.pending[e.LSN] = e
		case OpAck, OpDiscard:
			delete(q.pending, e.Ref)
		}
	}
	if torn {
		q.logger.Warn().Str("dir", dir).Msg("Outbox log had a torn tail; later bytes ignored")
	}

	q.recorder.OutboxDepth(len(q.pending))
	q.logger.Info().Str("dir", dir).Int("pending", len(q.pending)).Msg("Outbox opened")
	return q, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Enqueue durably records a save and returns its LSN
func (q *Queue) Enqueue(req version.SaveRequest) (uint64, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("outbox: encode request: %w", err)
	}

	e := &Entry{Op: OpEnqueue, Payload: payload}
	if err := q.log.append(e); err != nil {
		return 0, err
	}

	q.mu.Lock()
	q.pending[e.LSN] = e
	depth := len(q.pending)
	q.mu.Unlock()

	q.recorder.OutboxDepth(depth)
	q.logger.Debug().
		Uint64("lsn", e.LSN).
		Str("scope", req.Scope().String()).
		Msg("Save queued")
	return e.LSN, nil
}

// Len returns the number of pending saves
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pending returns the pending saves in enqueue order
func (q *Queue) Pending() ([]Pending, error) {
	entries := q.snapshot()
	out := make([]Pending, 0, len(entries))
	for _, e := range entries {
		req, err := decodeRequest(e)
		if err != nil {
			return nil, err
		}
		out = append(out, Pending{LSN: e.LSN, Request: req, EnqueuedAt: e.Timestamp})
	}
	return out, nil
}

// Replay saves the pending requests in enqueue order. Each save is retried
// while the store reports a retryable error; a save that fails permanently
// is discarded. Replay stops at the first save that is still failing after
// its retries so that later edits of a scope never overtake earlier ones.
func (q *Queue) Replay(ctx context.Context, saver Saver) (stats ReplayStats, err error) {
	q.replaying.Lock()
	defer q.replaying.Unlock()

	entries := q.snapshot()
	defer func() {
		stats.Remaining = q.Len()
		q.recorder.OutboxDepth(stats.Remaining)
	}()

	for _, e := range entries {
		req, err := decodeRequest(e)
		if err != nil {
			q.logger.Error().Err(err).Uint64("lsn", e.LSN).Msg("Undecodable outbox entry discarded")
			if err := q.settle(e, OpDiscard); err != nil {
				return stats, err
			}
			stats.Discarded++
			q.recorder.OutboxReplayed(OutcomeDiscarded)
			continue
		}

		id, err := q.save(ctx, saver, req)
		switch {
		case err == nil:
			if err := q.settle(e, OpAck); err != nil {
				return stats, err
			}
			stats.Saved++
			q.recorder.OutboxReplayed(OutcomeSaved)
			q.logger.Info().
				Uint64("lsn", e.LSN).
				Str("version_id", id).
				Str("scope", req.Scope().String()).
				Msg("Queued save replayed")

		case version.IsRetryable(err) || ctx.Err() != nil:
			q.recorder.OutboxReplayed(OutcomeDeferred)
			return stats, fmt.Errorf("outbox: replay lsn %d: %w", e.LSN, err)

		default:
			if err := q.settle(e, OpDiscard); err != nil {
				return stats, err
			}
			stats.Discarded++
			q.recorder.OutboxReplayed(OutcomeDiscarded)
			q.logger.Error().
				Err(err).
				Uint64("lsn", e.LSN).
				Str("scope", req.Scope().String()).
				Msg("Queued save rejected; discarded")
		}
	}
	return stats, nil
}

func (q *Queue) save(ctx context.Context, saver Saver, req version.SaveRequest) (string, error) {
	var id string
	op := func() error {
		var err error
		id, err = saver.SaveVersion(ctx, req)
		if err != nil && !version.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.RetryNotify(op, backoff.WithContext(q.newBackOff(), ctx), func(err error, wait time.Duration) {
		q.logger.Debug().Err(err).Dur("retry_in", wait).Msg("Replay save failed; retrying")
	})
	return id, err
}

// Compact rewrites the log so that it holds only the pending saves
func (q *Queue) Compact() error {
	q.replaying.Lock()
	defer q.replaying.Unlock()

	entries := q.snapshot()
	if err := q.log.rewrite(entries); err != nil {
		return fmt.Errorf("outbox: compact: %w", err)
	}
	q.logger.Debug().Int("pending", len(entries)).Msg("Outbox compacted")
	return nil
}

// Close closes the underlying log
func (q *Queue) Close() error {
	return q.log.close()
}

func (q *Queue) settle(e *Entry, op OpType) error {
	if err := q.log.append(&Entry{Op: op, Ref: e.LSN}); err != nil {
		return err
	}
	q.mu.Lock()
	delete(q.pending, e.LSN)
	q.mu.Unlock()
	return nil
}

func (q *Queue) snapshot() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]*Entry, 0, len(q.pending))
	for _, e := range q.pending {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LSN < entries[j].LSN })
	return entries
}

func decodeRequest(e *Entry) (version.SaveRequest, error) {
	var req version.SaveRequest
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		return req, errors.Join(ErrCorrupted, err)
	}
	return req, nil
}
