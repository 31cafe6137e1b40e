package outbox

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/nainya/contentver/pkg/version"
)

// FallbackSaver saves through a Saver and queues the request when the
// document store is unavailable, so an editor's change is not lost
type FallbackSaver struct {
	saver  Saver
	queue  *Queue
	logger zerolog.Logger
}

// NewFallbackSaver wraps saver with queue
func NewFallbackSaver(saver Saver, queue *Queue, logger zerolog.Logger) *FallbackSaver {
	return &FallbackSaver{saver: saver, queue: queue, logger: logger}
}

// Save returns the new version id, or queued=true when the request went to
// the outbox instead. Errors other than unavailability are returned as-is.
func (f *FallbackSaver) Save(ctx context.Context, req version.SaveRequest) (id string, queued bool, err error) {
	id, err = f.saver.SaveVersion(ctx, req)
	if err == nil {
		return id, false, nil
	}
	if !version.IsRetryable(err) {
		return "", false, err
	}

	lsn, qerr := f.queue.Enqueue(req)
	if qerr != nil {
		return "", false, errors.Join(err, qerr)
	}

	f.logger.Warn().
		Err(err).
		Uint64("lsn", lsn).
		Str("scope", req.Scope().String()).
		Msg("Document store unavailable; save queued")
	return "", true, nil
}

// Queue returns the backing queue
func (f *FallbackSaver) Queue() *Queue {
	return f.queue
}
