// Package outbox is a durable local queue for version saves that could not
// reach the document store. Pending saves are replayed in enqueue order.
package outbox

import "errors"

var (
	// ErrCorrupted indicates an entry whose checksum does not match
	ErrCorrupted = errors.New("outbox: corrupted entry")

	// ErrTruncated indicates an entry cut short, usually a torn final write
	ErrTruncated = errors.New("outbox: truncated entry")

	// ErrClosed indicates an operation on a closed queue
	ErrClosed = errors.New("outbox: closed")
)
