package version

import (
	"errors"

	"github.com/nainya/contentver/pkg/docstore"
)

// Error kinds returned by the engine. Store failures keep the backend's
// driver error in the chain, so errors.As still reaches it.
var (
	ErrStorageUnavailable = docstore.ErrUnavailable
	ErrNotFound           = docstore.ErrNotFound
	ErrPermissionDenied   = docstore.ErrPermissionDenied
	ErrConflict           = docstore.ErrConflict

	// ErrInvalidArgument marks a caller mistake (empty scope, non-JSON value)
	ErrInvalidArgument = errors.New("version: invalid argument")
)

// ErrorKind labels err for metrics and logs
func ErrorKind(err error) string {
	if errors.Is(err, ErrInvalidArgument) {
		return "invalid_argument"
	}
	return docstore.KindName(err)
}

// IsRetryable reports whether retrying later may succeed
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
