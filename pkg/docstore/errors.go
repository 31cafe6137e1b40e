package docstore

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrUnavailable indicates the store could not be reached or timed out
	ErrUnavailable = errors.New("docstore: storage unavailable")

	// ErrNotFound indicates the referenced record does not exist
	ErrNotFound = errors.New("docstore: not found")

	// ErrPermissionDenied indicates the store rejected the operation
	ErrPermissionDenied = errors.New("docstore: permission denied")

	// ErrConflict indicates a duplicate id or a failed update precondition
	ErrConflict = errors.New("docstore: conflict")
)

// Error is a classified store failure. It unwraps to both its kind and the
// underlying driver error.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the kind and the cause to errors.Is / errors.As
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap builds a classified error
func Wrap(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Classify maps transport-level failures onto error kinds. Backends call it
// after their own driver-specific checks. Unknown errors are wrapped with op
// but keep no kind.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(op, ErrUnavailable, err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		if kind := kindForCode(st.Code()); kind != nil {
			return Wrap(op, kind, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(op, ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func kindForCode(code codes.Code) error {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return ErrUnavailable
	case codes.PermissionDenied, codes.Unauthenticated:
		return ErrPermissionDenied
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists, codes.FailedPrecondition:
		return ErrConflict
	default:
		return nil
	}
}

// KindName returns a short label for the error's kind, used for metrics and logs
func KindName(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
