package docstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyGRPCStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unavailable, ErrUnavailable},
		{codes.DeadlineExceeded, ErrUnavailable},
		{codes.PermissionDenied, ErrPermissionDenied},
		{codes.Unauthenticated, ErrPermissionDenied},
		{codes.NotFound, ErrNotFound},
		{codes.AlreadyExists, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			cause := status.Error(tt.code, "boom")
			err := Classify("query", cause)

			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, cause)
			assert.Contains(t, err.Error(), "query")
		})
	}
}

func TestClassifyContext(t *testing.T) {
	err := Classify("insert", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = Classify("insert", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestClassifyNetError(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.ErrorIs(t, Classify("get", cause), ErrUnavailable)
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	orig := Wrap("update", ErrConflict, nil)
	wrapped := fmt.Errorf("approve: %w", orig)

	assert.Same(t, wrapped, Classify("outer", wrapped))
	assert.Nil(t, Classify("noop", nil))
}

func TestClassifyUnknown(t *testing.T) {
	err := Classify("query", errors.New("weird"))
	assert.Equal(t, "error", KindName(err))
	assert.Equal(t, "query: weird", err.Error())
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "ok", KindName(nil))
	assert.Equal(t, "not_found", KindName(Wrap("get", ErrNotFound, nil)))
	assert.Equal(t, "unavailable", KindName(Wrap("get", ErrUnavailable, errors.New("x"))))
	assert.Equal(t, "permission_denied", KindName(ErrPermissionDenied))
	assert.Equal(t, "conflict", KindName(ErrConflict))
	assert.Equal(t, "canceled", KindName(context.Canceled))
}

func TestMatches(t *testing.T) {
	data := map[string]any{"pageType": "home", "approved": false, "n": int64(2)}

	assert.True(t, Matches(data, []Filter{{Field: "pageType", Value: "home"}, {Field: "approved", Value: false}}))
	assert.True(t, Matches(data, []Filter{{Field: "n", Value: 2.0}}))
	assert.False(t, Matches(data, []Filter{{Field: "approved", Value: true}}))
	assert.False(t, Matches(data, []Filter{{Field: "missing", Value: nil}}))
	assert.True(t, Matches(data, nil))
}
