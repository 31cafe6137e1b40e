// ABOUTME: Redis INCR sequencer for document stores without an atomic counter
// ABOUTME: One key per scope; INCR is atomic across every engine instance

package redisseq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/nainya/contentver/pkg/docstore"
)

const defaultPrefix = "contentver:seq"

// Options configures the Redis connection
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Sequencer implements docstore.Sequencer and docstore.Pinger
type Sequencer struct {
	client *red.Client
	prefix string
	owned  bool
}

// Dial connects to Redis and verifies the connection
func Dial(ctx context.Context, opts Options) (*Sequencer, error) {
	client := red.NewClient(&red.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, classify("dial", err)
	}

	s := New(client, opts.KeyPrefix)
	s.owned = true
	return s, nil
}

// New wraps an existing client
func New(client *red.Client, keyPrefix string) *Sequencer {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Sequencer{client: client, prefix: prefix}
}

// NextSequence increments and returns the counter for scope
func (s *Sequencer) NextSequence(ctx context.Context, scope string) (int64, error) {
	if scope == "" {
		return 0, fmt.Errorf("next sequence: scope is required")
	}
	n, err := s.client.Incr(ctx, s.key(scope)).Result()
	if err != nil {
		return 0, classify("next sequence", err)
	}
	return n, nil
}

// Ping checks the connection
func (s *Sequencer) Ping(ctx context.Context) error {
	return classify("ping", s.client.Ping(ctx).Err())
}

// Close closes the client if Dial created it
func (s *Sequencer) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (s *Sequencer) key(scope string) string {
	return s.prefix + ":" + scope
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var redisErr red.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range []string{"NOAUTH", "NOPERM", "WRONGPASS"} {
			if strings.HasPrefix(msg, prefix) {
				return docstore.Wrap(op, docstore.ErrPermissionDenied, err)
			}
		}
		if strings.HasPrefix(msg, "LOADING") || strings.HasPrefix(msg, "READONLY") {
			return docstore.Wrap(op, docstore.ErrUnavailable, err)
		}
	}
	if errors.Is(err, red.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return docstore.Wrap(op, docstore.ErrUnavailable, err)
	}
	return docstore.Classify(op, err)
}
