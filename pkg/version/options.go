package version

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nainya/contentver/pkg/diff"
	"github.com/nainya/contentver/pkg/docstore"
)

const tracerName = "github.com/nainya/contentver/pkg/version"

type options struct {
	collection     string
	sequencer      docstore.Sequencer
	logger         zerolog.Logger
	recorder       Recorder
	publisher      Publisher
	tracerProvider trace.TracerProvider
	clock          func() time.Time
	newID          func() string
	maxVersions    int
	overflow       int
	asyncRetention bool
	mode           diff.Mode
}

func defaultOptions() options {
	return options{
		collection:  DefaultCollection,
		logger:      zerolog.Nop(),
		recorder:    nopRecorder{},
		publisher:   nopPublisher{},
		clock:       time.Now,
		newID:       uuid.NewString,
		maxVersions: MaxVersionsPerField,
		overflow:    DefaultOverflowBuffer,
		mode:        diff.ModeShallow,
	}
}

// Option configures a Store or Engine
type Option func(*options)

// WithCollection overrides the collection name
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// WithSequencer sets the sequence source. Required when the document store
// does not implement docstore.Sequencer itself.
func WithSequencer(seq docstore.Sequencer) Option {
	return func(o *options) { o.sequencer = seq }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithPublisher sets the event publisher
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithTracerProvider sets the tracer provider (default: the global one)
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithClock replaces time.Now
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithIDGenerator replaces the UUID generator
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// WithMaxVersions sets the per-scope retention bound
func WithMaxVersions(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxVersions = n
		}
	}
}

// WithOverflowBuffer sets how many extra versions a retention pass reads
func WithOverflowBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.overflow = n
		}
	}
}

// WithAsyncRetention runs retention in the background after each save
func WithAsyncRetention(async bool) Option {
	return func(o *options) { o.asyncRetention = async }
}

// WithDiffMode selects shallow (default) or deep change detection
func WithDiffMode(m diff.Mode) Option {
	return func(o *options) { o.mode = m }
}

func (o *options) tracer() trace.Tracer {
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}
