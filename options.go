package loopback

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the spans emitted by this package.
const TracerName = "github.com/gen2brain/loopback"

type options struct {
	logger   *log.Logger
	notifier Notifier
	tracer   trace.Tracer
	realtime bool
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger used by both workers.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNotifier sets the sink of RecordingStarted and RecordingComplete events.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithTracerProvider sets where session spans are reported. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(TracerName)
		}
	}
}

// WithRealtimePriority controls whether the workers ask the OS for real-time scheduling.
func WithRealtimePriority(enable bool) Option {
	return func(o *options) {
		o.realtime = enable
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   log.Default(),
		tracer:   otel.Tracer(TracerName),
		realtime: true,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
