package gemtot

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/passkit/gemtot/beaconid"
	"github.com/passkit/gemtot/broadcaster"
	"github.com/passkit/gemtot/config"
	"github.com/passkit/gemtot/notify"
	"github.com/passkit/gemtot/store"
)

// Option configures the SDK.
type Option func(*options)

type options struct {
	settings      *config.Settings
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	store         store.Store
	storeName     string
	radio         broadcaster.Radio
	notifier      notify.Notifier
	deriver       *beaconid.Deriver
}

// WithSettings sets the runtime settings. Without it config.Default() is
// used.
func WithSettings(s *config.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithLogger sets a custom logger.
// If not provided, a JSON logger on stdout at the configured level is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for broadcaster spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for broadcaster
// counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithStore uses st instead of opening the store named by the settings.
// The caller keeps ownership of st.
func WithStore(st store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithStoreName overrides the store entry holding the beacon.
func WithStoreName(name string) Option {
	return func(o *options) {
		o.storeName = name
	}
}

// WithRadio sets the Bluetooth radio. Without it an in-memory radio that is
// powered on is used.
func WithRadio(r broadcaster.Radio) Option {
	return func(o *options) {
		o.radio = r
	}
}

// WithNotifier uses n for broadcast status events. The caller keeps
// ownership of n.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithDeriver sets the UUID deriver, for example one with another namespace.
func WithDeriver(d *beaconid.Deriver) Option {
	return func(o *options) {
		o.deriver = d
	}
}
