// Package broadcaster turns the radio into an iBeacon.
//
// A Broadcaster validates the beacon parameters, waits briefly for the radio
// to report its power state, encodes the iBeacon advertisement and puts it on
// air. Whether the beacon is broadcasting is persisted in the store so that
// the beacon comes back after the radio is power cycled.
package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/passkit/gemtot/beacon"
	"github.com/passkit/gemtot/notify"
	"github.com/passkit/gemtot/store"
)

const (
	// DefaultStateWait bounds how long Start waits for an unknown radio state
	// to settle.
	DefaultStateWait = time.Second

	// DefaultPollInterval is how often the radio state is polled while waiting.
	DefaultPollInterval = time.Millisecond

	// DefaultDevicePower is the calibrated power advertised when a
	// configuration asks for the device default.
	DefaultDevicePower int8 = -59
)

var (
	// ErrRadioUnavailable indicates the radio is not powered on.
	ErrRadioUnavailable = errors.New("bluetooth radio unavailable")

	// ErrAdvertising indicates the radio rejected a start or stop request.
	ErrAdvertising = errors.New("advertising failed")
)

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithStoreName selects the store entry holding the beacon.
func WithStoreName(name string) Option {
	return func(b *Broadcaster) {
		b.name = name
	}
}

// WithNotifier sets where status events are published.
func WithNotifier(n notify.Notifier) Option {
	return func(b *Broadcaster) {
		b.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithTracer sets the tracer spans are recorded with.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Broadcaster) {
		b.tracer = tracer
	}
}

// WithMeterProvider sets the provider the broadcast counters are created from.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(b *Broadcaster) {
		b.meterProvider = mp
	}
}

// WithStateWait sets how long to wait for an unknown radio state to settle.
func WithStateWait(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.stateWait = d
	}
}

// WithPollInterval sets how often the radio state is polled while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.pollInterval = d
	}
}

// WithDevicePower sets the power advertised for the device default.
func WithDevicePower(p int8) Option {
	return func(b *Broadcaster) {
		b.devicePower = p
	}
}

// Broadcaster advertises the configured beacon on a Radio. It is safe for
// concurrent use; operations are serialised.
type Broadcaster struct {
	store         store.Store
	name          string
	radio         Radio
	notifier      notify.Notifier
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	metrics       *otelMetrics
	stateWait     time.Duration
	pollInterval  time.Duration
	devicePower   int8
	now           func() time.Time

	mu sync.Mutex
}

// New creates a Broadcaster for the beacon held in st.
func New(st store.Store, radio Radio, opts ...Option) (*Broadcaster, error) {
	if st == nil {
		return nil, errors.New("broadcaster: store is required")
	}
	if radio == nil {
		return nil, errors.New("broadcaster: radio is required")
	}

	b := &Broadcaster{
		store:        st,
		name:         store.DefaultName,
		radio:        radio,
		stateWait:    DefaultStateWait,
		pollInterval: DefaultPollInterval,
		devicePower:  DefaultDevicePower,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.notifier == nil {
		b.notifier = notify.NewBus(b.logger)
	}
	if b.tracer == nil {
		b.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	if b.meterProvider == nil {
		b.meterProvider = metricnoop.NewMeterProvider()
	}
	if b.pollInterval <= 0 {
		b.pollInterval = DefaultPollInterval
	}

	m, err := newOTelMetrics(b.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	b.metrics = m

	return b, nil
}

// Notifier returns the notifier status events are published on.
func (b *Broadcaster) Notifier() notify.Notifier {
	return b.notifier
}

// Radio returns the radio the beacon is advertised on.
func (b *Broadcaster) Radio() Radio {
	return b.radio
}

// Status reports whether the beacon is on air.
func (b *Broadcaster) Status() bool {
	return b.radio.Advertising()
}

// Start advertises the stored beacon configuration.
func (b *Broadcaster) Start(ctx context.Context) error {
	cfg, err := b.store.Load(ctx, b.name)
	if err != nil {
		return fmt.Errorf("failed to load beacon configuration: %w", err)
	}
	return b.StartFor(ctx, cfg.UUID, int(cfg.Major), int(cfg.Minor), int(cfg.Power))
}

// StartFor advertises the given parameters. Power 127 advertises the device
// default. Any advertisement already on air is replaced.
func (b *Broadcaster) StartFor(ctx context.Context, id string, major, minor, power int) error {
	ctx, span := b.tracer.Start(ctx, "gemtot.broadcast.start")
	defer span.End()

	span.SetAttributes(
		attribute.String("beacon.uuid", id),
		attribute.Int("beacon.major", major),
		attribute.Int("beacon.minor", minor),
		attribute.Int("beacon.power", power),
	)

	cfg, err := checkParams(id, major, minor, power)
	if err != nil {
		b.fail(ctx, span, "invalid_parameters", err)
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.start(ctx, span, cfg); err != nil {
		return err
	}

	b.logger.Info("beacon broadcasting",
		"uuid", cfg.UUID,
		"major", cfg.Major,
		"minor", cfg.Minor,
		"power", beacon.DescribePower(cfg.Power))
	return nil
}

func checkParams(id string, major, minor, power int) (beacon.Config, error) {
	if _, err := beacon.ParseUUID(id); err != nil {
		return beacon.Config{}, err
	}
	mj, err := beacon.CheckMajor(major)
	if err != nil {
		return beacon.Config{}, err
	}
	mn, err := beacon.CheckMinor(minor)
	if err != nil {
		return beacon.Config{}, err
	}
	pw, err := beacon.CheckPower(power)
	if err != nil {
		return beacon.Config{}, err
	}
	return beacon.Config{UUID: id, Major: mj, Minor: mn, Power: pw}, nil
}

// start must be called with b.mu held.
func (b *Broadcaster) start(ctx context.Context, span trace.Span, cfg beacon.Config) error {
	if b.radio.Advertising() {
		if err := b.radio.StopAdvertising(ctx); err != nil {
			b.fail(ctx, span, "stop_failed", err)
			return fmt.Errorf("%w: stopping current advertisement: %w", ErrAdvertising, err)
		}
	}

	state, err := b.waitForState(ctx)
	if err != nil {
		b.fail(ctx, span, "canceled", err)
		return err
	}
	span.SetAttributes(attribute.String("radio.state", state.String()))

	if state != StatePoweredOn {
		err := fmt.Errorf("%w: radio is %s", ErrRadioUnavailable, state)
		b.fail(ctx, span, "radio_unavailable", err)
		b.publish(ctx, notify.Event{
			Broadcasting: false,
			Reason:       notify.ReasonRadioUnavailable,
			UUID:         cfg.UUID,
		})
		return err
	}

	payload, err := beacon.Packet(cfg, b.devicePower)
	if err != nil {
		b.fail(ctx, span, "encode_failed", err)
		return err
	}

	if err := b.radio.StartAdvertising(ctx, payload); err != nil {
		b.fail(ctx, span, "advertise_failed", err)
		return fmt.Errorf("%w: %w", ErrAdvertising, err)
	}

	if err := b.setBroadcasting(ctx, true); err != nil {
		b.fail(ctx, span, "persist_failed", err)
		return err
	}

	b.metrics.starts.Add(ctx, 1)
	span.SetStatus(codes.Ok, "broadcasting")
	return nil
}

// waitForState polls while the radio state is unknown, up to stateWait.
func (b *Broadcaster) waitForState(ctx context.Context) (RadioState, error) {
	state := b.radio.State()
	if state != StateUnknown || b.stateWait <= 0 {
		return state, nil
	}

	deadline := time.NewTimer(b.stateWait)
	defer deadline.Stop()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for state == StateUnknown {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-deadline.C:
			return b.radio.State(), nil
		case <-ticker.C:
			state = b.radio.State()
		}
	}
	return state, nil
}

// Stop takes the beacon off air and records that it should stay off.
func (b *Broadcaster) Stop(ctx context.Context) error {
	ctx, span := b.tracer.Start(ctx, "gemtot.broadcast.stop")
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.radio.Advertising() {
		return nil
	}
	if err := b.stop(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	b.logger.Info("beacon stopped")
	return nil
}

// stop must be called with b.mu held.
func (b *Broadcaster) stop(ctx context.Context) error {
	if err := b.setBroadcasting(ctx, false); err != nil {
		return err
	}
	if err := b.radio.StopAdvertising(ctx); err != nil {
		return fmt.Errorf("%w: stopping: %w", ErrAdvertising, err)
	}
	b.metrics.stops.Add(ctx, 1)
	return nil
}

// HandleStateChange reconciles the radio with the persisted broadcasting
// flag once the radio reports it is powered on. Nothing happens when the
// radio already matches the flag. Other states are logged.
func (b *Broadcaster) HandleStateChange(ctx context.Context, state RadioState) error {
	if state != StatePoweredOn {
		b.logger.Info("bluetooth radio not available", "state", state.String())
		return nil
	}

	ctx, span := b.tracer.Start(ctx, "gemtot.broadcast.reconcile")
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	cfg, err := b.store.Load(ctx, b.name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to load beacon configuration: %w", err)
	}
	span.SetAttributes(attribute.Bool("beacon.broadcasting", cfg.Broadcasting))

	if b.radio.Advertising() == cfg.Broadcasting {
		b.logger.Debug("beacon already in sync with radio", "broadcasting", cfg.Broadcasting)
		return nil
	}

	if cfg.Broadcasting {
		if err := b.start(ctx, span, cfg); err != nil {
			return err
		}
		b.logger.Info("beacon broadcasting restored", "uuid", cfg.UUID)
		b.publish(ctx, notify.Event{
			Broadcasting: true,
			Reason:       notify.ReasonRestored,
			UUID:         cfg.UUID,
		})
		return nil
	}

	if b.radio.Advertising() {
		if err := b.stop(ctx); err != nil {
			span.RecordError(err)
			return err
		}
	}
	b.publish(ctx, notify.Event{
		Broadcasting: false,
		Reason:       notify.ReasonStopped,
		UUID:         cfg.UUID,
	})
	return nil
}

func (b *Broadcaster) setBroadcasting(ctx context.Context, on bool) error {
	_, err := store.Update(ctx, b.store, b.name, func(c *beacon.Config) error {
		c.Broadcasting = on
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist broadcasting=%t: %w", on, err)
	}
	return nil
}

func (b *Broadcaster) publish(ctx context.Context, ev notify.Event) {
	ev.At = b.now()
	if err := b.notifier.Publish(ctx, ev); err != nil {
		b.logger.Warn("failed to publish broadcast status",
			"broadcasting", ev.Broadcasting,
			"reason", ev.Reason,
			"error", err)
	}
}

func (b *Broadcaster) fail(ctx context.Context, span trace.Span, reason string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	b.metrics.recordFailure(ctx, reason)
	b.logger.Warn("beacon failed to start", "reason", reason, "error", err)
}
