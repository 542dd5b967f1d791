package gemtot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/passkit/gemtot/beacon"
	"github.com/passkit/gemtot/beaconid"
	"github.com/passkit/gemtot/broadcaster"
	"github.com/passkit/gemtot/config"
	"github.com/passkit/gemtot/health"
	"github.com/passkit/gemtot/notify"
	"github.com/passkit/gemtot/store"
)

// SDK is the entry point for host applications. It owns the beacon
// configuration store, the broadcaster and the status notifier.
type SDK struct {
	settings    *config.Settings
	logger      *slog.Logger
	deriver     *beaconid.Deriver
	store       store.Store
	storeName   string
	defaultName string
	radio       broadcaster.Radio
	notifier    notify.Notifier
	broadcaster *broadcaster.Broadcaster

	// closers are released in reverse order by Close.
	closers []namedCloser

	mu     sync.Mutex
	closed bool
}

type namedCloser struct {
	name  string
	close func() error
}

// New creates the SDK. Resources it opens itself (the store selected by the
// settings, a Redis notifier) are released by Close.
func New(ctx context.Context, opts ...Option) (*SDK, error) {
	const op = "New"

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.settings == nil {
		o.settings = config.Default()
	}
	if err := o.settings.Validate(); err != nil {
		return nil, NewConfigurationError(op, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: o.settings.GetLevel(),
		}))
	}
	if o.deriver == nil {
		o.deriver = beaconid.NewDeriver()
	}
	if o.storeName == "" {
		o.storeName = o.settings.GetStore().GetName()
	}
	if o.radio == nil {
		o.radio = broadcaster.NewMemoryRadio(broadcaster.StatePoweredOn)
	}

	s := &SDK{
		settings:    o.settings,
		logger:      o.logger,
		deriver:     o.deriver,
		storeName:   o.storeName,
		defaultName: beacon.DefaultName,
		radio:       o.radio,
	}
	if o.settings.DeviceName != "" {
		s.defaultName = o.settings.DeviceName
	}

	if err := s.init(ctx, o); err != nil {
		_ = s.release()
		return nil, err
	}

	s.logger.Info("gemtot sdk ready",
		"store", s.storeName,
		"store_type", s.settings.GetStore().GetType(),
		"notify_type", s.settings.GetNotify().GetType())
	return s, nil
}

func (s *SDK) init(ctx context.Context, o *options) error {
	const op = "New"

	s.store = o.store
	if s.store == nil {
		st, err := store.Open(ctx, s.settings, s.logger)
		if err != nil {
			return NewDependencyError(op, err).WithContext(map[string]any{
				"store_type": s.settings.GetStore().GetType(),
			})
		}
		s.store = st
		s.own("beacon store", st.Close)
	}

	s.notifier = o.notifier
	if s.notifier == nil {
		n, err := s.openNotifier(ctx)
		if err != nil {
			return NewDependencyError(op, err)
		}
		s.notifier = n
	}

	b, err := broadcaster.New(s.store, s.radio,
		broadcaster.WithStoreName(s.storeName),
		broadcaster.WithNotifier(s.notifier),
		broadcaster.WithLogger(s.logger),
		broadcaster.WithTracer(o.tracer),
		broadcaster.WithMeterProvider(o.meterProvider),
	)
	if err != nil {
		return NewInternalError(op, err)
	}
	s.broadcaster = b

	// Seed the stored beacon so a fresh install has a UUID.
	if _, err := s.store.Load(ctx, s.storeName); err != nil && !errors.Is(err, store.ErrNotFound) {
		return NewStorageError(op, err)
	}
	return nil
}

func (s *SDK) openNotifier(ctx context.Context) (notify.Notifier, error) {
	switch s.settings.GetNotify().GetType() {
	case config.NotifyRedis:
		rc := s.settings.GetStore().GetRedis()
		client, err := store.NewRedisClient(ctx, store.RedisOptions{URL: rc.GetURL()})
		if err != nil {
			return nil, err
		}
		s.own("notifier redis client", client.Close)
		n := notify.NewRedisNotifier(client, rc.GetPrefix()+":broadcast-status", s.logger)
		s.own("redis notifier", n.Close)
		return n, nil
	default:
		bus := notify.NewBus(s.logger)
		s.own("notification bus", bus.Close)
		return bus, nil
	}
}

func (s *SDK) own(name string, fn func() error) {
	s.closers = append(s.closers, namedCloser{name: name, close: fn})
}

// Settings returns the runtime settings in use.
func (s *SDK) Settings() *config.Settings {
	return s.settings
}

// Store returns the beacon configuration store.
func (s *SDK) Store() store.Store {
	return s.store
}

// Broadcaster returns the broadcaster advertising the beacon.
func (s *SDK) Broadcaster() *broadcaster.Broadcaster {
	return s.broadcaster
}

// DeriveUUID derives the proximity UUID for name. Canonical UUIDs are
// returned unchanged.
func (s *SDK) DeriveUUID(name string) (string, error) {
	id, err := s.deriver.DeriveUUID(name)
	if err != nil {
		return "", NewDependencyError("SDK.DeriveUUID", err).WithContext(map[string]any{"name": name})
	}
	return id, nil
}

// Config returns the stored beacon configuration.
func (s *SDK) Config(ctx context.Context) (beacon.Config, error) {
	cfg, err := s.store.Load(ctx, s.storeName)
	if err != nil {
		return beacon.Config{}, classify("SDK.Config", err)
	}
	return cfg, nil
}

// SetBeaconName names the beacon and replaces its proximity UUID with the one
// derived from name. An empty name restores the default name.
func (s *SDK) SetBeaconName(ctx context.Context, name string) (beacon.Config, error) {
	const op = "SDK.SetBeaconName"

	if name == "" {
		name = s.defaultName
	}
	id, err := s.deriver.DeriveUUID(name)
	if err != nil {
		return beacon.Config{}, NewDependencyError(op, err).WithContext(map[string]any{"name": name})
	}

	return s.edit(ctx, op, func(c *beacon.Config) error {
		c.Name = name
		c.UUID = id
		return nil
	})
}

// SetMajor parses and stores the major value.
func (s *SDK) SetMajor(ctx context.Context, major string) (beacon.Config, error) {
	const op = "SDK.SetMajor"

	v, err := beacon.ParseMajor(major)
	if err != nil {
		return beacon.Config{}, NewValidationError(op, err)
	}
	return s.edit(ctx, op, func(c *beacon.Config) error {
		c.Major = v
		return nil
	})
}

// SetMinor parses and stores the minor value.
func (s *SDK) SetMinor(ctx context.Context, minor string) (beacon.Config, error) {
	const op = "SDK.SetMinor"

	v, err := beacon.ParseMinor(minor)
	if err != nil {
		return beacon.Config{}, NewValidationError(op, err)
	}
	return s.edit(ctx, op, func(c *beacon.Config) error {
		c.Minor = v
		return nil
	})
}

// SetPower stores the measured power. beacon.DevicePower selects the
// device default.
func (s *SDK) SetPower(ctx context.Context, power int) (beacon.Config, error) {
	const op = "SDK.SetPower"

	v, err := beacon.CheckPower(power)
	if err != nil {
		return beacon.Config{}, NewValidationError(op, err)
	}
	return s.edit(ctx, op, func(c *beacon.Config) error {
		c.Power = v
		return nil
	})
}

// edit applies fn to the stored configuration and, if the beacon is on air,
// restarts it so the new values are advertised.
func (s *SDK) edit(ctx context.Context, op string, fn func(*beacon.Config) error) (beacon.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return beacon.Config{}, NewInternalError(op, ErrClosed)
	}

	cfg, err := store.Update(ctx, s.store, s.storeName, fn)
	if err != nil {
		return beacon.Config{}, classify(op, err)
	}
	s.logger.Info("beacon configuration updated",
		"store", s.storeName,
		"beacon_uuid", cfg.UUID,
		"major", cfg.Major,
		"minor", cfg.Minor)

	if s.broadcaster.Status() {
		err := s.broadcaster.StartFor(ctx, cfg.UUID, int(cfg.Major), int(cfg.Minor), int(cfg.Power))
		if err != nil {
			return cfg, classify(op, err)
		}
	}
	return cfg, nil
}

// StartBeacon advertises the stored beacon.
func (s *SDK) StartBeacon(ctx context.Context) error {
	if err := s.broadcaster.Start(ctx); err != nil {
		return classify("SDK.StartBeacon", err)
	}
	return nil
}

// StopBeacon takes the beacon off air.
func (s *SDK) StopBeacon(ctx context.Context) error {
	if err := s.broadcaster.Stop(ctx); err != nil {
		return classify("SDK.StopBeacon", err)
	}
	return nil
}

// BeaconStatus reports whether the beacon is on air.
func (s *SDK) BeaconStatus() bool {
	return s.broadcaster.Status()
}

// HandleRadioState forwards a radio power state change. Hosts call it from
// their Bluetooth state callback.
func (s *SDK) HandleRadioState(ctx context.Context, state broadcaster.RadioState) error {
	if err := s.broadcaster.HandleStateChange(ctx, state); err != nil {
		return classify("SDK.HandleRadioState", err)
	}
	return nil
}

// Subscribe returns broadcast status events until ctx is done.
func (s *SDK) Subscribe(ctx context.Context) (<-chan notify.Event, error) {
	ch, err := s.notifier.Subscribe(ctx)
	if err != nil {
		return nil, NewDependencyError("SDK.Subscribe", err)
	}
	return ch, nil
}

// Health combines the store, radio and UUID checks. File stores also check
// their directory.
func (s *SDK) Health(ctx context.Context) health.Status {
	checks := []health.Status{
		health.StoreCheck(ctx, s.store, s.storeName),
		health.RadioCheck(s.radio),
	}
	if cfg, err := s.store.Load(ctx, s.storeName); err == nil {
		checks = append(checks, health.UUIDCheck(cfg.UUID))
	}
	if fs, ok := s.store.(*store.FileStore); ok {
		checks = append(checks, health.FileCheck(fs.Dir()))
	}
	return health.Combine(checks...)
}

// Close releases the resources New opened. The beacon keeps its persisted
// broadcasting flag.
func (s *SDK) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.release()
}

func (s *SDK) release() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			s.logger.Warn("failed to close resource", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// classify wraps err in an Error whose Kind reflects its cause.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, beacon.ErrInvalidUUID),
		errors.Is(err, beacon.ErrInvalidMajor),
		errors.Is(err, beacon.ErrInvalidMinor),
		errors.Is(err, beacon.ErrInvalidPower):
		return NewValidationError(op, err)
	case errors.Is(err, store.ErrNotFound):
		return NewNotFoundError(op, err)
	case errors.Is(err, broadcaster.ErrRadioUnavailable), errors.Is(err, broadcaster.ErrAdvertising):
		return NewRadioError(op, err)
	case errors.Is(err, beaconid.ErrHashUnavailable), errors.Is(err, beaconid.ErrEncoding):
		return NewDependencyError(op, err)
	case errors.Is(err, store.ErrInvalidConfig), errors.Is(err, store.ErrClosed):
		return NewStorageError(op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewInternalError(op, err)
	default:
		return NewStorageError(op, err)
	}
}
