package gemtot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/passkit/gemtot/beacon"
	"github.com/passkit/gemtot/beaconid"
	"github.com/passkit/gemtot/broadcaster"
	"github.com/passkit/gemtot/config"
	"github.com/passkit/gemtot/health"
	"github.com/passkit/gemtot/notify"
	"github.com/passkit/gemtot/store"
)

const (
	defaultUUID   = "7b44b47b-52a1-5381-90c2-f09b6838c5d4"
	aliceUUID     = "3d152d76-be3c-52f0-813d-a136b364cfcf"
	frontDoorUUID = "b0a39ea1-4e76-51b0-8598-160ebc193496"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memorySettings() *config.Settings {
	return &config.Settings{Store: &config.StoreConfig{Type: config.StoreMemory}}
}

func newTestSDK(t *testing.T, opts ...Option) (*SDK, *broadcaster.MemoryRadio) {
	t.Helper()

	radio := broadcaster.NewMemoryRadio(broadcaster.StatePoweredOn)
	base := []Option{
		WithSettings(memorySettings()),
		WithLogger(discardLogger()),
		WithRadio(radio),
	}
	sdk, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sdk.Close()
	})
	return sdk, radio
}

func requireKind(t *testing.T, err error, kind string) {
	t.Helper()
	require.Error(t, err)
	var gerr *Error
	require.True(t, errors.As(err, &gerr), "expected *Error, got %T: %v", err, err)
	assert.Equal(t, kind, gerr.Kind)
}

func TestNewSeedsDefaultBeacon(t *testing.T) {
	sdk, _ := newTestSDK(t)

	cfg, err := sdk.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, beacon.DefaultName, cfg.Name)
	assert.Equal(t, defaultUUID, cfg.UUID)
	assert.Equal(t, beacon.DevicePower, cfg.Power)
	assert.False(t, cfg.Broadcasting)
	assert.False(t, sdk.BeaconStatus())
}

func TestNewInvalidSettings(t *testing.T) {
	_, err := New(context.Background(),
		WithSettings(&config.Settings{Store: &config.StoreConfig{Type: "sqlite"}}),
		WithLogger(discardLogger()),
	)
	requireKind(t, err, KindConfiguration)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewStoreUnavailable(t *testing.T) {
	settings := &config.Settings{Store: &config.StoreConfig{
		Type:  config.StoreRedis,
		Redis: &config.RedisConfig{URL: "redis://127.0.0.1:1"},
	}}
	_, err := New(context.Background(), WithSettings(settings), WithLogger(discardLogger()))
	requireKind(t, err, KindDependency)
}

func TestDeriveUUID(t *testing.T) {
	sdk, _ := newTestSDK(t)

	id, err := sdk.DeriveUUID("Alice")
	require.NoError(t, err)
	assert.Equal(t, aliceUUID, id)

	id, err = sdk.DeriveUUID("550E8400-E29B-41D4-A716-446655440000")
	require.NoError(t, err)
	assert.Equal(t, "550E8400-E29B-41D4-A716-446655440000", id)

	_, err = sdk.DeriveUUID("日本")
	requireKind(t, err, KindDependency)
	assert.ErrorIs(t, err, beaconid.ErrEncoding)
}

func TestSetBeaconName(t *testing.T) {
	ctx := context.Background()

	t.Run("derives and persists", func(t *testing.T) {
		sdk, _ := newTestSDK(t)

		cfg, err := sdk.SetBeaconName(ctx, "Alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", cfg.Name)
		assert.Equal(t, aliceUUID, cfg.UUID)

		stored, err := sdk.Config(ctx)
		require.NoError(t, err)
		assert.Equal(t, cfg, stored)
	})

	t.Run("empty name restores default", func(t *testing.T) {
		sdk, _ := newTestSDK(t)
		_, err := sdk.SetBeaconName(ctx, "Alice")
		require.NoError(t, err)

		cfg, err := sdk.SetBeaconName(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, beacon.DefaultName, cfg.Name)
		assert.Equal(t, defaultUUID, cfg.UUID)
	})

	t.Run("empty name uses device name", func(t *testing.T) {
		settings := memorySettings()
		settings.DeviceName = "Front Door"
		sdk, _ := newTestSDK(t, WithSettings(settings))

		cfg, err := sdk.SetBeaconName(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "Front Door", cfg.Name)
		assert.Equal(t, frontDoorUUID, cfg.UUID)
	})

	t.Run("canonical uuid passes through", func(t *testing.T) {
		sdk, _ := newTestSDK(t)
		cfg, err := sdk.SetBeaconName(ctx, "550e8400-e29b-41d4-a716-446655440000")
		require.NoError(t, err)
		assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", cfg.UUID)
	})

	t.Run("unencodable name", func(t *testing.T) {
		sdk, _ := newTestSDK(t)
		_, err := sdk.SetBeaconName(ctx, "beacon 🚀")
		requireKind(t, err, KindDependency)

		cfg, err := sdk.Config(ctx)
		require.NoError(t, err)
		assert.Equal(t, defaultUUID, cfg.UUID, "stored beacon must be unchanged")
	})
}

func TestSetMajorMinorPower(t *testing.T) {
	ctx := context.Background()
	sdk, _ := newTestSDK(t)

	cfg, err := sdk.SetMajor(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), cfg.Major)

	cfg, err = sdk.SetMinor(ctx, " 65535 ")
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), cfg.Minor)

	cfg, err = sdk.SetPower(ctx, -59)
	require.NoError(t, err)
	assert.Equal(t, int8(-59), cfg.Power)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"major overflow", func() error { _, err := sdk.SetMajor(ctx, "65536"); return err }, beacon.ErrInvalidMajor},
		{"major text", func() error { _, err := sdk.SetMajor(ctx, "abc"); return err }, beacon.ErrInvalidMajor},
		{"minor negative", func() error { _, err := sdk.SetMinor(ctx, "-1"); return err }, beacon.ErrInvalidMinor},
		{"minor empty", func() error { _, err := sdk.SetMinor(ctx, ""); return err }, beacon.ErrInvalidMinor},
		{"power overflow", func() error { _, err := sdk.SetPower(ctx, 200); return err }, beacon.ErrInvalidPower},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			requireKind(t, err, KindValidation)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored, err := sdk.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), stored.Major)
	assert.Equal(t, uint16(65535), stored.Minor)
	assert.Equal(t, int8(-59), stored.Power)
}

func TestStartStopBeacon(t *testing.T) {
	ctx := context.Background()
	sdk, radio := newTestSDK(t)

	require.NoError(t, sdk.StartBeacon(ctx))
	assert.True(t, sdk.BeaconStatus())

	reading, err := beacon.ParsePacket(radio.Payload())
	require.NoError(t, err)
	assert.Equal(t, defaultUUID, reading.UUID.String())

	cfg, err := sdk.Config(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Broadcasting)

	require.NoError(t, sdk.StopBeacon(ctx))
	assert.False(t, sdk.BeaconStatus())
	cfg, err = sdk.Config(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.Broadcasting)
}

func TestStartBeaconRadioOff(t *testing.T) {
	radio := broadcaster.NewMemoryRadio(broadcaster.StatePoweredOff)
	sdk, _ := newTestSDK(t, WithRadio(radio))

	events, err := sdk.Subscribe(t.Context())
	require.NoError(t, err)

	err = sdk.StartBeacon(context.Background())
	requireKind(t, err, KindRadio)
	assert.ErrorIs(t, err, broadcaster.ErrRadioUnavailable)

	select {
	case ev := <-events:
		assert.False(t, ev.Broadcasting)
		assert.Equal(t, notify.ReasonRadioUnavailable, ev.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for broadcast status event")
	}
}

func TestEditWhileBroadcastingRestarts(t *testing.T) {
	ctx := context.Background()
	sdk, radio := newTestSDK(t)
	require.NoError(t, sdk.StartBeacon(ctx))

	_, err := sdk.SetMajor(ctx, "7")
	require.NoError(t, err)
	_, err = sdk.SetBeaconName(ctx, "Alice")
	require.NoError(t, err)

	assert.Equal(t, 3, radio.Starts())
	reading, err := beacon.ParsePacket(radio.Payload())
	require.NoError(t, err)
	assert.Equal(t, aliceUUID, reading.UUID.String())
	assert.Equal(t, uint16(7), reading.Major)
}

func TestEditWhileIdleDoesNotStart(t *testing.T) {
	sdk, radio := newTestSDK(t)

	_, err := sdk.SetMinor(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, 0, radio.Starts())
	assert.False(t, sdk.BeaconStatus())
}

func TestHandleRadioStateRestoresBeacon(t *testing.T) {
	ctx := context.Background()
	sdk, radio := newTestSDK(t)
	require.NoError(t, sdk.StartBeacon(ctx))

	radio.SetState(broadcaster.StatePoweredOff)
	require.NoError(t, sdk.HandleRadioState(ctx, broadcaster.StatePoweredOff))
	assert.False(t, sdk.BeaconStatus())

	events, err := sdk.Subscribe(t.Context())
	require.NoError(t, err)

	radio.SetState(broadcaster.StatePoweredOn)
	require.NoError(t, sdk.HandleRadioState(ctx, broadcaster.StatePoweredOn))
	assert.True(t, sdk.BeaconStatus())

	select {
	case ev := <-events:
		assert.True(t, ev.Broadcasting)
		assert.Equal(t, notify.ReasonRestored, ev.Reason)
		assert.Equal(t, defaultUUID, ev.UUID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for broadcast status event")
	}
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		sdk, _ := newTestSDK(t)
		status := sdk.Health(ctx)
		assert.Equal(t, health.StatusHealthy, status.Status, status.Message)
	})

	t.Run("radio powered off", func(t *testing.T) {
		sdk, radio := newTestSDK(t)
		radio.SetState(broadcaster.StatePoweredOff)
		status := sdk.Health(ctx)
		assert.Equal(t, health.StatusDegraded, status.Status, status.Message)
	})

	t.Run("file store", func(t *testing.T) {
		settings := &config.Settings{Store: &config.StoreConfig{Type: config.StoreFile, Dir: t.TempDir()}}
		sdk, _ := newTestSDK(t, WithSettings(settings))
		status := sdk.Health(ctx)
		assert.Equal(t, health.StatusHealthy, status.Status, status.Message)
		assert.Contains(t, status.Message, "all 4 check(s) passed")
	})

	t.Run("caller file store checks its own directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "beacons")
		fs, err := store.NewFileStore(dir)
		require.NoError(t, err)

		settings := &config.Settings{Store: &config.StoreConfig{
			Type: config.StoreFile,
			Dir:  filepath.Join(t.TempDir(), "missing"),
		}}
		sdk, _ := newTestSDK(t, WithSettings(settings), WithStore(fs))
		status := sdk.Health(ctx)
		assert.Equal(t, health.StatusHealthy, status.Status, status.Message)
		assert.Contains(t, status.Message, "all 4 check(s) passed")

		require.NoError(t, os.RemoveAll(dir))
		status = sdk.Health(ctx)
		assert.Equal(t, health.StatusUnhealthy, status.Status, status.Message)
	})
}

func TestWithStoreIsNotClosed(t *testing.T) {
	st := store.NewMemoryStore()
	sdk, err := New(context.Background(),
		WithStore(st),
		WithStoreName("lobby"),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)

	_, err = sdk.SetBeaconName(context.Background(), "Alice")
	require.NoError(t, err)
	require.NoError(t, sdk.Close())

	cfg, err := st.Load(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Equal(t, aliceUUID, cfg.UUID)
}

func TestClose(t *testing.T) {
	sdk, _ := newTestSDK(t)

	require.NoError(t, sdk.Close())
	require.NoError(t, sdk.Close())

	_, err := sdk.SetMajor(context.Background(), "1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedisBackedSDK(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	settings := &config.Settings{
		Store: &config.StoreConfig{
			Type:  config.StoreRedis,
			Redis: &config.RedisConfig{URL: fmt.Sprintf("redis://%s", mr.Addr())},
		},
		Notify: &config.NotifyConfig{Type: config.NotifyRedis},
	}
	sdk, radio := newTestSDK(t, WithSettings(settings))

	_, err := sdk.SetBeaconName(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, aliceUUID, mr.HGet("gemtot:store:iBeacon", "uuid"))

	events, err := sdk.Subscribe(t.Context())
	require.NoError(t, err)

	radio.SetState(broadcaster.StatePoweredOff)
	err = sdk.StartBeacon(ctx)
	requireKind(t, err, KindRadio)

	select {
	case ev := <-events:
		assert.Equal(t, notify.ReasonRadioUnavailable, ev.Reason)
		assert.Equal(t, aliceUUID, ev.UUID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for broadcast status event")
	}
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	sdk, _ := newTestSDK(t, WithTracer(tp.Tracer("gemtot-test")))
	require.NoError(t, sdk.StartBeacon(context.Background()))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "gemtot.broadcast.start", ended[0].Name())
}
