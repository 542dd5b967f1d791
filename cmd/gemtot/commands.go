package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/passkit/gemtot"
	"github.com/passkit/gemtot/beacon"
	"github.com/passkit/gemtot/beaconid"
	"github.com/passkit/gemtot/broadcaster"
	"github.com/passkit/gemtot/serve"
)

func cmdUUID(c *cli.Context) error {
	if c.NArg() == 0 {
		return usageError(c, "at least one NAME is required")
	}

	d := beaconid.NewDeriver()
	for _, name := range c.Args() {
		id, err := d.DeriveUUID(name)
		if err != nil {
			return fmt.Errorf("deriving UUID for %q: %w", name, err)
		}
		fmt.Fprintln(c.App.Writer, id)
	}
	return nil
}

// withSDK opens the SDK from the global flags, runs fn and closes it.
func withSDK(c *cli.Context, fn func(ctx context.Context, sdk *gemtot.SDK) error, opts ...gemtot.Option) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, settings)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sdk, err := gemtot.New(ctx, append([]gemtot.Option{
		gemtot.WithSettings(settings),
		gemtot.WithLogger(logger),
	}, opts...)...)
	if err != nil {
		return err
	}
	defer gemtot.CloseWithLog(sdk, logger, "gemtot sdk")

	return fn(ctx, sdk)
}

func printConfig(c *cli.Context, cfg beacon.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode beacon: %w", err)
	}
	_, err = c.App.Writer.Write(out)
	return err
}

func cmdConfigShow(c *cli.Context) error {
	return withSDK(c, func(ctx context.Context, sdk *gemtot.SDK) error {
		cfg, err := sdk.Config(ctx)
		if err != nil {
			return err
		}
		if c.Bool("summary") {
			fmt.Fprintln(c.App.Writer, cfg.Summary())
			return nil
		}
		return printConfig(c, cfg)
	})
}

func cmdSetName(c *cli.Context) error {
	if c.NArg() > 1 {
		return usageError(c, "expected at most one NAME, got %d", c.NArg())
	}
	return withSDK(c, func(ctx context.Context, sdk *gemtot.SDK) error {
		cfg, err := sdk.SetBeaconName(ctx, c.Args().First())
		if err != nil {
			return err
		}
		return printConfig(c, cfg)
	})
}

func cmdSetMajor(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(c, "expected exactly one VALUE")
	}
	return withSDK(c, func(ctx context.Context, sdk *gemtot.SDK) error {
		cfg, err := sdk.SetMajor(ctx, c.Args().First())
		if err != nil {
			return err
		}
		return printConfig(c, cfg)
	})
}

func cmdSetMinor(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(c, "expected exactly one VALUE")
	}
	return withSDK(c, func(ctx context.Context, sdk *gemtot.SDK) error {
		cfg, err := sdk.SetMinor(ctx, c.Args().First())
		if err != nil {
			return err
		}
		return printConfig(c, cfg)
	})
}

func cmdSetPower(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(c, "expected exactly one DBM value")
	}

	arg := c.Args().First()
	power := int(beacon.DevicePower)
	if arg != "device" {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return usageError(c, "invalid power %q", arg)
		}
		power = v
	}

	return withSDK(c, func(ctx context.Context, sdk *gemtot.SDK) error {
		cfg, err := sdk.SetPower(ctx, power)
		if err != nil {
			return err
		}
		return printConfig(c, cfg)
	})
}

func cmdAdvertise(c *cli.Context) error {
	return withSDK(c, func(ctx context.Context, sdk *gemtot.SDK) error {
		cfg, err := sdk.Config(ctx)
		if err != nil {
			return err
		}

		encode := beacon.Packet
		if c.Bool("manufacturer-data") {
			encode = beacon.ManufacturerData
		}
		payload, err := encode(cfg, broadcaster.DefaultDevicePower)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(payload))
		return nil
	})
}

func cmdServe(c *cli.Context) error {
	radio := broadcaster.NewMemoryRadio(broadcaster.StatePoweredOn)

	return withSDK(c, func(ctx context.Context, sdk *gemtot.SDK) error {
		logger := newLogger(c, sdk.Settings())

		if err := sdk.HandleRadioState(ctx, radio.State()); err != nil {
			return err
		}
		if c.Bool("start") && !sdk.BeaconStatus() {
			if err := sdk.StartBeacon(ctx); err != nil {
				return err
			}
		}

		opts := []serve.Option{serve.WithLogger(logger)}
		if c.IsSet("port") {
			opts = append(opts, serve.WithPort(c.Int("port")))
		}
		srv, err := serve.NewServer(serve.FromSettings(sdk.Settings().GetServe()), opts...)
		if err != nil {
			return err
		}

		go srv.Watch(ctx, sdk.Broadcaster(), 0)

		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}, gemtot.WithRadio(radio))
}
