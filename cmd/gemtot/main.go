// Command gemtot derives beacon UUIDs and manages a GemTot beacon from the
// command line.
//
//	gemtot uuid "Front Door"
//	gemtot --store-dir /var/lib/gemtot config set-name "Front Door"
//	gemtot config show
//	gemtot advertise
//	gemtot serve --port 50051
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/passkit/gemtot/config"
)

var (
	flgConfig   = cli.StringFlag{Name: "config, c", Usage: "path to gemtot.yaml or a directory containing it"}
	flgStore    = cli.StringFlag{Name: "store", Usage: "store back end (file / redis / etcd / memory)", EnvVar: config.EnvStore}
	flgStoreDir = cli.StringFlag{Name: "store-dir", Usage: "directory of the file store"}
	flgLogLevel = cli.StringFlag{Name: "log-level", Value: "warn", Usage: "log level (debug / info / warn / error)"}
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gemtot: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()

	app.Name = "gemtot"
	app.Usage = "GemTot iBeacon tool"
	app.Version = "1.0.0"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = []cli.Flag{flgConfig, flgStore, flgStoreDir, flgLogLevel}

	app.Commands = []cli.Command{
		{
			Name:      "uuid",
			Aliases:   []string{"u"},
			Usage:     "Derive the proximity UUID of each NAME",
			ArgsUsage: "NAME...",
			Action:    cmdUUID,
		},
		{
			Name:  "config",
			Usage: "Show or edit the stored beacon",
			Subcommands: []cli.Command{
				{
					Name:   "show",
					Usage:  "Print the stored beacon",
					Action: cmdConfigShow,
					Flags: []cli.Flag{
						cli.BoolFlag{Name: "summary, s", Usage: "print the broadcast summary instead of YAML"},
					},
				},
				{
					Name:      "set-name",
					Usage:     "Name the beacon and derive its UUID; no NAME restores the default",
					ArgsUsage: "[NAME]",
					Action:    cmdSetName,
				},
				{
					Name:      "set-major",
					Usage:     "Set the major value (0-65535)",
					ArgsUsage: "VALUE",
					Action:    cmdSetMajor,
				},
				{
					Name:      "set-minor",
					Usage:     "Set the minor value (0-65535)",
					ArgsUsage: "VALUE",
					Action:    cmdSetMinor,
				},
				{
					Name:            "set-power",
					Usage:           "Set the measured power in dBm, or 'device' for the device default",
					ArgsUsage:       "DBM",
					SkipFlagParsing: true,
					Action:          cmdSetPower,
				},
			},
		},
		{
			Name:    "advertise",
			Aliases: []string{"adv"},
			Usage:   "Print the advertisement of the stored beacon as hex",
			Action:  cmdAdvertise,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "manufacturer-data, m", Usage: "print only the iBeacon manufacturer data"},
			},
		},
		{
			Name:    "serve",
			Aliases: []string{"sv"},
			Usage:   "Advertise on an in-memory radio and expose gRPC health",
			Action:  cmdServe,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "port, p", Usage: "listen port (default from config, 50051)"},
				cli.BoolFlag{Name: "start", Usage: "start the beacon even if it was stopped"},
			},
		},
	}

	return app
}

// loadSettings reads the settings file, when given, and applies the global
// flags on top.
func loadSettings(c *cli.Context) (*config.Settings, error) {
	settings := config.Default()
	if path := c.GlobalString("config"); path != "" {
		s, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		settings = s
	}

	if settings.Store == nil {
		settings.Store = &config.StoreConfig{}
	}
	if v := c.GlobalString("store"); v != "" {
		settings.Store.Type = v
	}
	if v := c.GlobalString("store-dir"); v != "" {
		settings.Store.Dir = v
	}
	if c.GlobalIsSet("log-level") || settings.LogLevel == "" {
		settings.LogLevel = c.GlobalString("log-level")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func newLogger(c *cli.Context, settings *config.Settings) *slog.Logger {
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: settings.GetLevel(),
	}))
}

func usageError(c *cli.Context, format string, args ...any) error {
	return fmt.Errorf("%s: %s", strings.TrimSpace(c.Command.FullName()), fmt.Sprintf(format, args...))
}
