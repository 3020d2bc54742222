// Package cli provides the command-line interface for mirrorsync.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/config"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:    "mirrorsync",
		Usage:   "Keep local directories in sync with remote files and local sources",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Write logs as JSON",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the config file (default ~/.mirrorsync/config.yaml)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			ctx = logging.NewContext(ctx, configureLogging(cmd))
			return ctx, configureColors(cmd)
		},
		Commands: []*cli.Command{
			fetchCommand(),
			mirrorCommand(),
			hashCommand(),
			cacheCommand(),
			configCommand(),
			versionCommand(),
		},
	}
	return app.Run(ctx, args)
}

// configureColors sets up color output from --no-color or the config file.
func configureColors(cmd *cli.Command) error {
	if cmd.Bool("no-color") {
		ui.DisableColors()
		return nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		// A broken config file is reported by the command that needs it.
		return nil
	}
	return ui.ConfigureColors(cfg.Output.Color, os.Stdout)
}

// configureLogging installs a default logger built from the CLI flags and
// returns it.
func configureLogging(cmd *cli.Command) *slog.Logger {
	opts := logging.DefaultOptions()

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") {
		opts.Level = slog.LevelInfo
	}
	opts.JSON = cmd.Bool("log-json")

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return logger
}

// withOperation tags the context's logger with the running command.
func withOperation(ctx context.Context, name string) context.Context {
	return logging.NewContext(ctx, logging.FromContext(ctx, nil).With(logging.Operation(name)))
}

// loadConfig reads the file named by --config, or the default config file.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.Root().String("config"); path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
