package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/config"
	"github.com/klauern/mirrorsync/internal/download"
	"github.com/klauern/mirrorsync/internal/manifest"
	"github.com/klauern/mirrorsync/internal/resolver"
	"github.com/klauern/mirrorsync/internal/ui"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download files whose local copy is missing or stale",
		UsageText: "mirrorsync fetch --manifest <file> [options]",
		Description: `Check every manifest entry against its expected SHA-1 and download
   only the files that are missing or differ.

   Manifests may be YAML, TOML or JSON:

     base_dir: instance
     entries:
       - url: https://example.com/libs/a.jar
         sha1: 2fd4e1c67a2d28fced849ee1bb76e7391b93eb12
         path: libs/a.jar

   Examples:
     mirrorsync fetch --manifest files.yaml
     mirrorsync fetch --manifest files.toml --max-concurrency 8 --progress none`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "manifest",
				Aliases:  []string{"m"},
				Usage:    "Manifest listing url, sha1 and path per file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "base-dir",
				Usage: "Directory relative entry paths are resolved against (overrides the manifest)",
			},
			&cli.BoolFlag{
				Name:  "no-shuffle",
				Usage: "Download in manifest order",
			},
			&cli.IntFlag{
				Name:  "max-concurrency",
				Usage: "Upper bound for concurrent downloads",
			},
			&cli.DurationFlag{
				Name:  "chunk-timeout",
				Usage: "Maximum wait for response headers and for each body read",
			},
			&cli.DurationFlag{
				Name:  "stall-timeout",
				Usage: "Fail when no download succeeds for this long (0 disables)",
			},
			&cli.StringFlag{
				Name:  "progress",
				Usage: "Progress display: auto, bar, tui or none",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = withOperation(ctx, "fetch")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyFetchFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			entries, err := manifest.LoadCheckEntries(cmd.String("manifest"), cmd.String("base-dir"))
			if err != nil {
				return err
			}

			hasher, saveCache, err := newHasher(cfg)
			if err != nil {
				return err
			}
			defer saveCache()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			sink, closeSink, err := newSink(cfg.Output.Progress, cancel)
			if err != nil {
				return err
			}

			stale, err := resolver.New(hasher).Resolve(ctx, entries, sink)
			if err == nil && len(stale) > 0 {
				err = download.New(cfg.DownloadOptions()).Download(ctx, stale, sink)
			}
			if closeErr := closeSink(); closeErr != nil && err == nil {
				err = closeErr
			}
			if err != nil {
				return fetchError(err)
			}

			if len(stale) == 0 {
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("All %s up to date", ui.Count(len(entries), "file"))))
				return nil
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Downloaded %s (%d already up to date)",
				ui.Count(len(stale), "file"), len(entries)-len(stale))))
			return nil
		},
	}
}

// applyFetchFlags overrides config values with the flags the user set.
func applyFetchFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.Bool("no-shuffle") {
		cfg.Download.Shuffle = false
	}
	if cmd.IsSet("max-concurrency") {
		cfg.Download.MaxConcurrency = cmd.Int("max-concurrency")
		cfg.Download.InitialConcurrency = min(cfg.Download.InitialConcurrency, cfg.Download.MaxConcurrency)
	}
	if cmd.IsSet("chunk-timeout") {
		cfg.Download.ChunkTimeout = cmd.Duration("chunk-timeout")
	}
	if cmd.IsSet("stall-timeout") {
		cfg.Download.StallTimeout = cmd.Duration("stall-timeout")
	}
	if cmd.IsSet("progress") {
		cfg.Output.Progress = cmd.String("progress")
	}
}

// fetchError adds a hint to connectivity failures.
func fetchError(err error) error {
	if download.IsConnectivity(err) {
		return fmt.Errorf("could not reach the download server, check your connection: %w", err)
	}
	return err
}
