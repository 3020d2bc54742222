package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/manifest"
	"github.com/klauern/mirrorsync/internal/mirror"
	"github.com/klauern/mirrorsync/internal/model"
	"github.com/klauern/mirrorsync/internal/ui"
	"github.com/klauern/mirrorsync/internal/util"
)

func mirrorCommand() *cli.Command {
	return &cli.Command{
		Name:      "mirror",
		Usage:     "Make a directory contain exactly the mapped files",
		UsageText: "mirrorsync mirror --target <dir> (--mapping <file> | --map TARGET=SOURCE ... | --work-dir <dir> <path>...)",
		Description: `Copy every mapped source into the target directory, delete files the
   mapping does not name, and prune directories left empty. Files whose
   content already matches their source are left alone.

   A source may be a file or a directory; directories are mirrored
   recursively. Relative targets are resolved against --target.

   With --work-dir, each argument names a path inside the work directory
   that is published at the same relative location under --target.

   Examples:
     mirrorsync mirror --target build/out --map lib=build/work/lib --map run.sh=scripts/run.sh
     mirrorsync mirror --mapping layout.yaml
     mirrorsync mirror --target build/out --work-dir build/work lib bin/run.sh`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "Directory to reconcile (overrides the mapping file's target)",
			},
			&cli.StringFlag{
				Name:  "mapping",
				Usage: "Mapping file listing target and source pairs",
			},
			&cli.StringSliceFlag{
				Name:  "map",
				Usage: "TARGET=SOURCE pair (repeatable)",
			},
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "Directory the path arguments are published from",
			},
			&cli.StringFlag{
				Name:  "progress",
				Usage: "Progress display: auto, bar, tui or none",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = withOperation(ctx, "mirror")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.IsSet("progress") {
				cfg.Output.Progress = cmd.String("progress")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			targetDir, mapping, err := mappingFromFlags(cmd)
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

			r := mirror.New(hasher, mirror.WithMaxConcurrentOps(cfg.Mirror.MaxConcurrentOps))
			stats, err := r.Reconcile(ctx, targetDir, mapping, sink)
			if closeErr := closeSink(); closeErr != nil && err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			printStats(targetDir, stats)
			return nil
		},
	}
}

// mappingFromFlags builds the target directory and mapping from --mapping,
// --map and --work-dir. Entries are layered in that order, later ones
// replacing earlier ones for the same target.
func mappingFromFlags(cmd *cli.Command) (string, model.Mapping, error) {
	targetDir := cmd.String("target")
	pairs := cmd.StringSlice("map")
	mappingFile := cmd.String("mapping")
	workDir := cmd.String("work-dir")
	published := cmd.Args().Slice()

	if workDir == "" && len(published) > 0 {
		return "", nil, fmt.Errorf("unexpected arguments %v (path arguments require --work-dir)", published)
	}
	if workDir != "" && len(published) == 0 {
		return "", nil, errors.New("--work-dir requires at least one path to publish")
	}
	if mappingFile == "" && len(pairs) == 0 && workDir == "" {
		return "", nil, errors.New("mirror requires --mapping, --work-dir or at least one --map TARGET=SOURCE")
	}

	if targetDir != "" {
		abs, err := absPath(targetDir)
		if err != nil {
			return "", nil, err
		}
		targetDir = abs
	}

	mapping := model.Mapping{}
	if mappingFile != "" {
		var err error
		mapping, targetDir, err = manifest.LoadMapping(mappingFile, targetDir)
		if err != nil {
			return "", nil, err
		}
	}
	if targetDir == "" {
		return "", nil, errors.New("mirror requires --target or a target in the mapping file")
	}

	if len(pairs) > 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return "", nil, err
		}
		extra, err := manifest.ParsePairs(pairs, targetDir, cwd)
		if err != nil {
			return "", nil, err
		}
		maps.Copy(mapping, extra)
	}

	if workDir != "" {
		abs, err := absPath(workDir)
		if err != nil {
			return "", nil, err
		}
		extra, err := mirror.MappingFromWorkDir(targetDir, abs, published)
		if err != nil {
			return "", nil, err
		}
		maps.Copy(mapping, extra)
	}
	return targetDir, mapping, nil
}

func absPath(path string) (string, error) {
	return filepath.Abs(util.ExpandPath(path, ""))
}

func printStats(targetDir string, stats mirror.Stats) {
	fmt.Println(ui.StatusSuccess(fmt.Sprintf("Mirrored %s", ui.Info(targetDir))))
	fmt.Printf("  %s copied, %s unchanged\n", ui.Count(stats.Copied, "file"), ui.Count(stats.Skipped, "file"))
	if stats.Deleted > 0 || stats.PrunedDirs > 0 {
		fmt.Printf("  %s deleted, %s pruned\n", ui.Count(stats.Deleted, "file"), ui.Count(stats.PrunedDirs, "empty dir"))
	}
}
