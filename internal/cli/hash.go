package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/hashing"
	"github.com/klauern/mirrorsync/internal/progress"
)

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "Print the SHA-1 digest of files",
		UsageText: "mirrorsync hash [--progress mode] <file>...",
		Description: `Print one "<sha1>  <path>" line per file, in argument order.
   The output matches sha1sum and can be pasted into a fetch manifest.
   Progress is drawn on stderr and is off unless --progress asks for it.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "progress",
				Usage: "Progress display: auto, bar, tui or none",
				Value: "none",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = withOperation(ctx, "hash")
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return errors.New("hash requires at least one file")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			hasher, saveCache, err := newHasher(cfg)
			if err != nil {
				return err
			}
			defer saveCache()

			paths := make([]string, len(args))
			for i, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				paths[i] = abs
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			sink, closeSink, err := newSink(cmd.String("progress"), cancel)
			if err != nil {
				return err
			}
			digests, err := hashFiles(ctx, hasher, paths, sink)
			if closeErr := closeSink(); closeErr != nil && err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			for i, digest := range digests {
				fmt.Printf("%s  %s\n", digest, args[i])
			}
			return nil
		},
	}
}

// hashFiles digests paths under the hashing stage.
func hashFiles(ctx context.Context, hasher *hashing.Hasher, paths []string, sink progress.Sink) ([]string, error) {
	sink = progress.OrNop(sink)
	sink.SetMessage(progress.StageHashingFiles)
	return hasher.HashMany(ctx, paths, sink)
}
