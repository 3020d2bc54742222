package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/cache"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/ui"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the digest cache",
		Commands: []*cli.Command{
			{
				Name:  "info",
				Usage: "Show where the digest cache lives and how many entries it holds",
				Action: func(_ context.Context, cmd *cli.Command) error {
					c, enabled, err := openCache(cmd)
					if err != nil {
						return err
					}
					if enabled {
						fmt.Printf("Digest cache (%s)\n", ui.Success("enabled"))
					} else {
						fmt.Println(ui.StatusWarning("Digest cache disabled; fetch and mirror rehash every file"))
					}
					fmt.Printf("  path: %s\n", c.Path())
					fmt.Printf("  entries: %d\n", c.Size())
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every cached digest",
				Action: func(_ context.Context, cmd *cli.Command) error {
					c, _, err := openCache(cmd)
					if err != nil {
						return err
					}
					n := c.Size()
					if err := c.Clear(); err != nil {
						return fmt.Errorf("failed to clear digest cache: %w", err)
					}
					logging.Info("cleared digest cache", logging.Path(c.Path()), logging.Count(n))
					fmt.Println(ui.StatusSuccess(fmt.Sprintf("Cleared %s", ui.Count(n, "digest"))))
					return nil
				},
			},
		},
	}
}

func openCache(cmd *cli.Command) (*cache.Cache, bool, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load config: %w", err)
	}
	c, err := cache.New(digestCacheName, cfg.CacheDir())
	if err != nil {
		return nil, false, fmt.Errorf("failed to open digest cache: %w", err)
	}
	return c, cfg.Cache.Enabled, nil
}
