package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/mirrorsync/internal/config"
	"github.com/klauern/mirrorsync/internal/ui"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage mirrorsync configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration as YAML",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return fmt.Errorf("failed to load config: %w", err)
					}
					data, err := yaml.Marshal(cfg)
					if err != nil {
						return err
					}
					fmt.Print(string(data))
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(_ context.Context, cmd *cli.Command) error {
					fmt.Println(configPath(cmd))
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write the default configuration to the config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing config file",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := configPath(cmd)
					if config.ExistsAt(path) && !cmd.Bool("force") {
						return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
					}
					if err := config.Default().SaveToPath(path); err != nil {
						return fmt.Errorf("failed to write config: %w", err)
					}
					fmt.Println(ui.StatusSuccess(fmt.Sprintf("Wrote %s", ui.Info(path))))
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Check the configuration for unusable settings",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return fmt.Errorf("failed to load config: %w", err)
					}
					if err := cfg.Validate(); err != nil {
						return fmt.Errorf("invalid configuration: %w", err)
					}
					fmt.Println(ui.StatusSuccess("Configuration is valid"))
					return nil
				},
			},
		},
	}
}

func configPath(cmd *cli.Command) string {
	if path := cmd.Root().String("config"); path != "" {
		return path
	}
	return config.FilePath()
}
