package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v3"
)

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show the mirrorsync build",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "short",
				Usage: "Print only the version number",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print build details as JSON",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			info := currentBuild()
			switch {
			case cmd.Bool("short"):
				fmt.Println(info.Version)
			case cmd.Bool("json"):
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			default:
				fmt.Printf("mirrorsync %s\n", info.Version)
				fmt.Printf("  commit %s, built %s\n", info.Commit, info.BuildDate)
				fmt.Printf("  %s %s\n", info.GoVersion, info.Platform)
			}
			return nil
		},
	}
}
