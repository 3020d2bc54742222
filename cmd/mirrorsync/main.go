package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauern/mirrorsync/internal/cli"
	"github.com/klauern/mirrorsync/internal/ui"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	err := cli.Run(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(stderr, ui.StatusWarning("Interrupted"))
		return exitInterrupted
	default:
		_, _ = fmt.Fprintln(stderr, ui.StatusError(fmt.Sprintf("Error: %v", err)))
		return 1
	}
}
