// Package ui provides colored status output for the mirrorsync CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Color function types for styled output.
var (
	// Success is used for completed work (green).
	Success = color.New(color.FgGreen).SprintFunc()
	// Error is used for failures (red).
	Error = color.New(color.FgRed).SprintFunc()
	// Warning is used for cautions (yellow).
	Warning = color.New(color.FgYellow).SprintFunc()
	// Info is used for paths and counts (cyan).
	Info = color.New(color.FgCyan).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
)

func status(paint func(...any) string, symbol, msg string) string {
	if msg == "" {
		return paint(symbol)
	}
	return paint(symbol) + " " + msg
}

// StatusSuccess returns a green checkmark with optional message.
func StatusSuccess(msg string) string { return status(Success, SymbolSuccess, msg) }

// StatusError returns a red X with optional message.
func StatusError(msg string) string { return status(Error, SymbolError, msg) }

// StatusWarning returns a yellow warning with optional message.
func StatusWarning(msg string) string { return status(Warning, SymbolWarning, msg) }

// Count renders "n noun" with the noun pluralized by a trailing s.
func Count(n int, noun string) string {
	if n != 1 {
		noun += "s"
	}
	return fmt.Sprintf("%s %s", Info(n), noun)
}

// DisableColors disables all color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) // #nosec G115 - file descriptors fit in int
}

// ConfigureColors applies a color mode: "always", "never", or "auto",
// which enables colors only when w is a terminal and NO_COLOR is unset.
func ConfigureColors(mode string, w io.Writer) error {
	switch strings.ToLower(mode) {
	case "always":
		EnableColors()
	case "never":
		DisableColors()
	case "auto", "":
		if IsTerminal(w) && os.Getenv("NO_COLOR") == "" {
			EnableColors()
		} else {
			DisableColors()
		}
	default:
		return fmt.Errorf("unknown color mode %q (want auto, always or never)", mode)
	}
	return nil
}
