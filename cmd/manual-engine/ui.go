package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	headerColor  = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.Faint)
)

func printSuccess(format string, args ...interface{}) {
	if outputJSON {
		return
	}
	successColor.Printf("✓ "+format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	if outputJSON {
		return
	}
	warnColor.Printf("⚠ "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printHeader(format string, args ...interface{}) {
	if outputJSON {
		return
	}
	headerColor.Printf(format+"\n", args...)
}

func printKeyValue(key string, value interface{}) {
	if outputJSON {
		return
	}
	dimColor.Printf("  %s: ", key)
	fmt.Printf("%v\n", value)
}

// newProgressBar returns a bar for interactive runs and nil in JSON mode.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if outputJSON {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
