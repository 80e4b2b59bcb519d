// Package main is the entry point for fxbridge.
package main

import (
	"os"

	"github.com/dshills/fxbridge/internal/cmd"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
