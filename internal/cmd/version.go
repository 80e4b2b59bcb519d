package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, set by main from ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// SetVersionInfo records build information for the version command.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fxbridge %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
