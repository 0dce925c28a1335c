// Package cli implements the Vibe command-line interface using Cobra.
// Learner commands run against the local stores directly; serve starts
// the HTTP API.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// errOut receives status lines that are not command output.
var errOut io.Writer = os.Stderr

var rootCmd = &cobra.Command{
	Use:   "vibe",
	Short: "Vibe Dev gamification engine",
	Long: `Vibe tracks XP, levels, achievements, login streaks and daily
challenges for Vibe Dev learners, with an offline mirror that syncs
back when the profile store is reachable.

Learner commands open the local mirror directly, so they cannot run
while 'vibe serve' holds it; use the server's HTTP API instead.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
