package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "storyline",
	Short: "Conversational story engine",
	Long:  "Storyline runs scripted multi-step conversations over chat channels, keeping per-user dialogue state in a pluggable session store.",
}

// Execute runs the root command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
