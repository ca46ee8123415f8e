package main

import (
	"os"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "warden",
		Short:        "Discord ban, scrim ban and freeze management",
		SilenceUsage: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(migrateCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
