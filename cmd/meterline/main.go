package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/meterline/meterline/internal/interfaces/cli/migrate"
	"github.com/meterline/meterline/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meterline",
		Short: "Meterline - usage-based subscription billing",
		Long:  `Meterline is a usage-based subscription billing engine with metered entitlements, built-in server, and migration tools.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
