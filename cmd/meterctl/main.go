package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drople/metering/cmd/meterctl/commands"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dbURL string
	var outputJSON bool

	rootCmd := &cobra.Command{
		Use:   "meterctl",
		Short: "Metering service management CLI",
		Long: `Operator CLI for the credit metering service: manage accounts,
entitlements, top-ups and manual charges against the billing database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dbURL == "" {
				dbURL = os.Getenv("DATABASE_URL")
			}
			return commands.Init(dbURL, outputJSON)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database URL (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(commands.NewAccountCommand())
	rootCmd.AddCommand(commands.NewChargeCommand())
	rootCmd.AddCommand(commands.NewCreditCommand())
	rootCmd.AddCommand(commands.NewEntitlementCommand())
	rootCmd.AddCommand(commands.NewUsageCommand())
	rootCmd.AddCommand(commands.NewSeedCommand())

	return rootCmd
}
