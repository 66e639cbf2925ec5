package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drople/metering/internal/database"
)

func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the development dataset",
		Long: `Creates a standalone account, a sponsor and a sponsored subordinate
with a 30-day entitlement. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Seed(db); err != nil {
				return fmt.Errorf("failed to seed database: %w", err)
			}
			fmt.Println("development dataset seeded")
			return nil
		},
	}
}
