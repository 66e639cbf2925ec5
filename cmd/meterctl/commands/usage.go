package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/drople/metering/internal/services/usage"
)

func NewUsageCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "usage <account-id>",
		Short: "Show the usage trail of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			recorder := usage.NewRecorder(db, logger)
			records, err := recorder.ListByAccount(context.Background(), id, limit, offset)
			if err != nil {
				return err
			}
			if outputJSON {
				return printResult(records)
			}
			for _, rec := range records {
				fmt.Printf("%s  %-18s amount=%-6d remaining=%-8d consumer=%s\n",
					rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Category, rec.Amount, rec.Remaining, rec.ConsumerID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Limit number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset for pagination")

	return cmd
}
