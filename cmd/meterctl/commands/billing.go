package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/drople/metering/internal/models"
	"github.com/drople/metering/internal/services/billing"
)

func billingChargeRequest(id uuid.UUID, units int64, category string, multiplier float64) billing.ChargeRequest {
	return billing.ChargeRequest{
		AccountID:  id,
		Units:      units,
		Category:   models.UsageCategory(category),
		Multiplier: multiplier,
	}
}

func NewChargeCommand() *cobra.Command {
	var units int64
	var category string
	var multiplier float64

	cmd := &cobra.Command{
		Use:   "charge <account-id>",
		Short: "Charge an account for metered usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			result, err := newEngine().Charge(context.Background(), billingChargeRequest(id, units, category, multiplier))
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}

	cmd.Flags().Int64Var(&units, "units", 1000, "Raw usage units (tokens)")
	cmd.Flags().StringVar(&category, "category", string(models.CategoryChatReply), "Usage category")
	cmd.Flags().Float64Var(&multiplier, "multiplier", 0, "Rate multiplier override")

	return cmd
}

func NewCreditCommand() *cobra.Command {
	var amount int64
	var category string

	cmd := &cobra.Command{
		Use:   "credit <account-id>",
		Short: "Add credits to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			result, err := newEngine().Credit(context.Background(), id, amount, models.UsageCategory(category))
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}

	cmd.Flags().Int64Var(&amount, "amount", 0, "Credits to add (required)")
	cmd.Flags().StringVar(&category, "category", string(models.CategoryTopUp), "Credit category")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
