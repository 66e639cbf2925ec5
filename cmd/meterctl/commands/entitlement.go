package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/drople/metering/internal/services/entitlement"
)

func NewEntitlementCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Manage sponsorship entitlements",
	}

	cmd.AddCommand(newEntitlementGrantCommand())
	cmd.AddCommand(newEntitlementRevokeCommand())

	return cmd
}

func newEntitlementGrantCommand() *cobra.Command {
	var sponsorID string
	var days int

	cmd := &cobra.Command{
		Use:   "grant <account-id>",
		Short: "Grant a sponsor-covered billing window to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			sponsor, err := uuid.Parse(sponsorID)
			if err != nil {
				return fmt.Errorf("invalid sponsor id: %w", err)
			}

			store := entitlement.NewStore(db, logger)
			ent, err := store.Grant(context.Background(), accountID, sponsor, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			return printResult(ent)
		},
	}

	cmd.Flags().StringVar(&sponsorID, "sponsor", "", "Sponsor account ID (required)")
	cmd.Flags().IntVar(&days, "days", 30, "Validity window in days")
	_ = cmd.MarkFlagRequired("sponsor")

	return cmd
}

func newEntitlementRevokeCommand() *cobra.Command {
	var sponsorID string

	cmd := &cobra.Command{
		Use:   "revoke <account-id>",
		Short: "Revoke entitlements between an account and a sponsor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			sponsor, err := uuid.Parse(sponsorID)
			if err != nil {
				return fmt.Errorf("invalid sponsor id: %w", err)
			}

			store := entitlement.NewStore(db, logger)
			if err := store.Revoke(context.Background(), accountID, sponsor); err != nil {
				return err
			}
			fmt.Println("entitlement revoked")
			return nil
		},
	}

	cmd.Flags().StringVar(&sponsorID, "sponsor", "", "Sponsor account ID (required)")
	_ = cmd.MarkFlagRequired("sponsor")

	return cmd
}
