package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/drople/metering/internal/models"
	"github.com/drople/metering/internal/services/account"
)

func NewAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	cmd.AddCommand(newAccountCreateCommand())
	cmd.AddCommand(newAccountListCommand())
	cmd.AddCommand(newAccountShowCommand())

	return cmd
}

func newAccountCreateCommand() *cobra.Command {
	var email, username, superiorID string
	var balance int64
	var isSponsor bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = email
			}

			acct := &models.Account{
				Email:     email,
				Username:  username,
				IsActive:  true,
				Balance:   balance,
				IsSponsor: isSponsor,
			}
			if superiorID != "" {
				id, err := uuid.Parse(superiorID)
				if err != nil {
					return fmt.Errorf("invalid superior id: %w", err)
				}
				acct.SuperiorID = &id
			}

			store := account.NewStore(db, logger)
			if err := store.Create(context.Background(), acct); err != nil {
				return err
			}
			return printResult(acct)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required)")
	cmd.Flags().StringVar(&username, "username", "", "Username (defaults to email)")
	cmd.Flags().Int64Var(&balance, "balance", 0, "Initial credit balance")
	cmd.Flags().StringVar(&superiorID, "superior", "", "Superior account ID")
	cmd.Flags().BoolVar(&isSponsor, "sponsor", false, "Mark the account as a sponsor")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAccountListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := account.NewStore(db, logger)
			accounts, err := store.List(context.Background(), limit, offset)
			if err != nil {
				return err
			}
			if outputJSON {
				return printResult(accounts)
			}
			for _, a := range accounts {
				fmt.Printf("%s  %-20s balance=%-8d sponsor=%v\n", a.ID, a.Username, a.Balance, a.IsSponsor)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Limit number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset for pagination")

	return cmd
}

func newAccountShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			store := account.NewStore(db, logger)
			acct, err := store.Get(context.Background(), id)
			if err != nil {
				return err
			}
			return printResult(acct)
		},
	}
}
