package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show a user's balance, applying the daily reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := a.ledger.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), acct)
			return nil
		},
	}
}

func newConsumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "consume <user-id> <amount>",
		Short: "Charge credits against a user's daily allowance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			acct, err := a.ledger.Consume(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), acct)
			return nil
		},
	}
}

func newTopUpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "topup <user-id> <plan-id>",
		Short: "Apply a plan's credits to a user without a payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := a.ledger.TopUp(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), acct)
			return nil
		},
	}
}

func newAccountsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := a.ledger.Accounts(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "USER\tPLAN\tCREDITS\tDAILY\tLAST RESET\tUPDATED")
			for _, acct := range accounts {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					acct.UserID, acct.Plan,
					humanize.Comma(acct.Credits), humanize.Comma(acct.DailyRemaining),
					acct.LastReset, humanize.Time(acct.UpdatedAt))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum accounts to list")
	return cmd
}

func newPlansCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Show the plan table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tPRICE\tCREDITS\tDAILY LIMIT\tSIMULATOR ROUNDS")
			for _, p := range a.ledger.Plans() {
				rounds := "-"
				if p.HumanSimulator {
					rounds = strconv.Itoa(p.MaxRounds)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
					p.ID, p.Name,
					humanize.CommafWithDigits(float64(p.Price)/100, 2), p.Currency,
					humanize.Comma(p.Credits), humanize.Comma(p.DailyLimit), rounds)
			}
			return tw.Flush()
		},
	}
}

func printAccount(w io.Writer, acct *domain.Account) {
	_, _ = fmt.Fprintf(w, "user:            %s\n", acct.UserID)
	_, _ = fmt.Fprintf(w, "plan:            %s\n", acct.Plan)
	_, _ = fmt.Fprintf(w, "credits:         %s\n", humanize.Comma(acct.Credits))
	_, _ = fmt.Fprintf(w, "daily remaining: %s\n", humanize.Comma(acct.DailyRemaining))
	_, _ = fmt.Fprintf(w, "last reset:      %s\n", acct.LastReset)
}
