package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"comms-platform/internal/ledger"
	"comms-platform/internal/rbac"

	"github.com/spf13/cobra"
)

// backend is what the commands operate on. Tests supply an in-memory one.
type backend struct {
	ledger  *ledger.Service
	migrate func(ctx context.Context) error
	close   func() error
}

type openFunc func(ctx context.Context) (*backend, error)

func newRootCmd(open openFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Inspect and repair international SMS billing state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("actor", "billingctl", "operator id recorded in the audit trail")

	root.AddCommand(newShowCmd(open))
	root.AddCommand(newUnblockCmd(open))
	root.AddCommand(newResetCycleCmd(open))
	root.AddCommand(newMigrateCmd(open))
	return root
}

// withBackend opens the backend for one command and always closes it.
func withBackend(cmd *cobra.Command, open openFunc, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if b.close != nil {
			_ = b.close()
		}
	}()
	return fn(ctx, b)
}

func newShowCmd(open openFunc) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <user_id>",
		Short: "Show a user's international spend state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				st, err := b.ledger.GetState(ctx, args[0])
				if err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), st, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func newUnblockCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <user_id>",
		Short: "Clear a user's international sending block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				st, err := b.ledger.Unblock(ctx, args[0], actor, rbac.RoleAdmin)
				if err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), st, false)
			})
		},
	}
}

func newResetCycleCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-cycle <user_id>",
		Short: "Zero the billing-cycle spend counter at cycle rollover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				st, err := b.ledger.ResetCycle(ctx, args[0], actor, rbac.RoleAdmin)
				if err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), st, false)
			})
		},
	}
}

func newMigrateCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the billing schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if b.migrate == nil {
					return fmt.Errorf("migrate: no database configured")
				}
				if err := b.migrate(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func printState(w io.Writer, st ledger.BillingState, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	blocked := "-"
	if st.Blocked() {
		blocked = st.BlockedReason
	}
	rows := [][2]string{
		{"User", st.UserID},
		{"Plan", string(st.PlanTier)},
		{"Payment method", fmt.Sprintf("%t", st.PaymentMethodAttached)},
		{"Blocked", blocked},
		{"Since last charge", fmt.Sprintf("%d cents", st.SpendSinceLastChargeCents)},
		{"This cycle", fmt.Sprintf("%d cents", st.SpendThisCycleCents)},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%-18s %s\n", r[0]+":", r[1])
	}
	return nil
}
