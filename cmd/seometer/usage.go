package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/seometer/internal/authorization"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"github.com/smallbiznis/seometer/internal/server"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const startTimeout = 30 * time.Second

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect or reset a user's monthly usage",
	}
	cmd.AddCommand(newUsageShowCmd(), newUsageResetCmd())
	return cmd
}

func newUsageShowCmd() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current month's usage against the plan limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var guard quotadomain.Guard
			return runOnce(cmd, fx.Options(core(), server.Services, fx.Populate(&guard)), func(ctx context.Context) error {
				overview, err := guard.Overview(ctx, userID)
				if err != nil {
					return err
				}
				return renderOverview(cmd.OutOrStdout(), overview, asJSON)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUsageResetCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Zero the current month's counters for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				ledger usagedomain.Ledger
				authz  authorization.Service
				log    *zap.Logger
			)
			return runOnce(cmd, fx.Options(core(), server.Services, fx.Populate(&ledger, &authz, &log)), func(ctx context.Context) error {
				if err := authz.Authorize(ctx, authorization.ActorSystem, "", authorization.ObjectUsage, authorization.ActionUsageReset); err != nil {
					return err
				}
				if err := ledger.ResetCurrentMonth(ctx, userID); err != nil {
					return err
				}
				log.Named("cli").Info("usage reset", zap.String("user_id", strings.TrimSpace(userID)))
				fmt.Fprintf(cmd.OutOrStdout(), "usage reset for %s (%s)\n", strings.TrimSpace(userID), ledger.CurrentPeriod().Key())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func renderOverview(out io.Writer, overview quotadomain.Overview, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(overview)
	}
	return printOverview(out, overview)
}

func printOverview(out io.Writer, overview quotadomain.Overview) error {
	fmt.Fprintf(out, "user %s  plan %s (%s)  period %s .. %s\n\n",
		overview.UserID, overview.PlanName, overview.Plan, overview.PeriodStart, overview.PeriodEnd)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tUSED\tLIMIT\tPERCENT\tSTATUS")
	for _, item := range overview.Items {
		status := ""
		switch {
		case item.LimitReached:
			status = "limit reached"
		case item.NearLimit:
			status = "near limit"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d%%\t%s\n", item.Label, item.CurrentUsage, item.FormattedLimit, item.Percent, status)
	}
	return w.Flush()
}

// runOnce starts an fx app, runs the steps, then stops it.
func runOnce(cmd *cobra.Command, opts fx.Option, steps ...func(ctx context.Context) error) error {
	app := fx.New(opts, fx.NopLogger)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(cmd.Context(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	for _, step := range steps {
		if err := step(cmd.Context()); err != nil {
			return err
		}
	}
	return nil
}
