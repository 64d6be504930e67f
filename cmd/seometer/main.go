package main

import (
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seometer/internal/clock"
	"github.com/smallbiznis/seometer/internal/config"
	"github.com/smallbiznis/seometer/internal/migration"
	"github.com/smallbiznis/seometer/internal/observability"
	"github.com/smallbiznis/seometer/internal/server"
	"github.com/smallbiznis/seometer/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "seometer",
		Short:        "SEO research dashboard backend with per-plan usage metering",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newUsageCmd(),
	)
	return rootCmd
}

// core is the infrastructure shared by every command.
func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				core(),
				migration.Module,
				server.Services,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, fx.Options(core(), migration.Module))
		},
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
