package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurra/internal/asset"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	"github.com/smallbiznis/recurra/internal/credit"
	"github.com/smallbiznis/recurra/internal/events"
	"github.com/smallbiznis/recurra/internal/ledger"
	"github.com/smallbiznis/recurra/internal/logger"
	"github.com/smallbiznis/recurra/internal/migration"
	"github.com/smallbiznis/recurra/internal/observability"
	"github.com/smallbiznis/recurra/internal/payment"
	"github.com/smallbiznis/recurra/internal/plan"
	"github.com/smallbiznis/recurra/internal/risk"
	"github.com/smallbiznis/recurra/internal/scheduler"
	"github.com/smallbiznis/recurra/internal/sequencer"
	"github.com/smallbiznis/recurra/internal/server"
	"github.com/smallbiznis/recurra/internal/subscription"
	"github.com/smallbiznis/recurra/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const oneShotTimeout = 5 * time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recurra",
		Short:         "Recurra subscription billing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and, when enabled, the job scheduler",
			RunE: func(cmd *cobra.Command, args []string) error {
				app := fx.New(append(engineModules(), scheduler.Module, server.Module)...)
				if err := app.Err(); err != nil {
					return err
				}
				app.Run()
				return nil
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnce(cmd.Context(), coreModules(), nil)
			},
		},
		jobCommand("process-due", "Charge one batch of due subscriptions and exit", scheduler.JobProcessDue),
		jobCommand("auto-resolve", "Auto-resolve disputes past the resolution timeout and exit", scheduler.JobAutoResolve),
		jobCommand("relay-outbox", "Publish pending outbox events and exit", scheduler.JobOutboxRelay),
	)
	return root
}

func jobCommand(use, short, job string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			opts := append(engineModules(),
				fx.Provide(oneShotSchedulerConfig),
				fx.Provide(scheduler.New),
				fx.Populate(&sched),
			)
			return runOnce(cmd.Context(), opts, func(ctx context.Context) error {
				return sched.RunJob(ctx, job)
			})
		},
	}
}

// runOnce starts the graph, runs fn, and stops the graph.
func runOnce(parent context.Context, opts []fx.Option, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, oneShotTimeout)
	defer cancel()

	app := fx.New(opts...)
	if err := app.Start(ctx); err != nil {
		return err
	}
	var runErr error
	if fn != nil {
		runErr = fn(ctx)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func coreModules() []fx.Option {
	return []fx.Option{
		config.Module,
		logger.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		observability.Module,
		clock.Module,
		fx.Provide(newSnowflake),
		db.Module,
		migration.Module,
	}
}

func engineModules() []fx.Option {
	return append(coreModules(),
		sequencer.Module,
		events.Module,
		authorization.Module,
		ledger.Module,
		asset.Module,
		plan.Module,
		subscription.Module,
		payment.Module,
		credit.Module,
		risk.Module,
	)
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// One-shot commands never start the cron loop.
func oneShotSchedulerConfig(cfg config.Config) scheduler.Config {
	c := scheduler.ProvideConfig(cfg)
	c.Enabled = false
	return c
}
