package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/config"
	"github.com/drfirst/go-iis/internal/domain/transmission"
	"github.com/drfirst/go-iis/internal/hl7v2/mapper"
	"github.com/drfirst/go-iis/internal/infrastructure/redpanda"
	"github.com/drfirst/go-iis/internal/infrastructure/sftp"
	"github.com/drfirst/go-iis/internal/job"
	"github.com/drfirst/go-iis/internal/results"
)

func vxuCmd(load loader) *cobra.Command {
	var opts job.VXUOptions

	cmd := &cobra.Command{
		Use:   "vxu",
		Short: "Submit pending immunizations to the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, load, "iis-vxu")
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("limit") {
				opts.Limit = a.cfg.Jobs.Limit
			}
			deps, err := a.jobDeps(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = job.NewVXURunner(deps).Run(ctx, opts)
			return err
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", job.DefaultLimit, "maximum immunizations to select")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "build and print messages without submitting or logging them")
	return cmd
}

func qbpCmd(load loader) *cobra.Command {
	var (
		pid      int64
		forecast bool
	)

	cmd := &cobra.Command{
		Use:   "qbp",
		Short: "Query the registry for a patient's history or forecast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid <= 0 {
				return errors.New("--pid must be a positive patient id")
			}
			ctx := cmd.Context()
			a, err := setup(ctx, load, "iis-qbp")
			if err != nil {
				return err
			}
			defer a.close()

			deps, err := a.jobDeps(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			intent := mapper.IntentHistory
			if forecast {
				intent = mapper.IntentForecast
			}
			_, err = job.NewQueryRunner(deps).Query(ctx, pid, intent)
			return err
		},
	}
	cmd.Flags().Int64Var(&pid, "pid", 0, "patient id")
	cmd.Flags().BoolVar(&forecast, "forecast", false, "request the forecast (Z44) instead of the history (Z34)")
	cmd.MarkFlagRequired("pid")
	return cmd
}

func resultsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Download and reconcile lab results from SFTP partners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, load, "iis-results")
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.RequireResults(); err != nil {
				return err
			}
			if err := a.openDB(ctx, true); err != nil {
				return err
			}
			dialer, err := sftp.NewDialer(sftp.Config{KnownHosts: a.cfg.Jobs.KnownHosts}, a.logger)
			if err != nil {
				return fmt.Errorf("%w: %w", config.ErrInvalid, err)
			}
			events, err := a.publisher()
			if err != nil {
				return err
			}

			r := results.New(results.Config{
				ArchiveDir:  a.cfg.Jobs.OrdersDir,
				Workers:     a.cfg.Jobs.ResultsWorkers,
				Pushgateway: a.cfg.Observability.Pushgateway,
			}, results.Deps{
				Partners: a.db,
				Dialer:   results.NewSFTPDialer(dialer),
				Ledger:   transmission.NewLedger(a.db, a.metrics, a.logger),
				Events:   events,
				Guard:    a.guard(),
				Metrics:  a.metrics,
				Logger:   a.logger,
				Out:      cmd.OutOrStdout(),
			})
			_, err = r.Run(ctx)
			return err
		},
	}
}

func migrateCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the hl7log schema",
	}

	run := func(fn func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, load, "iis-migrate")
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openDB(ctx, false); err != nil {
				return err
			}
			return fn(cmd, a)
		}
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, a *app) error {
			mg, err := a.db.NewMigrator()
			if err != nil {
				return err
			}
			defer mg.Close()
			return mg.Up()
		}),
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, a *app) error {
			mg, err := a.db.NewMigrator()
			if err != nil {
				return err
			}
			defer mg.Close()
			return mg.Down(steps)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	version := &cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, a *app) error {
			mg, err := a.db.NewMigrator()
			if err != nil {
				return err
			}
			defer mg.Close()
			v, dirty, err := mg.Version()
			if err != nil {
				return err
			}
			out := strconv.FormatUint(uint64(v), 10)
			if dirty {
				out += " (dirty)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}),
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func pingCmd(load loader) *cobra.Command {
	var echo string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Run the registry connectivity test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, load, "iis-ping")
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.registry()
			if err != nil {
				return err
			}
			if err := job.Ping(ctx, client, echo); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: connectivity ok\n", client.Target())
			return nil
		},
	}
	cmd.Flags().StringVar(&echo, "echo", "iis connectivity test", "text the registry should echo back")
	return cmd
}

func topicsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "Create the event topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, load, "iis-topics")
			if err != nil {
				return err
			}
			defer a.close()

			if !a.cfg.KafkaEnabled() {
				return fmt.Errorf("%w: if.kafka.brokers is not set", config.ErrInvalid)
			}
			if err := redpanda.HealthCheck(ctx, a.cfg.Kafka.Brokers, 5*time.Second); err != nil {
				return err
			}
			admin, err := redpanda.NewAdmin(a.cfg.Kafka.Brokers, a.logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			if err := admin.EnsureTopics(ctx); err != nil {
				return err
			}
			topics, err := admin.ListTopics(ctx)
			if err != nil {
				return err
			}
			for _, t := range topics {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			a.logger.Info("topics ready", zap.Strings("topics", topics))
			return nil
		},
	}
}
