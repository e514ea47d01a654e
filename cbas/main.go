package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/animus-labs/cbas-go/internal/platform/env"
	"github.com/animus-labs/cbas-go/internal/platform/httpserver"
	platformstore "github.com/animus-labs/cbas-go/internal/platform/objectstore"
	pgrepo "github.com/animus-labs/cbas-go/internal/repo/postgres"
	"github.com/animus-labs/cbas-go/internal/service/methods"
)

const serviceName = "cbas"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Batch workflow submission service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				path = env.String("CBAS_CONFIG_FILE", "")
			}
			return env.LoadFile(path)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file; environment variables take precedence")
	root.AddCommand(newServeCmd(), newPollCmd(), newMigrateCmd(), newSeedMethodsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch API and poll runs in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.buildServices(ctx)
			if err != nil {
				return err
			}
			validator, err := newRequestValidator(ctx)
			if err != nil {
				return err
			}
			httpCfg, err := httpserver.ConfigFromEnv(serviceName)
			if err != nil {
				return fmt.Errorf("invalid http config: %w", err)
			}

			checks := []httpserver.ReadinessCheck{{
				Name:  "postgres",
				Check: a.db.PingContext,
			}}
			if svc.storeClient != nil {
				checks = append(checks, httpserver.ReadinessCheck{
					Name: "minio",
					Check: func(ctx context.Context) error {
						return platformstore.CheckBuckets(ctx, svc.storeClient, svc.storeCfg)
					},
				})
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
			mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, httpCfg.ReadinessTimeout, checks...))
			api := &batchAPI{
				logger:    a.logger,
				submitter: svc.runSets,
				runSets:   a.runSets,
				runs:      a.runs,
				updater:   svc.poller,
				methods:   svc.methods,
				validator: validator,
			}
			api.register(mux)

			if svc.pollCfg.Enabled {
				svc.poller.Start(ctx, svc.pollCfg.Interval, svc.pollCfg.Batch)
			}
			return httpserver.Run(ctx, a.logger, httpCfg, httpserver.Wrap(a.logger, serviceName, mux))
		},
	}
}

func newPollCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Refresh non-terminal runs from the engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.buildServices(ctx)
			if err != nil {
				return err
			}
			if !once {
				a.logger.Info("poller started", "interval", svc.pollCfg.Interval.String(), "batch", svc.pollCfg.Batch)
				svc.poller.Run(ctx, svc.pollCfg.Interval, svc.pollCfg.Batch)
				return nil
			}
			summary, err := svc.poller.PollOnce(ctx, svc.pollCfg.Batch)
			if err != nil {
				return err
			}
			attrs := []any{"runs", len(summary.Runs), "skipped", summary.Skipped}
			for result, n := range summary.Results {
				attrs = append(attrs, string(result), n)
			}
			a.logger.Info("poll complete", attrs...)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "poll a single batch and exit")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := pgrepo.Migrate(migrateCtx, a.db); err != nil {
				return err
			}
			a.logger.Info("schema applied")
			return nil
		},
	}
}

func newSeedMethodsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-methods",
		Short: "Register methods from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := openSeedFile(file)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := methods.New(a.methods, a.logger).Seed(ctx, f)
			if err != nil {
				return err
			}
			a.logger.Info("seed complete", "methods_created", result.MethodsCreated, "versions_created", result.VersionsCreated)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file describing methods and versions")
	return cmd
}
