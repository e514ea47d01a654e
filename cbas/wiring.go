package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/animus-labs/cbas-go/internal/clients/cromwell"
	"github.com/animus-labs/cbas-go/internal/clients/wds"
	"github.com/animus-labs/cbas-go/internal/platform/auditlog"
	"github.com/animus-labs/cbas-go/internal/platform/env"
	"github.com/animus-labs/cbas-go/internal/platform/logging"
	"github.com/animus-labs/cbas-go/internal/platform/metrics"
	platformstore "github.com/animus-labs/cbas-go/internal/platform/objectstore"
	"github.com/animus-labs/cbas-go/internal/platform/postgres"
	"github.com/animus-labs/cbas-go/internal/platform/runlock"
	pgrepo "github.com/animus-labs/cbas-go/internal/repo/postgres"
	"github.com/animus-labs/cbas-go/internal/service/completion"
	"github.com/animus-labs/cbas-go/internal/service/methods"
	"github.com/animus-labs/cbas-go/internal/service/polling"
	"github.com/animus-labs/cbas-go/internal/service/runsets"
	"github.com/animus-labs/cbas-go/internal/storage/objectstore"
)

// app holds the process-wide logger and database handle.
type app struct {
	logger  *slog.Logger
	db      *sql.DB
	methods *pgrepo.MethodStore
	runSets *pgrepo.RunSetStore
	runs    *pgrepo.RunStore
	closers []func() error
}

func openApp(ctx context.Context) (*app, error) {
	logCfg, err := logging.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}
	logger, logCloser, err := logging.New(logCfg, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	a := &app{logger: logger, closers: []func() error{logCloser.Close}}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.methods = pgrepo.NewMethodStore(db)
	a.runSets = pgrepo.NewRunSetStore(db)
	a.runs = pgrepo.NewRunStore(db)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

type pollerConfig struct {
	Enabled  bool
	Interval time.Duration
	Batch    int
}

func pollerConfigFromEnv() (pollerConfig, error) {
	enabled, err := env.Bool("CBAS_POLL_ENABLED", true)
	if err != nil {
		return pollerConfig{}, err
	}
	interval, err := env.Duration("CBAS_POLL_INTERVAL", polling.DefaultInterval)
	if err != nil {
		return pollerConfig{}, err
	}
	batch, err := env.Int("CBAS_POLL_BATCH", polling.DefaultBatch)
	if err != nil {
		return pollerConfig{}, err
	}
	if interval <= 0 {
		return pollerConfig{}, errors.New("CBAS_POLL_INTERVAL must be positive")
	}
	if batch < 1 {
		return pollerConfig{}, errors.New("CBAS_POLL_BATCH must be >= 1")
	}
	return pollerConfig{Enabled: enabled, Interval: interval, Batch: batch}, nil
}

// services are the wired domain components.
type services struct {
	runSets    *runsets.Service
	reconciler *completion.Reconciler
	poller     *polling.Poller
	methods    *methods.Service

	storeClient *minio.Client
	storeCfg    platformstore.Config
	pollCfg     pollerConfig
}

func (a *app) buildServices(ctx context.Context) (*services, error) {
	recorder, err := metrics.New(nil)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	wdsCfg, err := wds.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid record store config: %w", err)
	}
	records, err := wds.New(wdsCfg)
	if err != nil {
		return nil, fmt.Errorf("record store client init failed: %w", err)
	}

	engineCfg, err := cromwell.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	engine, err := cromwell.New(engineCfg)
	if err != nil {
		return nil, fmt.Errorf("engine client init failed: %w", err)
	}

	lockCfg, err := runlock.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid run lock config: %w", err)
	}
	locker, closeLocker, err := runlock.New(ctx, lockCfg)
	if err != nil {
		return nil, fmt.Errorf("run lock unavailable: %w", err)
	}
	a.closers = append(a.closers, closeLocker)

	storeCfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid object store config: %w", err)
	}
	var (
		storeClient *minio.Client
		archive     completion.OutputArchiver
	)
	if storeCfg.Enabled {
		storeClient, err = platformstore.NewMinIOClient(storeCfg)
		if err != nil {
			return nil, fmt.Errorf("object store client init failed: %w", err)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = platformstore.EnsureBuckets(startupCtx, storeClient, storeCfg)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("object store unavailable: %w", err)
		}
		outputArchive, err := objectstore.NewMinioOutputArchive(storeClient, storeCfg.BucketOutputs)
		if err != nil {
			return nil, err
		}
		archive = outputArchive
	}

	runSetCfg, err := runsets.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid run set config: %w", err)
	}
	pollCfg, err := pollerConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid poller config: %w", err)
	}

	reconciler := completion.New(completion.Dependencies{
		Runs:    a.runs,
		Records: records,
		Locker:  locker,
		Archive: archive,
		Metrics: recorder,
		Logger:  a.logger,
	})
	return &services{
		runSets: runsets.New(runSetCfg, runsets.Dependencies{
			Methods: a.methods,
			RunSets: a.runSets,
			Runs:    a.runs,
			Records: records,
			Engine:  engine,
			Audit:   auditlog.NewRecorder(a.db),
			Metrics: recorder,
			Logger:  a.logger,
		}),
		reconciler:  reconciler,
		poller:      polling.New(a.runs, engine, reconciler, recorder, a.logger),
		methods:     methods.New(a.methods, a.logger),
		storeClient: storeClient,
		storeCfg:    storeCfg,
		pollCfg:     pollCfg,
	}, nil
}

func openSeedFile(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, errors.New("--file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	return f, nil
}
