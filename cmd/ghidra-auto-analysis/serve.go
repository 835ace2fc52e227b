package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ghidra_auto_analysis/analysis-service/pkg/storage"
	"ghidra_auto_analysis/analysis-service/pkg/worker"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Process submissions from the redis task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, log, err := setup(os.Stdout)
	if err != nil {
		return err
	}
	log.Infof("starting ghidra auto analysis service, version=%s, commit=%s", Version, GitCommit)

	proc, err := startProcessor(ctx, log, cfg)
	if err != nil {
		return err
	}

	rdb, err := storage.NewRedisClient(ctx, log, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		return err
	}
	defer rdb.Close()

	artifacts, err := storage.NewArtifactStore(cfg.ArtifactDir)
	if err != nil {
		return err
	}

	pool := worker.New(log, worker.Config{
		Workers:     cfg.Workers,
		WorkDir:     cfg.WorkDir,
		TaskTimeout: cfg.TaskTimeout,
	},
		proc,
		storage.NewQueue(rdb, cfg.Redis.Prefix),
		storage.NewResultStore(rdb, cfg.Redis.Prefix, 0),
		artifacts,
	)

	errg, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		errg.Go(func() error {
			return serveMetrics(ctx, log, cfg.MetricsAddr)
		})
	}
	errg.Go(func() error {
		return pool.Run(ctx)
	})
	return errg.Wait()
}

func serveMetrics(ctx context.Context, log logrus.FieldLogger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("metrics server shutdown: %v", err)
		}
	}()

	log.Infof("serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
