// Package main implements the issuesim similarity API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/graph"
	"github.com/WessleyAI/issuesim/engine/ingest"
	"github.com/WessleyAI/issuesim/engine/retrieval"
	"github.com/WessleyAI/issuesim/internal/wire"
	"github.com/WessleyAI/issuesim/pkg/config"
	"github.com/WessleyAI/issuesim/pkg/metrics"
	"github.com/WessleyAI/issuesim/pkg/natsutil"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger := wire.Logger(true, *logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	go reg.CollectRuntime(ctx, 15*time.Second)

	engine, err := wire.Engine(cfg, logger)
	if err != nil {
		return err
	}

	vs, err := wire.Qdrant(cfg)
	if err != nil {
		return err
	}
	if vs != nil {
		defer vs.Close()
	}

	var threads retrieval.ThreadLookup
	driver, err := wire.Neo4j(ctx, cfg)
	if err != nil {
		return err
	}
	if driver != nil {
		defer driver.Close(context.Background())
		threads = graph.New(driver)
	}

	opts := retrieval.DefaultOptions()
	opts.TopK = cfg.Index.TopK
	opts.WithThreads = threads != nil
	svc := retrieval.New(engine, nil, threads, opts, logger)

	srv := newServer(svc, threads, metrics.NewQuery(reg), logger)
	srv.load = func(ctx context.Context) (retrieval.Searcher, int, error) {
		return wire.Searcher(ctx, cfg, vs)
	}
	if err := srv.reload(ctx); err != nil {
		if !errors.Is(err, domain.ErrEmptyCorpus) {
			return err
		}
		logger.Warn("no corpus yet, serving 503 until the first rebuild")
	}

	nc, err := wire.NATS(cfg, "issuesim-api", logger)
	if err != nil {
		return err
	}
	if nc != nil {
		defer nc.Drain()
		sub, err := natsutil.Subscribe(nc, ingest.RebuiltSubject, logger, srv.onRebuilt(cfg.Encoder.Checkpoint))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ingest.RebuiltSubject, err)
		}
		defer sub.Unsubscribe()
		logger.Info("reloading on rebuild events", "subject", ingest.RebuiltSubject)
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.routes(reg, cfg.Server.CORSOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
