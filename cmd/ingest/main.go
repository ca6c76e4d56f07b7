// Command ingest rebuilds the issue-comment corpus: it pages through a
// repository's issues, keeps substantive comments, embeds them, and writes
// the result to the bolt store and any configured Qdrant, Neo4j and NATS
// backends. With -listen it stays up and rebuilds on every NATS request.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/issuesim/engine/graph"
	"github.com/WessleyAI/issuesim/engine/ingest"
	"github.com/WessleyAI/issuesim/engine/store"
	"github.com/WessleyAI/issuesim/engine/tracker"
	"github.com/WessleyAI/issuesim/internal/wire"
	"github.com/WessleyAI/issuesim/pkg/config"
	"github.com/WessleyAI/issuesim/pkg/metrics"
)

type flags struct {
	configPath  string
	owner       string
	repo        string
	total       int
	listen      bool
	metricsAddr string
	logLevel    string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.owner, "owner", "", "repository owner (overrides config)")
	fs.StringVar(&f.repo, "repo", "", "repository name (overrides config)")
	fs.IntVar(&f.total, "total", 0, "number of issues to page through (overrides config)")
	fs.BoolVar(&f.listen, "listen", false, "stay up and rebuild on "+ingest.RequestSubject)
	fs.StringVar(&f.metricsAddr, "metrics", "", "metrics listen address, e.g. :9091 (overrides config)")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	return f, fs.Parse(args)
}

func (f flags) apply(cfg *config.Config) {
	if f.owner != "" {
		cfg.Tracker.Owner = f.owner
	}
	if f.repo != "" {
		cfg.Tracker.Repo = f.repo
	}
	if f.total > 0 {
		cfg.Tracker.TotalCount = f.total
	}
	if f.metricsAddr != "" {
		cfg.Server.MetricsAddr = f.metricsAddr
	}
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	logger := wire.Logger(false, f.logLevel)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	f.apply(&cfg)
	if err := cfg.ValidateIngest(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f.listen, logger); err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, listen bool, logger *slog.Logger) error {
	reg := metrics.New()
	if cfg.Server.MetricsAddr != "" {
		go reg.CollectRuntime(ctx, 15*time.Second)
		go func() {
			if err := reg.Serve(ctx, cfg.Server.MetricsAddr, logger); err != nil {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	engine, err := wire.Engine(cfg, logger)
	if err != nil {
		return err
	}
	client := tracker.New(cfg.TrackerConfig(), tracker.WithLogger(logger))

	deps := ingest.Deps{
		Fetcher:    client,
		Resolver:   client,
		Embedder:   engine,
		Store:      store.OnDemand{Path: cfg.Store.Path},
		Corpus:     cfg.CorpusOptions(),
		Repository: cfg.Repository().Slug(),
		Checkpoint: cfg.Encoder.Checkpoint,
		Metric:     cfg.Index.Metric,
		Metrics:    metrics.NewIngest(reg),
		Logger:     logger,
	}

	vs, err := wire.Qdrant(cfg)
	if err != nil {
		return err
	}
	if vs != nil {
		defer vs.Close()
		deps.Vectors = vs
		logger.Info("writing vectors to qdrant", "addr", cfg.Qdrant.Addr, "collection", vs.Collection())
	}

	driver, err := wire.Neo4j(ctx, cfg)
	if err != nil {
		return err
	}
	if driver != nil {
		defer driver.Close(context.Background())
		deps.Threads = graph.New(driver)
		logger.Info("writing threads to neo4j", "url", cfg.Neo4j.URL)
	}

	nc, err := wire.NATS(cfg, "issuesim-ingest", logger)
	if err != nil {
		return err
	}
	if nc != nil {
		defer nc.Drain()
		deps.Events = nc
	}

	if !listen {
		ev, err := ingest.Run(ctx, deps, ingest.NewJob())
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d rows from %d issues of %s (%d dims) in %s\n",
			ev.Rows, ev.Issues, ev.Repository, ev.Dims, ev.Took.Round(time.Millisecond))
		return nil
	}

	if nc == nil {
		return fmt.Errorf("-listen needs a NATS url")
	}
	sub, err := ingest.StartConsumer(ctx, nc, deps)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	logger.Info("waiting for rebuild requests", "subject", ingest.RequestSubject)
	<-ctx.Done()
	return nil
}
