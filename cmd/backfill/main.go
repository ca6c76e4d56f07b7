// Command backfill repopulates the secondary backends from the bolt store
// without refetching the tracker: vectors go to Qdrant (collection
// recreated) and threads to Neo4j (graph reset). Use it after pointing the
// service at a fresh Qdrant or Neo4j instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/graph"
	"github.com/WessleyAI/issuesim/engine/ingest"
	"github.com/WessleyAI/issuesim/engine/store"
	"github.com/WessleyAI/issuesim/internal/wire"
	"github.com/WessleyAI/issuesim/pkg/config"
	"github.com/WessleyAI/issuesim/pkg/fn"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	skipVectors := flag.Bool("skip-vectors", false, "do not touch Qdrant")
	skipGraph := flag.Bool("skip-graph", false, "do not touch Neo4j")
	flag.Parse()

	logger := wire.Logger(false, "info")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	var targets targets
	if !*skipVectors {
		vs, err := wire.Qdrant(cfg)
		if err != nil {
			logger.Error("qdrant", "err", err)
			os.Exit(1)
		}
		if vs != nil {
			defer vs.Close()
			targets.vectors = vs
		}
	}
	if !*skipGraph {
		driver, err := wire.Neo4j(ctx, cfg)
		if err != nil {
			logger.Error("neo4j", "err", err)
			os.Exit(1)
		}
		if driver != nil {
			defer driver.Close(context.Background())
			targets.threads = graph.New(driver)
		}
	}
	if targets.vectors == nil && targets.threads == nil {
		logger.Error("nothing to backfill: configure qdrant.addr or neo4j.url")
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	rows, err := st.LoadRows(ctx)
	st.Close()
	if err != nil {
		logger.Error("load rows", "err", err)
		os.Exit(1)
	}

	if err := backfill(ctx, rows, targets, logger); err != nil {
		logger.Error("backfill failed", "err", err)
		os.Exit(1)
	}
}

type targets struct {
	vectors ingest.VectorSink
	threads ingest.ThreadSink
}

func backfill(ctx context.Context, rows []embed.EmbeddedRow, t targets, logger *slog.Logger) error {
	if len(rows) == 0 {
		return fmt.Errorf("store holds no rows; run ingest first")
	}
	if t.vectors != nil {
		if err := t.vectors.RecreateCollection(ctx, len(rows[0].Embedding)); err != nil {
			return fmt.Errorf("recreate collection: %w", err)
		}
		if err := t.vectors.Upsert(ctx, rows); err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}
		logger.Info("vectors backfilled", "rows", len(rows))
	}
	if t.threads != nil {
		if err := t.threads.Reset(ctx); err != nil {
			return fmt.Errorf("reset graph: %w", err)
		}
		plain := fn.Map(rows, func(r embed.EmbeddedRow) corpus.Row { return r.Row })
		n, err := t.threads.SaveCorpus(ctx, plain)
		if err != nil {
			return fmt.Errorf("save threads: %w", err)
		}
		logger.Info("threads backfilled", "threads", n, "rows", len(rows))
	}
	return nil
}
