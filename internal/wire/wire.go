// Package wire builds the collaborators shared by the issuesim binaries
// from a config.Config. Optional backends come back nil when they are not
// configured.
package wire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/index"
	"github.com/WessleyAI/issuesim/engine/retrieval"
	"github.com/WessleyAI/issuesim/engine/semantic"
	"github.com/WessleyAI/issuesim/engine/store"
	"github.com/WessleyAI/issuesim/pkg/config"
	"github.com/WessleyAI/issuesim/pkg/natsutil"
	"github.com/WessleyAI/issuesim/pkg/ollama"
	"github.com/WessleyAI/issuesim/pkg/tei"
)

// Logger returns a text or JSON logger at the given level and installs it
// as the default.
func Logger(jsonOut bool, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if jsonOut {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Encoder returns the configured embedding backend.
func Encoder(cfg config.Config) embed.Encoder {
	if cfg.Encoder.Backend == config.EncoderTEI {
		return embed.Pooled(tei.New(cfg.Encoder.URL))
	}
	return ollama.NewEmbedClient(cfg.Encoder.URL, cfg.Encoder.Checkpoint)
}

// Engine returns an embedding engine over the configured encoder.
func Engine(cfg config.Config, logger *slog.Logger) (*embed.Engine, error) {
	opts := cfg.EmbedOptions()
	opts.Logger = logger
	return embed.New(Encoder(cfg), opts)
}

// Qdrant connects to the vector database, or returns nil when no address
// is configured.
func Qdrant(cfg config.Config) (*semantic.VectorStore, error) {
	if cfg.Qdrant.Addr == "" {
		return nil, nil
	}
	vs, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return vs, nil
}

// Neo4j connects to the thread graph, or returns nil when no URL is
// configured.
func Neo4j(ctx context.Context, cfg config.Config) (neo4j.DriverWithContext, error) {
	if cfg.Neo4j.URL == "" {
		return nil, nil
	}
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j verify: %w", err)
	}
	return driver, nil
}

// NATS connects to the event bus, or returns nil when no URL is configured.
func NATS(cfg config.Config, name string, logger *slog.Logger) (*nats.Conn, error) {
	if cfg.NATS.URL == "" {
		return nil, nil
	}
	return natsutil.Connect(cfg.NATS.URL, name, logger)
}

// Searcher returns the configured search backend and the number of rows it
// holds. The flat index is loaded from the store at path, which is opened
// only for the duration of the load so a concurrent ingest can take the
// file lock. The stored corpus must have been embedded with the configured
// checkpoint and indexed with the configured metric. An empty corpus yields
// a searcher that answers every query with domain.ErrEmptyCorpus, whatever
// the backend still holds.
func Searcher(ctx context.Context, cfg config.Config, vs *semantic.VectorStore) (retrieval.Searcher, int, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, 0, err
	}
	defer st.Close()

	if err := st.CheckEncoder(cfg.Encoder.Checkpoint, 0); err != nil {
		return nil, 0, err
	}
	meta, err := st.Meta()
	if err != nil {
		return nil, 0, err
	}
	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, 0, err
	}
	stored, err := index.ParseMetric(meta.Metric)
	if err != nil {
		return nil, 0, err
	}
	if stored != metric {
		return nil, 0, fmt.Errorf("wire: corpus indexed with %q, query metric is %q: %w",
			stored, metric, domain.ErrMetricMismatch)
	}

	if cfg.Index.Backend == config.IndexQdrant {
		if vs == nil {
			return nil, 0, fmt.Errorf("wire: qdrant index selected without a connection")
		}
		if meta.Rows == 0 {
			empty, err := index.Build(nil, metric)
			if err != nil {
				return nil, 0, err
			}
			return empty, 0, nil
		}
		return vs, meta.Rows, nil
	}

	rows, err := st.LoadRows(ctx)
	if err != nil {
		return nil, 0, err
	}
	flat, err := index.Build(rows, metric)
	if err != nil {
		return nil, 0, err
	}
	return flat, flat.Len(), nil
}
