package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/WessleyAI/issuesim/engine/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ISSUESIM_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type binding struct {
	key string
	set func(string) error
}

func str(p *string) func(string) error {
	return func(v string) error { *p = v; return nil }
}

func integer(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func float(p *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

// duration accepts Go durations ("1h") or a bare number of seconds.
func duration(p *time.Duration) func(string) error {
	return func(v string) error {
		if n, err := strconv.Atoi(v); err == nil {
			*p = time.Duration(n) * time.Second
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

func (c *Config) bindings() []binding {
	return []binding{
		{"BASE_URL", str(&c.Tracker.BaseURL)},
		{"OWNER", str(&c.Tracker.Owner)},
		{"REPO", str(&c.Tracker.Repo)},
		{"METHOD", str(&c.Tracker.Method)},
		{"TOKEN", str(&c.Tracker.Token)},
		{"PER_PAGE", integer(&c.Tracker.PerPage)},
		{"TOTAL_COUNT", integer(&c.Tracker.TotalCount)},
		{"RATE_LIMIT_WINDOW", integer(&c.Tracker.RateLimitWindow)},
		{"COOLDOWN", duration(&c.Tracker.Cooldown)},
		{"REQUESTS_PER_SECOND", float(&c.Tracker.RequestsPerSecond)},
		{"TRACKER_TIMEOUT", duration(&c.Tracker.Timeout)},
		{"MIN_COMMENT_WORD_COUNT", integer(&c.Corpus.MinCommentWordCount)},
		{"ENCODER_BACKEND", str(&c.Encoder.Backend)},
		{"ENCODER_URL", str(&c.Encoder.URL)},
		{"CHECKPOINT", str(&c.Encoder.Checkpoint)},
		{"DEVICE", str(&c.Encoder.Device)},
		{"BATCH_SIZE", integer(&c.Encoder.BatchSize)},
		{"WORKERS", integer(&c.Encoder.Workers)},
		{"INDEX_BACKEND", str(&c.Index.Backend)},
		{"METRIC", str(&c.Index.Metric)},
		{"TOP_K", integer(&c.Index.TopK)},
		{"STORE_PATH", str(&c.Store.Path)},
		{"QDRANT_ADDR", str(&c.Qdrant.Addr)},
		{"QDRANT_COLLECTION", str(&c.Qdrant.Collection)},
		{"NEO4J_URL", str(&c.Neo4j.URL)},
		{"NEO4J_USER", str(&c.Neo4j.User)},
		{"NEO4J_PASS", str(&c.Neo4j.Pass)},
		{"NATS_URL", str(&c.NATS.URL)},
		{"ADDR", str(&c.Server.Addr)},
		{"METRICS_ADDR", str(&c.Server.MetricsAddr)},
		{"CORS_ORIGIN", str(&c.Server.CORSOrigin)},
	}
}

// ApplyEnv overrides fields from ISSUESIM_* variables. Unset and empty
// variables leave the field alone.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, b := range c.bindings() {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(v); err != nil {
			return fmt.Errorf("config: %w", domain.NewValidationError(EnvPrefix+b.key, v, domain.ErrInvalidConfig))
		}
	}
	return nil
}
