// Package config loads issuesim settings from a YAML file, a .env file and
// ISSUESIM_* environment variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/index"
	"github.com/WessleyAI/issuesim/engine/tracker"
	"github.com/WessleyAI/issuesim/pkg/resilience"
)

// Encoder backends.
const (
	EncoderOllama = "ollama"
	EncoderTEI    = "tei"
)

// Index backends.
const (
	IndexFlat   = "flat"
	IndexQdrant = "qdrant"
)

// Config is the full issuesim configuration.
type Config struct {
	Tracker Tracker `yaml:"tracker"`
	Corpus  Corpus  `yaml:"corpus"`
	Encoder Encoder `yaml:"encoder"`
	Index   Index   `yaml:"index"`
	Store   Store   `yaml:"store"`
	Qdrant  Qdrant  `yaml:"qdrant"`
	Neo4j   Neo4j   `yaml:"neo4j"`
	NATS    NATS    `yaml:"nats"`
	Server  Server  `yaml:"server"`
}

// Tracker configures the issue tracker API.
type Tracker struct {
	BaseURL           string        `yaml:"base_url"`
	Owner             string        `yaml:"owner"`
	Repo              string        `yaml:"repo"`
	Method            string        `yaml:"method"`
	PerPage           int           `yaml:"per_page"`
	TotalCount        int           `yaml:"total_count"`
	RateLimitWindow   int           `yaml:"rate_limit_window"`
	Cooldown          time.Duration `yaml:"cooldown"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Token             string        `yaml:"token"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Corpus configures row filtering.
type Corpus struct {
	MinCommentWordCount int `yaml:"min_comment_word_count"`
}

// Encoder selects the embedding model server.
type Encoder struct {
	Backend    string `yaml:"backend"`
	URL        string `yaml:"url"`
	Checkpoint string `yaml:"checkpoint"`
	Device     string `yaml:"device"`
	BatchSize  int    `yaml:"batch_size"`
	Workers    int    `yaml:"workers"`
}

// Index selects the search backend.
type Index struct {
	Backend string `yaml:"backend"`
	Metric  string `yaml:"metric"`
	TopK    int    `yaml:"top_k"`
}

// Store locates the bolt artifact store.
type Store struct {
	Path string `yaml:"path"`
}

// Qdrant configures the vector database. An empty Addr disables it.
type Qdrant struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// Neo4j configures the thread graph. An empty URL disables it.
type Neo4j struct {
	URL  string `yaml:"url"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// NATS configures the event bus. An empty URL disables it.
type NATS struct {
	URL string `yaml:"url"`
}

// Server configures the HTTP listeners.
type Server struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	CORSOrigin  string `yaml:"cors_origin"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Tracker: Tracker{
			BaseURL:         "https://api.github.com/repos",
			Method:          domain.DefaultMethod,
			PerPage:         100,
			RateLimitWindow: resilience.DefaultQuota,
			Cooldown:        resilience.DefaultCooldown,
			Timeout:         30 * time.Second,
		},
		Corpus: Corpus{MinCommentWordCount: corpus.DefaultMinCommentWords},
		Encoder: Encoder{
			Backend:    EncoderOllama,
			URL:        "http://localhost:11434",
			Checkpoint: "nomic-embed-text",
			Device:     string(embed.DeviceAuto),
			BatchSize:  embed.DefaultBatchSize,
			Workers:    1,
		},
		Index:  Index{Backend: IndexFlat, Metric: string(index.MetricDot), TopK: 5},
		Store:  Store{Path: "data/issuesim.db"},
		Qdrant: Qdrant{Collection: "issuesim"},
		Neo4j:  Neo4j{User: "neo4j"},
		Server: Server{Addr: ":8080", CORSOrigin: "*"},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, an
// optional .env file in the working directory, and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Repository returns the tracker repository in domain form.
func (c Config) Repository() domain.Repository {
	return domain.Repository{
		BaseURL: strings.TrimRight(c.Tracker.BaseURL, "/"),
		Owner:   c.Tracker.Owner,
		Repo:    c.Tracker.Repo,
		Method:  c.Tracker.Method,
	}
}

// TrackerConfig maps the tracker section onto the client config.
func (c Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		Repository:  c.Repository(),
		PerPage:     c.Tracker.PerPage,
		TotalIssues: c.Tracker.TotalCount,
		Window: resilience.WindowOpts{
			Quota:    c.Tracker.RateLimitWindow,
			Cooldown: c.Tracker.Cooldown,
		},
		RequestsPerSecond: c.Tracker.RequestsPerSecond,
		Token:             c.Tracker.Token,
		Timeout:           c.Tracker.Timeout,
	}
}

// CorpusOptions maps the corpus section onto builder options.
func (c Config) CorpusOptions() corpus.Options {
	return corpus.Options{MinCommentWords: c.Corpus.MinCommentWordCount}
}

// EmbedOptions maps the encoder section onto engine options.
func (c Config) EmbedOptions() embed.Options {
	return embed.Options{
		BatchSize: c.Encoder.BatchSize,
		Workers:   c.Encoder.Workers,
		Device:    c.Encoder.Device,
	}
}

// Validate checks the settings shared by every binary.
func (c Config) Validate() error {
	if err := domain.Positive("encoder.batch_size", c.Encoder.BatchSize); err != nil {
		return err
	}
	if err := domain.Positive("index.top_k", c.Index.TopK); err != nil {
		return err
	}
	if strings.TrimSpace(c.Encoder.Checkpoint) == "" {
		return domain.NewValidationError("encoder.checkpoint", c.Encoder.Checkpoint, domain.ErrInvalidConfig)
	}
	switch c.Encoder.Backend {
	case EncoderOllama, EncoderTEI:
	default:
		return domain.NewValidationError("encoder.backend", c.Encoder.Backend, domain.ErrInvalidConfig)
	}
	if _, err := embed.ResolveDevice(c.Encoder.Device); err != nil {
		return err
	}
	metric, err := index.ParseMetric(c.Index.Metric)
	if err != nil {
		return err
	}
	switch c.Index.Backend {
	case IndexFlat:
	case IndexQdrant:
		if c.Qdrant.Addr == "" {
			return domain.NewValidationError("qdrant.addr", "", domain.ErrInvalidConfig)
		}
		// Collections are created with dot distance only.
		if metric != index.MetricDot {
			return domain.NewValidationError("index.metric", c.Index.Metric, domain.ErrUnknownMetric)
		}
	default:
		return domain.NewValidationError("index.backend", c.Index.Backend, domain.ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return domain.NewValidationError("store.path", "", domain.ErrInvalidConfig)
	}
	return nil
}

// ValidateIngest additionally checks the tracker and corpus settings.
func (c Config) ValidateIngest() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := domain.ValidateRepository(c.Repository()); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		n    int
	}{
		{"tracker.per_page", c.Tracker.PerPage},
		{"tracker.total_count", c.Tracker.TotalCount},
		{"tracker.rate_limit_window", c.Tracker.RateLimitWindow},
	} {
		if err := domain.Positive(f.name, f.n); err != nil {
			return err
		}
	}
	if c.Corpus.MinCommentWordCount < 0 {
		return domain.NewValidationError("corpus.min_comment_word_count",
			fmt.Sprint(c.Corpus.MinCommentWordCount), domain.ErrInvalidConfig)
	}
	if c.Tracker.RequestsPerSecond < 0 {
		return domain.NewValidationError("tracker.requests_per_second",
			fmt.Sprint(c.Tracker.RequestsPerSecond), domain.ErrInvalidConfig)
	}
	return nil
}
