// Package store persists the ingested corpus (raw issues, embedded rows and
// build metadata) in a single bbolt file so queries can run without
// re-fetching or re-embedding.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/tracker"
)

var (
	bucketIssues = []byte("issues")
	bucketRows   = []byte("rows")
	bucketMeta   = []byte("meta")

	metaKey = []byte("corpus")
)

// Meta describes the corpus currently in the store.
type Meta struct {
	Repository string    `msgpack:"repository" json:"repository"`
	Checkpoint string    `msgpack:"checkpoint" json:"checkpoint"`
	Dims       int       `msgpack:"dims" json:"dims"`
	Metric     string    `msgpack:"metric" json:"metric"`
	Issues     int       `msgpack:"issues" json:"issues"`
	Rows       int       `msgpack:"rows" json:"rows"`
	BuiltAt    time.Time `msgpack:"built_at" json:"built_at"`
}

type record struct {
	Row       corpus.Row `msgpack:"row"`
	Embedding []float32  `msgpack:"embedding"`
}

// Store is a bbolt-backed corpus store. It is safe for concurrent use;
// bbolt serializes writers.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIssues, bucketRows, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveIssues replaces the stored issues. Each issue is kept as the JSON the
// tracker returned, keyed by issue number.
func (s *Store) SaveIssues(ctx context.Context, issues []tracker.Issue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := recreate(tx, bucketIssues)
		if err != nil {
			return err
		}
		for _, is := range issues {
			raw := is.Raw
			if len(raw) == 0 {
				if raw, err = json.Marshal(is); err != nil {
					return fmt.Errorf("marshal issue #%d: %w", is.Number, err)
				}
			}
			if err := b.Put(seqKey(uint64(is.Number)), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save issues: %w", err)
	}
	return nil
}

// LoadIssues returns stored issues ordered by number.
func (s *Store) LoadIssues(ctx context.Context) ([]tracker.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []tracker.Issue
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIssues).ForEach(func(_, v []byte) error {
			var is tracker.Issue
			if err := json.Unmarshal(v, &is); err != nil {
				return err
			}
			out = append(out, is)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load issues: %w", err)
	}
	return out, nil
}

// ReplaceRows swaps the stored rows and metadata in one transaction. Rows,
// Dims and BuiltAt in meta are filled from rows when zero.
func (s *Store) ReplaceRows(ctx context.Context, rows []embed.EmbeddedRow, meta Meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta.Rows = len(rows)
	if meta.Dims == 0 && len(rows) > 0 {
		meta.Dims = len(rows[0].Embedding)
	}
	if meta.BuiltAt.IsZero() {
		meta.BuiltAt = time.Now().UTC()
	}
	for i, r := range rows {
		if len(r.Embedding) != meta.Dims {
			return fmt.Errorf("store: replace rows: row %d: %w", i, domain.ErrDimensionMismatch)
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := recreate(tx, bucketRows)
		if err != nil {
			return err
		}
		for i, r := range rows {
			v, err := msgpack.Marshal(record{Row: r.Row, Embedding: r.Embedding})
			if err != nil {
				return fmt.Errorf("encode row %d: %w", i, err)
			}
			if err := b.Put(seqKey(uint64(i)), v); err != nil {
				return err
			}
		}
		mv, err := msgpack.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		return tx.Bucket(bucketMeta).Put(metaKey, mv)
	})
	if err != nil {
		return fmt.Errorf("store: replace rows: %w", err)
	}
	return nil
}

// LoadRows returns every stored row in corpus order.
func (s *Store) LoadRows(ctx context.Context) ([]embed.EmbeddedRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []embed.EmbeddedRow
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRows)
		out = make([]embed.EmbeddedRow, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode row %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, embed.EmbeddedRow{Row: rec.Row, Embedding: rec.Embedding})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load rows: %w", err)
	}
	return out, nil
}

// Meta returns the corpus metadata, or domain.ErrEmptyCorpus when nothing
// has been ingested.
func (s *Store) Meta() (Meta, error) {
	var m Meta
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaKey)
		if v == nil {
			return domain.ErrEmptyCorpus
		}
		return msgpack.Unmarshal(v, &m)
	})
	if err != nil {
		return Meta{}, fmt.Errorf("store: meta: %w", err)
	}
	return m, nil
}

// CheckEncoder fails with domain.ErrEncoderMismatch when the stored corpus
// was embedded with a different checkpoint or dimension. A dims of 0 skips
// the dimension check.
func (s *Store) CheckEncoder(checkpoint string, dims int) error {
	m, err := s.Meta()
	if err != nil {
		return err
	}
	if m.Checkpoint != checkpoint {
		return fmt.Errorf("store: corpus embedded with %q, query encoder is %q: %w",
			m.Checkpoint, checkpoint, domain.ErrEncoderMismatch)
	}
	if dims != 0 && m.Dims != dims {
		return fmt.Errorf("store: corpus has %d dims, query encoder has %d: %w",
			m.Dims, dims, domain.ErrEncoderMismatch)
	}
	return nil
}

func recreate(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil, err
	}
	return tx.CreateBucket(name)
}

// seqKey encodes n big-endian so bbolt's byte order matches numeric order.
func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}
