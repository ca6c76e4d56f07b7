package store

import (
	"context"

	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/tracker"
)

// OnDemand opens the store at Path for each write and closes it afterwards,
// so another process can take the file lock between writes.
type OnDemand struct {
	Path string
}

func (o OnDemand) with(fn func(*Store) error) error {
	s, err := Open(o.Path)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		_ = s.Close()
		return err
	}
	return s.Close()
}

// SaveIssues opens the store and calls Store.SaveIssues.
func (o OnDemand) SaveIssues(ctx context.Context, issues []tracker.Issue) error {
	return o.with(func(s *Store) error { return s.SaveIssues(ctx, issues) })
}

// ReplaceRows opens the store and calls Store.ReplaceRows.
func (o OnDemand) ReplaceRows(ctx context.Context, rows []embed.EmbeddedRow, meta Meta) error {
	return o.with(func(s *Store) error { return s.ReplaceRows(ctx, rows, meta) })
}
