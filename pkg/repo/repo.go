// Package repo provides a generic repository over labelled graph nodes.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no node matches an id.
var ErrNotFound = errors.New("repo: not found")

// Repository reads and upserts nodes of one kind.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Merge(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
	Count(ctx context.Context) (int64, error)
}

// ListOpts controls pagination and filtering for List operations. Filter
// keys are property names matched by equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
