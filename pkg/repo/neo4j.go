package repo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultListLimit applies when ListOpts.Limit is not positive.
const DefaultListLimit = 100

// Result is the minimal interface needed from a neo4j result.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner is the minimal interface needed from a neo4j session.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// SessionFunc opens a session.
type SessionFunc func(ctx context.Context) Runner

// DriverSessions opens sessions on a live driver.
func DriverSessions(driver neo4j.DriverWithContext) SessionFunc {
	return func(ctx context.Context) Runner {
		return &neo4jSessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{})}
	}
}

// neo4jSessionAdapter adapts neo4j.SessionWithContext to Runner.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Neo4jRepo is a generic Neo4j-backed repository. Records handed to
// fromRecord carry the node under key "n".
type Neo4jRepo[T any, ID comparable] struct {
	sessions   SessionFunc
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// NewNeo4jRepo creates a repository for nodes labelled label.
func NewNeo4jRepo[T any, ID comparable](
	sessions SessionFunc,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		sessions:   sessions,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// Label returns the node label.
func (r *Neo4jRepo[T, ID]) Label() string { return r.label }

// Exec runs a write statement and discards its result.
func (r *Neo4jRepo[T, ID]) Exec(ctx context.Context, cypher string, params map[string]any) error {
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return fmt.Errorf("repo: %s: %w", r.label, err)
	}
	for res.Next(ctx) {
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("repo: %s: %w", r.label, err)
	}
	return nil
}

// Query runs cypher and decodes every record with fromRecord.
func (r *Neo4jRepo[T, ID]) Query(ctx context.Context, cypher string, params map[string]any) ([]T, error) {
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("repo: %s: %w", r.label, err)
	}
	var items []T
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, fmt.Errorf("repo: %s: decode: %w", r.label, err)
		}
		items = append(items, item)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("repo: %s: %w", r.label, err)
	}
	return items, nil
}

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n LIMIT 1", r.label, r.idKey)
	items, err := r.Query(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return items[0], nil
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	params := map[string]any{"offset": max(opts.Offset, 0), "limit": limit}

	keys := make([]string, 0, len(opts.Filter))
	for k := range opts.Filter {
		if !identRe.MatchString(k) {
			return nil, fmt.Errorf("repo: %s: invalid filter key %q", r.label, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var where []string
	for i, k := range keys {
		p := fmt.Sprintf("f%d", i)
		where = append(where, fmt.Sprintf("n.%s = $%s", k, p))
		params[p] = opts.Filter[k]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", r.label)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.idKey)
	return r.Query(ctx, b.String(), params)
}

// Merge creates the node if its id is new and overwrites its properties.
func (r *Neo4jRepo[T, ID]) Merge(ctx context.Context, entity T) (T, error) {
	var zero T
	props := r.toMap(entity)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	items, err := r.Query(ctx, cypher, map[string]any{"id": props[r.idKey], "props": props})
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, fmt.Errorf("repo: merge %s: no node returned", r.label)
	}
	return items[0], nil
}

// Delete removes the node and its relationships.
func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", r.label, r.idKey)
	return r.Exec(ctx, cypher, map[string]any{"id": id})
}

// Count returns the number of nodes with the label.
func (r *Neo4jRepo[T, ID]) Count(ctx context.Context) (int64, error) {
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", r.label), nil)
	if err != nil {
		return 0, fmt.Errorf("repo: count %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return 0, fmt.Errorf("repo: count %s: %w", r.label, err)
		}
		return 0, nil
	}
	n, _, err := neo4j.GetRecordValue[int64](res.Record(), "count")
	if err != nil {
		return 0, fmt.Errorf("repo: count %s: %w", r.label, err)
	}
	return n, nil
}
