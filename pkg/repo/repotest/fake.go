// Package repotest provides an in-memory stand-in for Neo4j sessions.
package repotest

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/issuesim/pkg/repo"
)

// Call is one recorded Run.
type Call struct {
	Cypher string
	Params map[string]any
}

// Reply is what a Run returns. Err fails Run itself; IterErr surfaces from
// Result.Err after the records are consumed.
type Reply struct {
	Records []*neo4j.Record
	Err     error
	IterErr error
}

// Sessions records every statement and answers them from a queue of
// replies. Once the queue is empty, Run returns no records.
type Sessions struct {
	mu      sync.Mutex
	calls   []Call
	replies []Reply
	opened  int
	closed  int
}

// New returns Sessions that will answer with replies in order.
func New(replies ...Reply) *Sessions {
	return &Sessions{replies: replies}
}

// Func returns a repo.SessionFunc backed by s.
func (s *Sessions) Func() repo.SessionFunc {
	return func(context.Context) repo.Runner {
		s.mu.Lock()
		s.opened++
		s.mu.Unlock()
		return &session{s: s}
	}
}

// Calls returns the recorded statements.
func (s *Sessions) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Balanced reports whether every opened session was closed.
func (s *Sessions) Balanced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened == s.closed
}

// NodeRecord builds a record holding one node under key.
func NodeRecord(key string, props map[string]any, labels ...string) *neo4j.Record {
	return &neo4j.Record{Keys: []string{key}, Values: []any{dbtype.Node{Labels: labels, Props: props}}}
}

// ValueRecord builds a record holding one plain value under key.
func ValueRecord(key string, v any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{key}, Values: []any{v}}
}

type session struct{ s *Sessions }

func (x *session) Run(_ context.Context, cypher string, params map[string]any) (repo.Result, error) {
	x.s.mu.Lock()
	defer x.s.mu.Unlock()
	x.s.calls = append(x.s.calls, Call{Cypher: cypher, Params: params})
	var r Reply
	if len(x.s.replies) > 0 {
		r, x.s.replies = x.s.replies[0], x.s.replies[1:]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &result{records: r.Records, err: r.IterErr, pos: -1}, nil
}

func (x *session) Close(context.Context) error {
	x.s.mu.Lock()
	x.s.closed++
	x.s.mu.Unlock()
	return nil
}

type result struct {
	records []*neo4j.Record
	err     error
	pos     int
}

func (r *result) Next(context.Context) bool {
	if r.pos+1 >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *result) Record() *neo4j.Record {
	if r.pos < 0 || r.pos >= len(r.records) {
		return nil
	}
	return r.records[r.pos]
}

func (r *result) Err() error { return r.err }
