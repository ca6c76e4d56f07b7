package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/issuesim/pkg/repo"
	"github.com/WessleyAI/issuesim/pkg/repo/repotest"
)

type label struct {
	Name  string
	Color string
}

func labelToMap(l label) map[string]any {
	return map[string]any{"name": l.Name, "color": l.Color}
}

func labelFromRecord(rec *neo4j.Record) (label, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return label{}, err
	}
	name, _ := node.Props["name"].(string)
	color, _ := node.Props["color"].(string)
	return label{Name: name, Color: color}, nil
}

func newLabels(s *repotest.Sessions) *repo.Neo4jRepo[label, string] {
	return repo.NewNeo4jRepo[label, string](s.Func(), "Label", labelToMap, labelFromRecord,
		repo.WithIDKey[label, string]("name"))
}

func labelRecord(name, color string) *neo4j.Record {
	return repotest.NodeRecord("n", map[string]any{"name": name, "color": color}, "Label")
}

func TestGet(t *testing.T) {
	s := repotest.New(repotest.Reply{Records: []*neo4j.Record{labelRecord("bug", "red")}})
	r := newLabels(s)

	got, err := r.Get(context.Background(), "bug")
	require.NoError(t, err)
	assert.Equal(t, label{Name: "bug", Color: "red"}, got)

	calls := s.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "MATCH (n:Label {name: $id}) RETURN n LIMIT 1", calls[0].Cypher)
	assert.Equal(t, "bug", calls[0].Params["id"])
	assert.True(t, s.Balanced())
}

func TestGet_NotFound(t *testing.T) {
	r := newLabels(repotest.New())
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGet_RunError(t *testing.T) {
	s := repotest.New(repotest.Reply{Err: errors.New("unavailable")})
	_, err := newLabels(s).Get(context.Background(), "bug")
	assert.ErrorContains(t, err, "unavailable")
	assert.True(t, s.Balanced())
}

func TestGet_DecodeError(t *testing.T) {
	s := repotest.New(repotest.Reply{Records: []*neo4j.Record{repotest.ValueRecord("n", "not-a-node")}})
	_, err := newLabels(s).Get(context.Background(), "bug")
	assert.ErrorContains(t, err, "decode")
}

func TestList_DefaultsAndFilter(t *testing.T) {
	s := repotest.New(
		repotest.Reply{Records: []*neo4j.Record{labelRecord("a", "red"), labelRecord("b", "blue")}},
		repotest.Reply{},
	)
	r := newLabels(s)

	got, err := r.List(context.Background(), repo.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = r.List(context.Background(), repo.ListOpts{Offset: 5, Limit: 10, Filter: map[string]any{"color": "red", "archived": false}})
	require.NoError(t, err)

	calls := s.Calls()
	assert.Equal(t, "MATCH (n:Label) RETURN n ORDER BY n.name SKIP $offset LIMIT $limit", calls[0].Cypher)
	assert.Equal(t, repo.DefaultListLimit, calls[0].Params["limit"])
	assert.Equal(t, "MATCH (n:Label) WHERE n.archived = $f0 AND n.color = $f1 RETURN n ORDER BY n.name SKIP $offset LIMIT $limit", calls[1].Cypher)
	assert.Equal(t, false, calls[1].Params["f0"])
	assert.Equal(t, "red", calls[1].Params["f1"])
	assert.Equal(t, 5, calls[1].Params["offset"])
}

func TestList_RejectsInjectedKey(t *testing.T) {
	s := repotest.New()
	_, err := newLabels(s).List(context.Background(), repo.ListOpts{Filter: map[string]any{"x}) DETACH DELETE n //": 1}})
	assert.Error(t, err)
	assert.Empty(t, s.Calls())
}

func TestList_IterationError(t *testing.T) {
	s := repotest.New(repotest.Reply{IterErr: errors.New("connection reset")})
	_, err := newLabels(s).List(context.Background(), repo.ListOpts{})
	assert.ErrorContains(t, err, "connection reset")
}

func TestMerge(t *testing.T) {
	s := repotest.New(repotest.Reply{Records: []*neo4j.Record{labelRecord("bug", "green")}})
	got, err := newLabels(s).Merge(context.Background(), label{Name: "bug", Color: "green"})
	require.NoError(t, err)
	assert.Equal(t, "green", got.Color)

	call := s.Calls()[0]
	assert.Equal(t, "MERGE (n:Label {name: $id}) SET n += $props RETURN n", call.Cypher)
	assert.Equal(t, "bug", call.Params["id"])
	assert.Equal(t, map[string]any{"name": "bug", "color": "green"}, call.Params["props"])
}

func TestMerge_NoNode(t *testing.T) {
	_, err := newLabels(repotest.New()).Merge(context.Background(), label{Name: "bug"})
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	s := repotest.New()
	require.NoError(t, newLabels(s).Delete(context.Background(), "bug"))
	assert.Equal(t, "MATCH (n:Label {name: $id}) DETACH DELETE n", s.Calls()[0].Cypher)
}

func TestExec_Errors(t *testing.T) {
	s := repotest.New(repotest.Reply{Err: errors.New("boom")}, repotest.Reply{IterErr: errors.New("late")})
	r := newLabels(s)
	assert.ErrorContains(t, r.Exec(context.Background(), "RETURN 1", nil), "boom")
	assert.ErrorContains(t, r.Exec(context.Background(), "RETURN 1", nil), "late")
	assert.True(t, s.Balanced())
}

func TestCount(t *testing.T) {
	s := repotest.New(repotest.Reply{Records: []*neo4j.Record{repotest.ValueRecord("count", int64(42))}}, repotest.Reply{})
	r := newLabels(s)

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = r.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDefaultIDKey(t *testing.T) {
	s := repotest.New()
	r := repo.NewNeo4jRepo[label, string](s.Func(), "Node", labelToMap, labelFromRecord)
	assert.Equal(t, "Node", r.Label())
	require.NoError(t, r.Delete(context.Background(), "x"))
	assert.Equal(t, "MATCH (n:Node {id: $id}) DETACH DELETE n", s.Calls()[0].Cypher)
}
