package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/issuesim/pkg/repo"
)

func newIssueRepo(sessions repo.SessionFunc) *repo.Neo4jRepo[IssueNode, int64] {
	return repo.NewNeo4jRepo[IssueNode, int64](sessions, "Issue", issueToMap, issueFromRecord,
		repo.WithIDKey[IssueNode, int64]("number"))
}

func newCommentRepo(sessions repo.SessionFunc) *repo.Neo4jRepo[CommentNode, string] {
	return repo.NewNeo4jRepo[CommentNode, string](sessions, "Comment", commentToMap, commentFromRecord)
}

func issueToMap(i IssueNode) map[string]any {
	return map[string]any{
		"number":   i.Number,
		"title":    i.Title,
		"body":     i.Body,
		"url":      i.URL,
		"comments": i.Comments,
	}
}

func issueFromRecord(rec *neo4j.Record) (IssueNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return IssueNode{}, err
	}
	p := node.Props
	return IssueNode{
		Number:   intProp(p, "number"),
		Title:    strProp(p, "title"),
		Body:     strProp(p, "body"),
		URL:      strProp(p, "url"),
		Comments: intProp(p, "comments"),
	}, nil
}

func commentToMap(c CommentNode) map[string]any {
	return map[string]any{
		"id":      c.ID,
		"issue":   c.Issue,
		"ordinal": c.Ordinal,
		"body":    c.Body,
		"words":   c.Words,
	}
}

func commentFromRecord(rec *neo4j.Record) (CommentNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return CommentNode{}, err
	}
	p := node.Props
	return CommentNode{
		ID:      strProp(p, "id"),
		Issue:   intProp(p, "issue"),
		Ordinal: intProp(p, "ordinal"),
		Body:    strProp(p, "body"),
		Words:   intProp(p, "words"),
	}, nil
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
