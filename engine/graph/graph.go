package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/pkg/repo"
)

const saveThreadCypher = `MERGE (i:Issue {number: $number}) SET i += $props
WITH i
UNWIND $comments AS c
MERGE (n:Comment {id: c.id}) SET n += c
MERGE (i)-[:HAS_COMMENT]->(n)`

const threadCypher = `MATCH (:Issue {number: $number})-[:HAS_COMMENT]->(n:Comment)
RETURN n ORDER BY n.ordinal`

const resetCypher = `MATCH (n) WHERE n:Issue OR n:Comment DETACH DELETE n`

// GraphStore writes and reads issue threads.
type GraphStore struct {
	issues   *repo.Neo4jRepo[IssueNode, int64]
	comments *repo.Neo4jRepo[CommentNode, string]
}

// New creates a GraphStore on a live driver.
func New(driver neo4j.DriverWithContext) *GraphStore {
	return NewWithSessions(repo.DriverSessions(driver))
}

// NewWithSessions creates a GraphStore over any session source.
func NewWithSessions(sessions repo.SessionFunc) *GraphStore {
	return &GraphStore{
		issues:   newIssueRepo(sessions),
		comments: newCommentRepo(sessions),
	}
}

// SaveThread merges an issue and its comments and links them.
func (g *GraphStore) SaveThread(ctx context.Context, t Thread) error {
	comments := make([]map[string]any, len(t.Comments))
	for i, c := range t.Comments {
		comments[i] = commentToMap(c)
	}
	err := g.issues.Exec(ctx, saveThreadCypher, map[string]any{
		"number":   t.Issue.Number,
		"props":    issueToMap(t.Issue),
		"comments": comments,
	})
	if err != nil {
		return fmt.Errorf("graph: save thread #%d: %w", t.Issue.Number, err)
	}
	return nil
}

// SaveCorpus writes one thread per distinct issue in rows and returns the
// number of threads written. Rows of one issue keep their corpus order.
func (g *GraphStore) SaveCorpus(ctx context.Context, rows []corpus.Row) (int, error) {
	threads := Threads(rows)
	for i, t := range threads {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := g.SaveThread(ctx, t); err != nil {
			return i, err
		}
	}
	return len(threads), nil
}

// Reset removes every Issue and Comment node.
func (g *GraphStore) Reset(ctx context.Context) error {
	if err := g.issues.Exec(ctx, resetCypher, nil); err != nil {
		return fmt.Errorf("graph: reset: %w", err)
	}
	return nil
}

// Issue returns one issue node. A missing issue wraps repo.ErrNotFound.
func (g *GraphStore) Issue(ctx context.Context, number int64) (IssueNode, error) {
	return g.issues.Get(ctx, number)
}

// Issues lists issue nodes ordered by number.
func (g *GraphStore) Issues(ctx context.Context, opts repo.ListOpts) ([]IssueNode, error) {
	return g.issues.List(ctx, opts)
}

// Thread returns an issue with its comments in ordinal order.
func (g *GraphStore) Thread(ctx context.Context, number int64) (Thread, error) {
	issue, err := g.Issue(ctx, number)
	if err != nil {
		return Thread{}, fmt.Errorf("graph: thread #%d: %w", number, err)
	}
	comments, err := g.comments.Query(ctx, threadCypher, map[string]any{"number": number})
	if err != nil {
		return Thread{}, fmt.Errorf("graph: thread #%d: %w", number, err)
	}
	return Thread{Issue: issue, Comments: comments}, nil
}

// Counts returns the number of issue and comment nodes.
func (g *GraphStore) Counts(ctx context.Context) (issues, comments int64, err error) {
	if issues, err = g.issues.Count(ctx); err != nil {
		return 0, 0, fmt.Errorf("graph: counts: %w", err)
	}
	if comments, err = g.comments.Count(ctx); err != nil {
		return 0, 0, fmt.Errorf("graph: counts: %w", err)
	}
	return issues, comments, nil
}

// Threads groups rows by issue number in first-seen order.
func Threads(rows []corpus.Row) []Thread {
	pos := make(map[int]int)
	var out []Thread
	for _, r := range rows {
		i, ok := pos[r.Number]
		if !ok {
			i = len(out)
			pos[r.Number] = i
			out = append(out, Thread{Issue: IssueNode{
				Number: int64(r.Number),
				Title:  r.Title,
				Body:   r.Body,
				URL:    r.URL,
			}})
		}
		t := &out[i]
		ord := int64(len(t.Comments))
		t.Comments = append(t.Comments, CommentNode{
			ID:      CommentID(t.Issue.Number, ord),
			Issue:   t.Issue.Number,
			Ordinal: ord,
			Body:    r.Comment,
			Words:   int64(r.CommentWords),
		})
		t.Issue.Comments = ord + 1
	}
	return out
}
