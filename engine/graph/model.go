// Package graph mirrors the corpus into Neo4j as issue threads:
// (:Issue)-[:HAS_COMMENT]->(:Comment).
package graph

import "fmt"

// IssueNode is one issue that contributed at least one row.
type IssueNode struct {
	Number   int64  `json:"number"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	URL      string `json:"url"`
	Comments int64  `json:"comments"`
}

// CommentNode is one kept comment. Ordinal is its position among the
// issue's kept comments.
type CommentNode struct {
	ID      string `json:"id"`
	Issue   int64  `json:"issue"`
	Ordinal int64  `json:"ordinal"`
	Body    string `json:"body"`
	Words   int64  `json:"words"`
}

// CommentID is the stable id of the ordinal-th kept comment of an issue.
func CommentID(number, ordinal int64) string {
	return fmt.Sprintf("%d/%d", number, ordinal)
}

// Thread is an issue with its kept comments in order.
type Thread struct {
	Issue    IssueNode     `json:"issue"`
	Comments []CommentNode `json:"comments"`
}
