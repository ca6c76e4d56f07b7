// Package corpus turns fetched issues and their comment threads into flat,
// retrievable text rows.
package corpus

import "context"

// DefaultMinCommentWords is the word count a comment must exceed to be kept.
const DefaultMinCommentWords = 15

// Separator joins title, body, and comment in Row.Text.
const Separator = " \n "

// CommentResolver returns the comment bodies of one issue in tracker order.
type CommentResolver interface {
	Resolve(ctx context.Context, number int) ([]string, error)
}

// ResolverFunc adapts a function to CommentResolver.
type ResolverFunc func(ctx context.Context, number int) ([]string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, number int) ([]string, error) {
	return f(ctx, number)
}

// Row is one comment together with its parent issue. Number is not unique
// across rows: an issue with N kept comments yields N rows.
type Row struct {
	Number       int    `json:"number" msgpack:"number"`
	Title        string `json:"title" msgpack:"title"`
	Body         string `json:"body" msgpack:"body"`
	URL          string `json:"url" msgpack:"url"`
	Comment      string `json:"comment" msgpack:"comment"`
	CommentWords int    `json:"comment_words" msgpack:"comment_words"`
	Text         string `json:"text" msgpack:"text"`
}

// Options configures Build.
type Options struct {
	// MinCommentWords drops rows whose comment has this many words or fewer.
	MinCommentWords int
}

// DefaultOptions returns the standard filter settings.
func DefaultOptions() Options {
	return Options{MinCommentWords: DefaultMinCommentWords}
}

// Stats counts what each filter step removed.
type Stats struct {
	Issues        int `json:"issues"`
	PullRequests  int `json:"pull_requests"`
	Uncommented   int `json:"uncommented"`
	Comments      int `json:"comments"`
	ShortComments int `json:"short_comments"`
	Rows          int `json:"rows"`
}
