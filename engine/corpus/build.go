package corpus

import (
	"context"
	"fmt"
	"strings"

	"github.com/WessleyAI/issuesim/engine/tracker"
	"github.com/WessleyAI/issuesim/pkg/fn"
)

// thread is an issue with its resolved comments attached.
type thread struct {
	issue    tracker.Issue
	comments []string
}

// Build filters and explodes issues into rows:
//
//  1. pull requests are dropped;
//  2. comments are resolved for the remaining issues, and issues without
//     comments are dropped;
//  3. each comment becomes its own row;
//  4. rows whose comment has MinCommentWords words or fewer are dropped;
//  5. Text is set to title, body, and comment joined by Separator.
//
// Rows keep issue order, then comment order. Resolver errors are fatal.
func Build(ctx context.Context, issues []tracker.Issue, r CommentResolver, opts Options) ([]Row, error) {
	rows, _, err := BuildWithStats(ctx, issues, r, opts)
	return rows, err
}

// BuildWithStats is Build plus per-step counts.
func BuildWithStats(ctx context.Context, issues []tracker.Issue, r CommentResolver, opts Options) ([]Row, Stats, error) {
	st := Stats{Issues: len(issues)}

	genuine := fn.Filter(issues, func(is tracker.Issue) bool { return !is.IsPullRequest() })
	st.PullRequests = len(issues) - len(genuine)

	threads, err := attachComments(ctx, genuine, r)
	if err != nil {
		return nil, st, err
	}
	commented := fn.Filter(threads, func(t thread) bool { return len(t.comments) > 0 })
	st.Uncommented = len(threads) - len(commented)

	exploded := fn.FlatMap(commented, explode)
	st.Comments = len(exploded)

	counted := fn.Map(exploded, withWordCount)
	kept := fn.Filter(counted, func(row Row) bool { return row.CommentWords > opts.MinCommentWords })
	st.ShortComments = len(counted) - len(kept)

	rows := fn.Map(kept, withText)
	st.Rows = len(rows)
	return rows, st, nil
}

func attachComments(ctx context.Context, issues []tracker.Issue, r CommentResolver) ([]thread, error) {
	out := make([]thread, 0, len(issues))
	for _, is := range issues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		comments, err := r.Resolve(ctx, is.Number)
		if err != nil {
			return nil, fmt.Errorf("corpus: resolve comments for #%d: %w", is.Number, err)
		}
		out = append(out, thread{issue: is, comments: comments})
	}
	return out, nil
}

func explode(t thread) []Row {
	rows := make([]Row, len(t.comments))
	for i, c := range t.comments {
		rows[i] = Row{
			Number:  t.issue.Number,
			Title:   t.issue.TitleText(),
			Body:    t.issue.BodyText(),
			URL:     t.issue.HTMLURL,
			Comment: c,
		}
	}
	return rows
}

func withWordCount(r Row) Row {
	r.CommentWords = WordCount(r.Comment)
	return r
}

func withText(r Row) Row {
	r.Text = Concat(r.Title, r.Body, r.Comment)
	return r
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Concat builds the text that is embedded for a row.
func Concat(title, body, comment string) string {
	return title + Separator + body + Separator + comment
}
