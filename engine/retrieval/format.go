package retrieval

import (
	"fmt"
	"strings"
)

const rule = "=========================================================="

// Format renders results in rank order for terminal output.
func Format(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Score: %.4f\n", r.Score)
		fmt.Fprintf(&b, "Title: %s\n", r.Title)
		fmt.Fprintf(&b, "URL: %s\n", r.URL)
		fmt.Fprintf(&b, "Comment: %s\n", r.Comment)
		b.WriteString(rule + "\n\n")
	}
	return b.String()
}
