// Package tracker reads issues and their comment threads from a
// GitHub-style issue tracker REST API.
package tracker

import (
	"encoding/json"
	"time"

	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/pkg/resilience"
)

// Issue is one record from the issues endpoint. Title and Body are nil when
// the API returns null.
type Issue struct {
	Number      int             `json:"number"`
	Title       *string         `json:"title"`
	Body        *string         `json:"body"`
	URL         string          `json:"url"`
	HTMLURL     string          `json:"html_url"`
	State       string          `json:"state"`
	Comments    int             `json:"comments"`
	PullRequest *PullRequestRef `json:"pull_request,omitempty"`

	// Raw is the full source object as returned by the API.
	Raw json.RawMessage `json:"-"`
}

// PullRequestRef is the marker the API attaches to pull requests listed on
// the issues endpoint.
type PullRequestRef struct {
	URL     string `json:"url,omitempty"`
	HTMLURL string `json:"html_url,omitempty"`
}

// UnmarshalJSON decodes the consumed fields and keeps the raw object.
func (i *Issue) UnmarshalJSON(data []byte) error {
	type plain Issue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Issue(p)
	i.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// IsPullRequest reports whether the pull-request marker is present.
func (i Issue) IsPullRequest() bool { return i.PullRequest != nil }

// TitleText returns the title, or "" when null.
func (i Issue) TitleText() string { return deref(i.Title) }

// BodyText returns the body, or "" when null.
func (i Issue) BodyText() string { return deref(i.Body) }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Config controls what is fetched and how fast.
type Config struct {
	Repository domain.Repository
	// PerPage is the page size requested from the API.
	PerPage int
	// TotalIssues is how many issues to page through.
	TotalIssues int
	// Window is the page quota and cooldown.
	Window resilience.WindowOpts
	// RequestsPerSecond paces individual requests; 0 disables pacing.
	RequestsPerSecond float64
	// Token is sent as a bearer token when set.
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// FetchStats summarises a FetchIssues run.
type FetchStats struct {
	Pages     int
	Issues    int
	Cooldowns int
}

type commentPayload struct {
	Body string `json:"body"`
}
