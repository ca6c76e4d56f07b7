// Package domain defines the shared request types, sentinel errors, and
// validation used at the entry points of the issuesim pipeline.
package domain

import "net/http"

// Repository identifies a tracker repository and how it is read.
type Repository struct {
	BaseURL string `json:"base_url"`
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	// Method must be GET; anything else is rejected before any request.
	Method string `json:"method,omitempty"`
}

// Slug returns "owner/repo".
func (r Repository) Slug() string { return r.Owner + "/" + r.Repo }

// Query is a free-text similarity query.
type Query struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}

// DefaultMethod is the only supported retrieval method.
const DefaultMethod = http.MethodGet
