package domain

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"
)

const minQueryLength = 3

// ValidateRepository checks that a repository can be read. An empty method
// is treated as GET.
func ValidateRepository(r Repository) error {
	if m := r.Method; m != "" && !strings.EqualFold(m, http.MethodGet) {
		return NewValidationError("method", m, ErrUnsupportedMethod)
	}
	if strings.TrimSpace(r.Owner) == "" {
		return NewValidationError("owner", r.Owner, ErrMissingRepository)
	}
	if strings.TrimSpace(r.Repo) == "" {
		return NewValidationError("repo", r.Repo, ErrMissingRepository)
	}
	if strings.TrimSpace(r.BaseURL) == "" {
		return NewValidationError("base_url", r.BaseURL, ErrInvalidConfig)
	}
	return nil
}

// ValidateQuery validates a similarity query.
func ValidateQuery(q Query) error {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return NewValidationError("text", q.Text, ErrInvalidQuery)
	}
	if utf8.RuneCountInString(text) < minQueryLength {
		return NewValidationError("text", text, ErrQueryTooShort)
	}
	if q.TopK < 0 {
		return NewValidationError("top_k", strconv.Itoa(q.TopK), ErrInvalidConfig)
	}
	return nil
}

// Positive returns a ValidationError when n <= 0.
func Positive(field string, n int) error {
	if n <= 0 {
		return NewValidationError(field, strconv.Itoa(n), ErrInvalidConfig)
	}
	return nil
}
