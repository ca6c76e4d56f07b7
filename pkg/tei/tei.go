// Package tei talks to a text-embeddings-inference server and exposes its
// per-token output as an embed.TokenEncoder.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client calls POST /embed_all, which returns the last hidden state of every
// token. Pair it with embed.Pooled to get one vector per text.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Client) { t.client = c }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embedAllReq struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

type errorResp struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// EncodeTokens implements embed.TokenEncoder. The result is indexed
// [text][token][dim]; token 0 is the classification token.
func (c *Client) EncodeTokens(ctx context.Context, texts []string) ([][][]float32, error) {
	body, err := json.Marshal(embedAllReq{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("tei: embed_all: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed_all", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei: embed_all: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var e errorResp
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("tei: embed_all: status %d: %s: %s", resp.StatusCode, e.ErrorType, e.Error)
		}
		return nil, fmt.Errorf("tei: embed_all: status %d", resp.StatusCode)
	}

	var hidden [][][]float32
	if err := json.NewDecoder(resp.Body).Decode(&hidden); err != nil {
		return nil, fmt.Errorf("tei: embed_all decode: %w", err)
	}
	if len(hidden) != len(texts) {
		return nil, fmt.Errorf("tei: embed_all: got %d outputs for %d inputs", len(hidden), len(texts))
	}
	return hidden, nil
}
