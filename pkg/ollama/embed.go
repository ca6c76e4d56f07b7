// Package ollama provides an Ollama-backed embed.Encoder.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/issuesim/engine/embed"
)

// EmbedClient implements embed.Encoder using Ollama's /api/embed endpoint.
// The server pools token states itself, so vectors come back ready to use.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
	device  embed.Device
}

// Option configures an EmbedClient.
type Option func(*EmbedClient)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *EmbedClient) { e.client = c }
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string, opts ...Option) *EmbedClient {
	c := &EmbedClient{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		device: embed.DeviceAuto,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the model name sent with every request.
func (c *EmbedClient) Model() string { return c.model }

// UseDevice implements embed.DeviceAware. DeviceCPU disables GPU offload
// for this client's requests.
func (c *EmbedClient) UseDevice(d embed.Device) { c.device = d }

type embedReq struct {
	Model    string         `json:"model"`
	Input    []string       `json:"input"`
	Truncate bool           `json:"truncate"`
	Options  map[string]any `json:"options,omitempty"`
}

type embedResp struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Encode implements embed.Encoder with one request per batch.
func (c *EmbedClient) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	in := embedReq{Model: c.model, Input: texts, Truncate: true}
	if c.device == embed.DeviceCPU {
		in.Options = map[string]any{"num_gpu": 0}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		v := make([]float32, len(e))
		for j, x := range e {
			v[j] = float32(x)
		}
		out[i] = v
	}
	return out, nil
}
