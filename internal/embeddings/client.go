package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/augmentd/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// client talks to the embedding inference server. The server exposes
// distinct single and batch endpoints; the batch endpoint returns one
// vector per input in input order.
type client struct {
	baseURL   string
	model     string
	apiKey    string
	keepAlive time.Duration
	http      *http.Client
}

// embedRequest is the single-text request body.
type embedRequest struct {
	Model     string `json:"model"`
	Input     string `json:"input"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// embedBatchRequest is the batch request body.
type embedBatchRequest struct {
	Model     string   `json:"model"`
	Inputs    []string `json:"inputs"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type embedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func newClient(cfg config.EmbeddingConfig) *client {
	return &client{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		apiKey:    cfg.APIKey.Value(),
		keepAlive: cfg.KeepAlive.Duration(),
		http:      &http.Client{},
	}
}

func (c *client) keepAliveHint() string {
	if c.keepAlive <= 0 {
		return ""
	}
	return c.keepAlive.String()
}

// embedOne requests a vector for a single text.
func (c *client) embedOne(ctx context.Context, text string, timeout time.Duration) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	body := embedRequest{Model: c.model, Input: text, KeepAlive: c.keepAliveHint()}

	var resp embedResponse
	if err := c.post(ctx, "/embed", body, &resp, timeout); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbeddingFailed)
	}
	return resp.Embedding, nil
}

// embedMany requests vectors for a batch of texts in one call. The response
// must contain exactly one vector per input, in input order.
func (c *client) embedMany(ctx context.Context, texts []string, timeout time.Duration) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	body := embedBatchRequest{Model: c.model, Inputs: texts, KeepAlive: c.keepAliveHint()}

	var resp embedBatchResponse
	if err := c.post(ctx, "/embed/batch", body, &resp, timeout); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrEmbeddingFailed, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// health probes the server's health endpoint.
func (c *client) health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrEmbeddingFailed, resp.StatusCode)
	}
	return nil
}

func (c *client) post(ctx context.Context, path string, reqBody, respBody interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		// Malformed bodies are handled identically to transport failures.
		return fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	return nil
}

func (c *client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
