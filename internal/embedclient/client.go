// Package embedclient is a batched HTTP client for the embedding model
// server, which exposes /embed, /sparse-embed and /late-interaction-embed.
// It owns only the transport and batching economics; the model itself is an
// external collaborator.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/resilience"
)

// ModelDescriptor describes one named model the server exposes.
type ModelDescriptor struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	LatencyTag  string `json:"latencyTag"`
}

// ModelCatalog groups descriptors by capability, mirroring the
// /utility/encoding-models response shape.
type ModelCatalog struct {
	DenseModels    []ModelDescriptor `json:"denseModels"`
	SparseModels   []ModelDescriptor `json:"sparseModels"`
	RerankerModels []ModelDescriptor `json:"rerankerModels"`
}

// Client is a batching HTTP client over the embedding model server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	catalog    ModelCatalog
	breaker    *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }
func WithCatalog(cat ModelCatalog) Option  { return func(c *Client) { c.catalog = cat } }
func WithLogger(l *slog.Logger) Option     { return func(c *Client) { c.log = l } }

// New builds a Client against baseURL (the embedding model server).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        slog.Default(),
		breaker:    resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListModels returns the configured model catalog.
func (c *Client) ListModels() ModelCatalog { return c.catalog }

type denseRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type denseResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type sparseResponse struct {
	Embeddings []domain.SparseVector `json:"embeddings"`
}

type lateInteractionResponse struct {
	Embeddings [][][]float32 `json:"embeddings"`
}

// EncodeDense embeds texts with the dense model, batching internally.
func (c *Client) EncodeDense(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for _, b := range planBatches(texts) {
		resp, err := c.dispatchBatch(ctx, "/embed", model, b)
		if err != nil {
			return nil, err
		}
		var parsed denseResponse
		if err := json.Unmarshal(resp, &parsed); err != nil {
			return nil, fmt.Errorf("decode dense embed response: %w", err)
		}
		if len(parsed.Embeddings) != len(b.items) {
			return nil, fmt.Errorf("embed server returned %d vectors for %d inputs", len(parsed.Embeddings), len(b.items))
		}
		for i, it := range b.items {
			out[it.index] = parsed.Embeddings[i]
		}
	}
	return out, nil
}

// EncodeSparse embeds texts with the sparse model, batching internally.
func (c *Client) EncodeSparse(ctx context.Context, texts []string, model string) ([]domain.SparseVector, error) {
	out := make([]domain.SparseVector, len(texts))
	for _, b := range planBatches(texts) {
		resp, err := c.dispatchBatch(ctx, "/sparse-embed", model, b)
		if err != nil {
			return nil, err
		}
		var parsed sparseResponse
		if err := json.Unmarshal(resp, &parsed); err != nil {
			return nil, fmt.Errorf("decode sparse embed response: %w", err)
		}
		if len(parsed.Embeddings) != len(b.items) {
			return nil, fmt.Errorf("embed server returned %d vectors for %d inputs", len(parsed.Embeddings), len(b.items))
		}
		for i, it := range b.items {
			out[it.index] = parsed.Embeddings[i]
		}
	}
	return out, nil
}

// EncodeLateInteraction embeds texts as per-token matrices with the reranker model.
func (c *Client) EncodeLateInteraction(ctx context.Context, texts []string, model string) ([][][]float32, error) {
	out := make([][][]float32, len(texts))
	for _, b := range planBatches(texts) {
		resp, err := c.dispatchBatch(ctx, "/late-interaction-embed", model, b)
		if err != nil {
			return nil, err
		}
		var parsed lateInteractionResponse
		if err := json.Unmarshal(resp, &parsed); err != nil {
			return nil, fmt.Errorf("decode late-interaction embed response: %w", err)
		}
		if len(parsed.Embeddings) != len(b.items) {
			return nil, fmt.Errorf("embed server returned %d matrices for %d inputs", len(parsed.Embeddings), len(b.items))
		}
		for i, it := range b.items {
			out[it.index] = parsed.Embeddings[i]
		}
	}
	return out, nil
}

// dispatchBatch sends one batch with a sticky routing key and linear-backoff
// retries. Per-batch failure after retries is fatal: partial embeddings are
// never returned to the caller.
func (c *Client) dispatchBatch(ctx context.Context, path, model string, b batch) ([]byte, error) {
	texts := make([]string, len(b.items))
	for i, it := range b.items {
		texts[i] = it.text
	}
	payload, err := json.Marshal(denseRequest{Model: model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}
	routingKey := fmt.Sprintf("%s:%s", model, uuid.New().String())

	const maxRetries = 5
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		var body []byte
		var retryable bool
		callErr := c.breaker.Call(ctx, func(ctx context.Context) error {
			var doErr error
			body, retryable, doErr = c.doOnce(ctx, path, routingKey, payload)
			return doErr
		})
		if callErr == nil {
			return body, nil
		}
		lastErr = callErr
		if errors.Is(callErr, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("embed batch %s (model=%s, size=%d): %w", path, model, len(b.items), callErr)
		}
		if !retryable {
			return nil, fmt.Errorf("embed batch %s (model=%s, size=%d): %w", path, model, len(b.items), callErr)
		}
		c.log.Warn("embed batch retrying", "path", path, "attempt", attempt, "error", callErr)
	}
	return nil, fmt.Errorf("embed batch %s (model=%s, size=%d) failed after %d retries: %w", path, model, len(b.items), maxRetries, lastErr)
}

// doOnce performs a single HTTP attempt. retryable distinguishes 5xx/
// connection-reset failures (retried with linear backoff) from 4xx failures
// (fatal immediately).
func (c *Client) doOnce(ctx context.Context, path, routingKey string, payload []byte) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Routing-Key", routingKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err // connection reset / transport error
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, true, readErr
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("embed server 5xx: status=%d body=%s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("embed server error status=%d: %s", resp.StatusCode, string(body))
	}
	return body, false, nil
}
