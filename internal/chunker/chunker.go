package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ragforge/ragcore/internal/domain"
)

// largeInputThreshold is the input size past which semantic chunking
// downgrades to recursive fixed-size chunking for latency.
const largeInputThreshold = 10_000

// customChunkTimeout bounds calls to a collection's custom chunking endpoint.
const customChunkTimeout = 60 * time.Second

// Params configures one chunking call.
type Params struct {
	MinChunkSize int
	MaxChunkSize int
	Overlap      int
	DenseModel   string
	Strategy     domain.ChunkingStrategy
	ChunkingURL  string
}

// ChunkPiece is one chunk produced by the chunker, before ids are assigned.
type ChunkPiece struct {
	Text         string
	VectorSource string
	Metadata     map[string]any
}

// Chunker splits resource text into retrieval-sized pieces.
type Chunker struct {
	dense      DenseEncoder
	httpClient *http.Client
}

func New(dense DenseEncoder) *Chunker {
	return &Chunker{dense: dense, httpClient: &http.Client{Timeout: customChunkTimeout}}
}

// Chunk splits text according to params.Strategy, downgrading semantic to
// recursive for inputs over largeInputThreshold characters.
func (c *Chunker) Chunk(ctx context.Context, text string, p Params) ([]ChunkPiece, error) {
	if p.MaxChunkSize <= 0 {
		p.MaxChunkSize = 512
	}
	if p.MinChunkSize <= 0 {
		p.MinChunkSize = p.MaxChunkSize / 4
	}

	strategy := p.Strategy
	if strategy == domain.StrategySemantic && len(text) > largeInputThreshold {
		strategy = domain.StrategyRecursive
	}

	switch strategy {
	case domain.StrategyCustom:
		return c.customChunk(ctx, text, p)
	case domain.StrategySemantic:
		sentences := splitSentences(text, p.MaxChunkSize)
		texts, err := semanticChunk(ctx, c.dense, p.DenseModel, sentences, p.MinChunkSize, p.MaxChunkSize)
		if err != nil {
			return nil, err
		}
		return toPieces(texts), nil
	case domain.StrategyAgentic:
		// No distinct algorithm is specified for agentic chunking; it falls
		// back to the same fixed-size recursive split as the default case.
		fallthrough
	default:
		sentences := splitSentences(text, p.MaxChunkSize)
		texts := recursiveChunk(sentences, p.MaxChunkSize, p.Overlap)
		return toPieces(texts), nil
	}
}

func toPieces(texts []string) []ChunkPiece {
	out := make([]ChunkPiece, len(texts))
	for i, t := range texts {
		out[i] = ChunkPiece{Text: t}
	}
	return out
}

type customChunkResponseItem struct {
	Text         string         `json:"text"`
	VectorSource string         `json:"vectorSource,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type customChunkResponse struct {
	Chunks []customChunkResponseItem `json:"chunks"`
}

// customChunk delegates chunking to the collection's configured endpoint.
func (c *Chunker) customChunk(ctx context.Context, text string, p Params) ([]ChunkPiece, error) {
	if p.ChunkingURL == "" {
		return nil, fmt.Errorf("%w: custom strategy requires chunkingUrl", domain.ErrInvalidCollection)
	}
	ctx, cancel := context.WithTimeout(ctx, customChunkTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{"text": text, "minChunkSize": p.MinChunkSize, "maxChunkSize": p.MaxChunkSize})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ChunkingURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: custom chunking endpoint: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: custom chunking endpoint status=%d", domain.ErrBackendUnavailable, resp.StatusCode)
	}

	var parsed customChunkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode custom chunking response: %w", err)
	}

	out := make([]ChunkPiece, len(parsed.Chunks))
	for i, item := range parsed.Chunks {
		out[i] = ChunkPiece{Text: item.Text, VectorSource: item.VectorSource, Metadata: item.Metadata}
	}
	return out, nil
}

// HealthCheck probes a custom chunking endpoint with a GET and reports
// ErrChunkingURLUnhealthy on a transport error or a 4xx/5xx status. The
// collection-create handler does not call it: creation only checks that
// strategy=custom carries a non-empty chunkingUrl.
func (c *Chunker) HealthCheck(ctx context.Context, chunkingURL string) error {
	ctx, cancel := context.WithTimeout(ctx, customChunkTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunkingURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChunkingURLUnhealthy, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status=%d", domain.ErrChunkingURLUnhealthy, resp.StatusCode)
	}
	return nil
}
