// Package openai provides an embedder backed by an OpenAI-compatible
// embeddings API. It works against api.openai.com as well as self-hosted
// servers that speak the same wire format.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/hupe1980/semdex/embedding"
)

// Compile-time check to ensure Embedder satisfies the embedder interface.
var _ embedding.Embedder = (*Embedder)(nil)

// Options contains configuration options for the OpenAI embedder.
type Options struct {
	// APIBase is the base URL of the embeddings API.
	APIBase string

	// Model is the embedding model to request.
	Model string

	// Dimension is the expected embedding dimensionality. Responses with a
	// different dimensionality are rejected.
	Dimension int

	// RequestDimensions, when true, asks the API to produce Dimension-sized
	// embeddings. Only text-embedding-3 and later models support this.
	RequestDimensions bool

	// MaxBatchSize caps how many inputs go into one API request.
	MaxBatchSize int

	// Timeout applies when no HTTPClient is provided.
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// RateLimiter, when set, throttles API requests.
	RateLimiter *rate.Limiter

	// Headers are extra headers added to every request.
	Headers map[string]string
}

// DefaultOptions contains the default configuration options for the OpenAI
// embedder.
var DefaultOptions = Options{
	APIBase:      "https://api.openai.com/v1",
	Model:        "text-embedding-3-small",
	Dimension:    1536,
	MaxBatchSize: 2048,
	Timeout:      30 * time.Second,
}

// APIError is a non-2xx response from the embeddings API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embeddings api: status %d: %s", e.StatusCode, e.Message)
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingObject struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data []embeddingObject `json:"data"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embedder calls an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	apiKey string
	opts   Options
	client *http.Client
}

// New creates an OpenAI embedder. The API key may be empty for local servers
// that do not authenticate.
func New(apiKey string, optFns ...func(o *Options)) (*Embedder, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("openai: invalid dimension: %d", opts.Dimension)
	}

	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultOptions.MaxBatchSize
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Embedder{
		apiKey: apiKey,
		opts:   opts,
		client: client,
	}, nil
}

// Encode embeds a single text.
func (e *Embedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EncodeBatch embeds multiple texts, preserving input order. Inputs beyond
// MaxBatchSize are split across requests.
func (e *Embedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.opts.MaxBatchSize {
		end := start + e.opts.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.encodeChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}

		out = append(out, vectors...)
	}

	return out, nil
}

func (e *Embedder) encodeChunk(ctx context.Context, texts []string) ([][]float32, error) {
	if e.opts.RateLimiter != nil {
		if err := e.opts.RateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := embeddingRequest{
		Model: e.opts.Model,
		Input: texts,
	}
	if e.opts.RequestDimensions {
		req.Dimensions = e.opts.Dimension
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(e.opts.APIBase, "/") + "/embeddings"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	for k, v := range e.opts.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw)}

		var parsed apiErrorBody
		if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
		}

		return nil, apiErr
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(raw, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(embResp.Data), len(texts))
	}

	// The API is allowed to return entries out of order.
	sort.Slice(embResp.Data, func(i, j int) bool {
		return embResp.Data[i].Index < embResp.Data[j].Index
	})

	vectors := make([][]float32, len(embResp.Data))

	for i, obj := range embResp.Data {
		if len(obj.Embedding) != e.opts.Dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d",
				obj.Index, len(obj.Embedding), e.opts.Dimension)
		}

		vec := make([]float32, len(obj.Embedding))
		for j, v := range obj.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

// Dimension returns the embedding dimensionality.
func (e *Embedder) Dimension() int { return e.opts.Dimension }

// ModelName identifies the configured model.
func (e *Embedder) ModelName() string { return e.opts.Model }
