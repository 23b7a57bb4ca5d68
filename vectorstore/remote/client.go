// Package remote implements the vector store contract against a managed
// vector index service over HTTP. Every failure is surfaced as a typed
// backend error so the failover composite can tell which side broke.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/semsearch/vectorstore"
)

const (
	backendName = "remote"

	defaultTimeout = 30 * time.Second
	healthTimeout  = 2 * time.Second
)

// Client talks to a remote vector index over its JSON API.
type Client struct {
	endpoint string
	index    string
	http     *http.Client
	logger   *slog.Logger
}

var _ vectorstore.Store = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout for query/upsert/stats calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a client for one named index on the service at
// endpoint.
func NewClient(endpoint, index string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("remote vector store endpoint is required")
	}
	if strings.TrimSpace(index) == "" {
		return nil, fmt.Errorf("remote vector store index name is required")
	}

	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		index:    index,
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   slog.Default().With("component", "vector-remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type wireRecord struct {
	Id        string            `json:"id"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type wireMatch struct {
	Id       string            `json:"id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type queryRequest struct {
	Embedding []float32 `json:"embedding"`
	TopK      int       `json:"top_k"`
}

type queryResponse struct {
	Matches []wireMatch `json:"matches"`
}

type upsertRequest struct {
	Records []wireRecord `json:"records"`
}

type statsResponse struct {
	Dimension   int   `json:"dimension"`
	ApproxCount int64 `json:"approx_count"`
}

// Query runs the embedding against the remote index. Matches come back
// in the service's ranking order with its native score scale.
func (c *Client) Query(ctx context.Context, embedding []float32, topK int) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	var resp queryResponse
	url := fmt.Sprintf("%s/v1/indexes/%s/query", c.endpoint, c.index)
	if err := c.postJSON(ctx, url, queryRequest{Embedding: embedding, TopK: topK}, &resp); err != nil {
		return nil, &vectorstore.BackendError{Backend: backendName, Op: "query", Err: err}
	}

	matches := make([]vectorstore.Match, len(resp.Matches))
	for i, m := range resp.Matches {
		matches[i] = vectorstore.Match{
			Id:       m.Id,
			Score:    m.Score,
			Metadata: m.Metadata,
		}
	}
	return matches, nil
}

// Upsert writes records by id.
func (c *Client) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	wire := make([]wireRecord, len(records))
	for i, r := range records {
		wire[i] = wireRecord{Id: r.Id, Embedding: r.Embedding, Metadata: r.Metadata}
	}

	url := fmt.Sprintf("%s/v1/indexes/%s/upsert", c.endpoint, c.index)
	if err := c.postJSON(ctx, url, upsertRequest{Records: wire}, nil); err != nil {
		return &vectorstore.BackendError{Backend: backendName, Op: "upsert", Err: err}
	}
	return nil
}

// Info reports the remote index's dimension and approximate size.
func (c *Client) Info(ctx context.Context) (vectorstore.Info, error) {
	var resp statsResponse
	url := fmt.Sprintf("%s/v1/indexes/%s/stats", c.endpoint, c.index)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return vectorstore.Info{}, &vectorstore.BackendError{Backend: backendName, Op: "stats", Err: err}
	}
	return vectorstore.Info{
		Backend:     backendName,
		Dimension:   resp.Dimension,
		ApproxCount: resp.ApproxCount,
	}, nil
}

// IsHealthy probes the service's health endpoint with a short deadline.
// Any failure reads as unhealthy.
func (c *Client) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("vector store health probe failed", "err", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) postJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError reads a bounded excerpt of the response body so error logs
// carry the service's complaint without unbounded payloads.
func statusError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(excerpt))
	if msg == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
}
