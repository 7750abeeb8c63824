// Package vector is the adapter for the hosted Upstash Vector index.
// The index embeds raw text server-side, so this package only selects
// credentials, marshals parameters and surfaces errors. It has no retry layer.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/apperr"
	"github.com/twinlab/digital-twin/internal/config"
	"github.com/twinlab/digital-twin/internal/logging"
	"github.com/twinlab/digital-twin/internal/metrics"
)

const (
	DefaultTopK     = 5
	MaxTopK         = 100
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 512
)

// Client talks to one Upstash Vector index with either the read-only or
// the read-write token. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	mode       Mode
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient selects the credential matching mode. It fails with a
// configuration error, before any network call, when the URL or that
// token is missing.
func NewClient(cfg *config.Config, mode Mode, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, apperr.New(apperr.KindConfiguration, "vector.new", "config is required")
	}

	token, tokenName := cfg.VectorReadOnlyToken, config.EnvVectorReadOnlyToken
	if mode == ReadWrite {
		token, tokenName = cfg.VectorToken, config.EnvVectorToken
	}

	var missing []string
	if strings.TrimSpace(cfg.VectorURL) == "" {
		missing = append(missing, config.EnvVectorURL)
	}
	if strings.TrimSpace(token) == "" {
		missing = append(missing, tokenName)
	}
	if len(missing) > 0 {
		return nil, apperr.Missing("vector.new", missing)
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.VectorURL, "/"),
		token:      token,
		mode:       mode,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("vector client initialized", zap.Stringer("mode", mode))
	return c, nil
}

// Mode reports the credential mode of the client.
func (c *Client) Mode() Mode {
	return c.mode
}

func (c *Client) requireWrite(op string) error {
	if c.mode != ReadWrite {
		return apperr.Newf(apperr.KindPermission, op, "cannot %s in read-only mode, create the client with vector.ReadWrite", strings.TrimPrefix(op, "vector."))
	}
	return nil
}

type upsertItem struct {
	ID       string   `json:"id"`
	Data     string   `json:"data"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Upsert stores chunks; the service embeds Text. An empty slice is a no-op.
func (c *Client) Upsert(ctx context.Context, chunks []Chunk) error {
	const op = "vector.upsert"
	if err := c.requireWrite(op); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	items := make([]upsertItem, 0, len(chunks))
	for _, ch := range chunks {
		if strings.TrimSpace(ch.ID) == "" {
			return apperr.New(apperr.KindInvalidArgument, op, "chunk id cannot be empty")
		}
		items = append(items, upsertItem{ID: ch.ID, Data: ch.Text, Metadata: ch.Metadata})
	}

	if err := c.do(ctx, op, http.MethodPost, "/upsert-data", items, nil); err != nil {
		return err
	}
	c.logger.Info("upserted chunks", zap.Int("count", len(items)))
	return nil
}

type queryBody struct {
	Data            string `json:"data"`
	TopK            int    `json:"topK"`
	IncludeMetadata bool   `json:"includeMetadata"`
	IncludeVectors  bool   `json:"includeVectors"`
	Filter          string `json:"filter,omitempty"`
}

// Query returns matches in the order produced by the service. No matches is
// a valid, empty result.
func (c *Client) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	const op = "vector.query"
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, op, "query cannot be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		return nil, apperr.Newf(apperr.KindInvalidArgument, op, "topK must be between 1 and %d", MaxTopK)
	}

	body := queryBody{
		Data:            req.Text,
		TopK:            topK,
		IncludeMetadata: req.IncludeMetadata,
		IncludeVectors:  req.IncludeVectors,
		Filter:          req.Filter,
	}

	var matches []Match
	if err := c.do(ctx, op, http.MethodPost, "/query-data", body, &matches); err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []Match{}
	}

	c.logger.Debug("vector query completed",
		zap.String("query", logging.Preview(req.Text, 50)),
		zap.Int("top_k", topK),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

// Info returns index statistics. Allowed in both modes.
func (c *Client) Info(ctx context.Context) (*IndexInfo, error) {
	var info IndexInfo
	if err := c.do(ctx, "vector.info", http.MethodGet, "/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Delete removes vectors by ID and returns how many the service deleted.
func (c *Client) Delete(ctx context.Context, ids []string) (int, error) {
	const op = "vector.delete"
	if err := c.requireWrite(op); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var res struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, op, http.MethodDelete, "/delete", ids, &res); err != nil {
		return 0, err
	}
	c.logger.Info("deleted vectors", zap.Int("requested", len(ids)), zap.Int("deleted", res.Deleted))
	return res.Deleted, nil
}

// Reset deletes every vector in the index.
func (c *Client) Reset(ctx context.Context) error {
	const op = "vector.reset"
	if err := c.requireWrite(op); err != nil {
		return err
	}
	if err := c.do(ctx, op, http.MethodDelete, "/reset", nil, nil); err != nil {
		return err
	}
	c.logger.Warn("index reset, all vectors deleted")
	return nil
}

// envelope is the Upstash REST response wrapper.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Status int             `json:"status"`
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveVectorCall(strings.TrimPrefix(op, "vector."), start, err)
		if err != nil {
			c.logger.Error("vector call failed", zap.String("op", op), zap.Duration("duration", time.Since(start)), zap.Error(err))
		}
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidArgument, op, "failed to marshal request", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(apperr.KindRemoteCallFailed, op, "failed to create request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperr.Wrap(apperr.KindRemoteCallFailed, op, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindRemoteCallFailed, op, "failed to read response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = truncate(strings.TrimSpace(string(raw)), maxErrorBodyLen)
		}
		e := apperr.Newf(apperr.KindRemoteCallFailed, op, "upstash returned status %d: %s", resp.StatusCode, msg)
		e.Status = resp.StatusCode
		return e
	}
	if decodeErr != nil {
		return apperr.Wrap(apperr.KindRemoteCallFailed, op, "failed to decode response", decodeErr)
	}
	if env.Error != "" {
		return apperr.Newf(apperr.KindRemoteCallFailed, op, "upstash error: %s", env.Error)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return apperr.Wrap(apperr.KindRemoteCallFailed, op, "failed to decode result", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
