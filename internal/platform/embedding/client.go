package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Code4me2/data-compose/internal/pkg/httpx"
	"github.com/Code4me2/data-compose/internal/platform/ctxutil"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

// Client turns document text into dense vectors via an OpenAI-compatible
// embeddings endpoint.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Model() string
}

type httpClient struct {
	log        *logger.Logger
	cfg        Config
	baseURL    string
	http       *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	c := &httpClient{
		log:     log.With("service", "EmbeddingClient"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxRetries: 2,
	}

	log.Info(
		"Embedding client configured",
		"url", c.baseURL,
		"model", cfg.Model,
		"dims", cfg.Dims,
	)
	return c, nil
}

func (c *httpClient) Model() string {
	return c.cfg.Model
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *httpClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	// The model rejects empty strings; a single space embeds to a valid
	// (if meaningless) vector, which keeps batch indices aligned.
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	var resp embedResponse
	if err := c.do(ctx, embedRequest{Model: c.cfg.Model, Input: clean}, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}

	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf(
				"embeddings response missing index %d: requested=%d returned=%d model=%s",
				i, len(clean), len(resp.Data), c.cfg.Model,
			)
		}
		if c.cfg.Dims > 0 && len(vec) != c.cfg.Dims {
			return nil, fmt.Errorf(
				"embedding dimension mismatch at index %d: got=%d want=%d model=%s",
				i, len(vec), c.cfg.Dims, c.cfg.Model,
			)
		}
	}
	return out, nil
}

func (c *httpClient) do(ctx context.Context, in embedRequest, out *embedResponse) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode embeddings request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := httpx.JitterSleep(time.Duration(attempt) * 200 * time.Millisecond)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.doOnce(ctx, payload, out)
		if lastErr == nil {
			return nil
		}
		if !httpx.IsRetryableError(lastErr) {
			return lastErr
		}
		c.log.Warn(
			"Embeddings request failed; retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"error", lastErr,
		)
	}
	return lastErr
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("embeddings endpoint returned status=%d body=%q", e.status, e.body)
}

func (e *httpStatusError) HTTPStatusCode() int {
	return e.status
}

func (c *httpClient) doOnce(ctx context.Context, payload []byte, out *embedResponse) error {
	req, err := http.NewRequestWithContext(
		ctxutil.Default(ctx),
		http.MethodPost,
		c.baseURL+"/v1/embeddings",
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read embeddings response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(raw)
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		return &httpStatusError{status: resp.StatusCode, body: body}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode embeddings response: %w", err)
	}
	return nil
}
