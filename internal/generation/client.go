package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/docsmith-platform/docsmith/internal/config"
)

// NetworkError is a transport-level failure talking to the generator:
// connection refused, timeout, broken pipe. Transient by nature; recorded
// per-job, never fatal to a batch.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("generator unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response from the generator, carrying the
// upstream's message.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generator returned status %d", e.Status)
	}
	return fmt.Sprintf("generator returned status %d: %s", e.Status, e.Message)
}

// Client calls the upstream AI documentation generator over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.GeneratorConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate submits one file's code and returns the generated documentation
// with its quality score. The context bounds the single call; the client's
// timeout applies regardless.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var upstream struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, &upstream)
		return nil, &ServerError{Status: resp.StatusCode, Message: upstream.Message}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}
	return &result, nil
}
