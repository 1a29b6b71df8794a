package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/docsmith-platform/docsmith/internal/config"
)

// Ref identifies a file in an external source provider.
type Ref struct {
	Provider string `json:"provider" validate:"required,oneof=github gitlab bitbucket"`
	RepoRef  string `json:"repo_ref" validate:"required"`
	Path     string `json:"path" validate:"required"`
	Revision string `json:"revision,omitempty"`
}

func (r Ref) String() string {
	if r.Revision != "" {
		return fmt.Sprintf("%s:%s@%s/%s", r.Provider, r.RepoRef, r.Revision, r.Path)
	}
	return fmt.Sprintf("%s:%s/%s", r.Provider, r.RepoRef, r.Path)
}

// FetchError is a per-file fetch failure. It never escapes the reload stage;
// the affected job is simply left without content.
type FetchError struct {
	Ref Ref
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves raw file content from an external source service.
type Fetcher interface {
	Fetch(ctx context.Context, ref Ref) (string, error)
}

type httpFetcher struct {
	baseURL string
	http    *http.Client
}

// NewFetcher creates an HTTP-backed Fetcher against the configured raw-content
// endpoint.
func NewFetcher(cfg config.SourceConfig) Fetcher {
	return &httpFetcher{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, ref Ref) (string, error) {
	q := url.Values{}
	q.Set("provider", ref.Provider)
	q.Set("repo", ref.RepoRef)
	q.Set("path", ref.Path)
	if ref.Revision != "" {
		q.Set("revision", ref.Revision)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/v1/content?"+q.Encode(), nil)
	if err != nil {
		return "", &FetchError{Ref: ref, Err: err}
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return "", &FetchError{Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Ref: ref, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var payload struct {
		Content string `json:"content"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &FetchError{Ref: ref, Err: err}
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", &FetchError{Ref: ref, Err: err}
	}
	return payload.Content, nil
}
