package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmith-platform/docsmith/internal/config"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFetcher(config.SourceConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
}

func TestFetcher_FetchSuccess(t *testing.T) {
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/content", r.URL.Path)
		assert.Equal(t, "github", r.URL.Query().Get("provider"))
		assert.Equal(t, "acme/app", r.URL.Query().Get("repo"))
		assert.Equal(t, "pkg/parser.go", r.URL.Query().Get("path"))
		assert.Equal(t, "main", r.URL.Query().Get("revision"))

		json.NewEncoder(w).Encode(map[string]string{"content": "package parser"})
	})

	content, err := fetcher.Fetch(context.Background(), Ref{
		Provider: "github", RepoRef: "acme/app", Path: "pkg/parser.go", Revision: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, "package parser", content)
}

func TestFetcher_RevisionOmittedWhenEmpty(t *testing.T) {
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, has := r.URL.Query()["revision"]
		assert.False(t, has)
		json.NewEncoder(w).Encode(map[string]string{"content": "x"})
	})

	_, err := fetcher.Fetch(context.Background(), Ref{Provider: "gitlab", RepoRef: "a/b", Path: "f.go"})
	require.NoError(t, err)
}

func TestFetcher_NonOKStatusIsFetchError(t *testing.T) {
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ref := Ref{Provider: "github", RepoRef: "acme/app", Path: "gone.go"}
	_, err := fetcher.Fetch(context.Background(), ref)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ref, fetchErr.Ref)
	assert.Contains(t, fetchErr.Error(), "status 404")
}

func TestFetcher_ConnectionFailureIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	fetcher := NewFetcher(config.SourceConfig{BaseURL: srv.URL, Timeout: time.Second})

	_, err := fetcher.Fetch(context.Background(), Ref{Provider: "github", RepoRef: "a/b", Path: "f.go"})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestRef_String(t *testing.T) {
	assert.Equal(t, "github:acme/app/pkg/a.go",
		Ref{Provider: "github", RepoRef: "acme/app", Path: "pkg/a.go"}.String())
	assert.Equal(t, "github:acme/app@v1.2/pkg/a.go",
		Ref{Provider: "github", RepoRef: "acme/app", Path: "pkg/a.go", Revision: "v1.2"}.String())
}
