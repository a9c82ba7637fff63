package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetJSONSendsPoliteHeaders(t *testing.T) {
	t.Parallel()

	var gotPath, gotUA, gotMailto, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotMailto = r.URL.Query().Get("mailto")
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","value":3}`))
	}))
	t.Cleanup(srv.Close)

	var observed []int
	client, err := New(Config{
		Name:      "crossref",
		BaseURL:   srv.URL + "/v1",
		UserAgent: "paper-feeds-test",
		Email:     "me@example.org",
		Observer: func(api string, status int, _ time.Duration) {
			require.Equal(t, "crossref", api)
			observed = append(observed, status)
		},
	}, zap.NewNop())
	require.NoError(t, err)

	var out struct {
		Status string `json:"status"`
		Value  int    `json:"value"`
	}
	err = client.GetJSON(context.Background(), "journals", url.Values{"query": {"nature"}}, &out)
	require.NoError(t, err)
	require.Equal(t, "ok", out.Status)
	require.Equal(t, 3, out.Value)
	require.Equal(t, "/v1/journals", gotPath)
	require.Equal(t, "paper-feeds-test", gotUA)
	require.Equal(t, "me@example.org", gotMailto)
	require.Equal(t, "nature", gotQuery)
	require.Equal(t, []int{http.StatusOK}, observed)
}

func TestGetJSONOmitsMailtoWithoutEmail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["mailto"]
		if present {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{Name: "openalex", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, client.GetJSON(context.Background(), "sources", nil, &out))
}

func TestGetJSONReturnsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Resource not found.", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{Name: "crossref", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	var out map[string]any
	err = client.GetJSON(context.Background(), "journals/0000-0000", nil, &out)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Contains(t, statusErr.URL, "/journals/0000-0000")
	require.Contains(t, err.Error(), "Resource not found.")
}

func TestGetJSONDecodeError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{Name: "crossref", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	var out map[string]any
	err = client.GetJSON(context.Background(), "journals", nil, &out)
	require.ErrorContains(t, err, "crossref decode response")
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Name: "crossref"}, nil)
	require.ErrorContains(t, err, "base url is required")
}
