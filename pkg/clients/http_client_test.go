package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, mutate func(*HTTPConfig)) *HTTPClient {
	cfg := DefaultHTTPConfig()
	cfg.InsecureSkipVerify = true
	if mutate != nil {
		mutate(cfg)
	}
	c := NewHTTPClient(cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mongobridge/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"a":1}]`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.ContentType)
	assert.Equal(t, `[{"a":1}]`, string(res.Body))
}

func TestFetch_NotFoundIsSourceError(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, nil).Fetch(context.Background(), srv.URL+"/missing.json")
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrorTypeSource))
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusNotFound, e.Details["status"])
}

func TestFetch_TransportErrorIsConnectionError(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, nil).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.True(t, errors.IsRetryable(err))
}

func TestFetch_BearerToken(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok3n" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, nil).Fetch(context.Background(), srv.URL)
	assert.Error(t, err)

	res, err := newTestClient(t, func(c *HTTPConfig) { c.BearerToken = "tok3n" }).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Body))
}

func TestFetch_MaxBytes(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := newTestClient(t, func(c *HTTPConfig) { c.MaxBytes = 10 }).Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "exceeds 10 bytes")

	res, err := newTestClient(t, func(c *HTTPConfig) { c.MaxBytes = 100 }).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, res.Body, 100)
}
