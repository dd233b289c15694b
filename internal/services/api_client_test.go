package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	cfg := DefaultClientConfig(baseURL)
	cfg.RetryDelay = time.Millisecond
	return NewClientWithConfig(cfg)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.Close()

	var out map[string]bool
	require.NoError(t, client.Get(context.Background(), "/", &out, nil))
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	var body []byte
	err := client.Get(context.Background(), "/missing", &body, &RequestOptions{ResponseType: "binary"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientAcceptAnyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	client := newTestClient("")

	var text string
	err := client.Get(context.Background(), srv.URL, &text, &RequestOptions{
		ResponseType:    "text",
		Headers:         map[string]string{"X-Custom": "yes"},
		AcceptAnyStatus: true,
		Retries:         -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "short and stout", text)
}

func TestEnsureScheme(t *testing.T) {
	assert.Equal(t, "https://mainnet.eth.example:443", EnsureScheme("mainnet.eth.example:443"))
	assert.Equal(t, "http://localhost:8545", EnsureScheme("http://localhost:8545"))
	assert.Equal(t, "https://rpc.example", EnsureScheme("https://rpc.example"))
}
