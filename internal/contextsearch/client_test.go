package contextsearch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recall/internal/configuration"
	"github.com/ahrav/go-recall/internal/contextsearch"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

func newClient(t *testing.T, handler http.HandlerFunc) *contextsearch.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := configuration.DefaultConfig().ContextSearch
	cfg.Endpoint = srv.URL
	cfg.APIKey = "test-key"
	return contextsearch.New(cfg)
}

func TestSearchSendsExpectedRequest(t *testing.T) {
	var got map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"contexts":[{"content":"alpha","score":0.9},{"content":"beta"}]}`))
	})

	snippets, err := client.Search(context.Background(), "What is A?")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"query":                "What is A?",
		"metadata":             nil,
		"similarity_threshold": 0.6,
	}, got)
	require.Len(t, snippets, 2)
	assert.Equal(t, "alpha", snippets[0].Content)
	assert.JSONEq(t, `{"content":"alpha","score":0.9}`, string(snippets[0].Raw))
	assert.Equal(t, "beta", snippets[1].Content)
}

func TestSearchEmptyContexts(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty array", `{"contexts":[]}`},
		{"null", `{"contexts":null}`},
		{"missing", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			snippets, err := client.Search(context.Background(), "q")
			require.NoError(t, err)
			assert.NotNil(t, snippets)
			assert.Empty(t, snippets)
		})
	}
}

func TestSearchAcceptsAny2xx(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"contexts":[{"content":"x"}]}`))
	})

	snippets, err := client.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, snippets, 1)
}

func TestSearchNonSuccessStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType evalerrors.ErrorType
	}{
		{"rate limited", http.StatusTooManyRequests, evalerrors.ErrorTypeRateLimit},
		{"server error", http.StatusInternalServerError, evalerrors.ErrorTypeProvider},
		{"unauthorized", http.StatusUnauthorized, evalerrors.ErrorTypeAuth},
		{"redirect", http.StatusNotModified, evalerrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := client.Search(context.Background(), "q")

			var remote *evalerrors.RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, contextsearch.ServiceName, remote.Service)
			assert.Equal(t, tt.status, remote.StatusCode)
			assert.Equal(t, tt.wantType, remote.Type)
		})
	}
}

func TestSearchErrorCarriesBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream exploded`))
	})

	_, err := client.Search(context.Background(), "q")

	var remote *evalerrors.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "upstream exploded", remote.Body)
}

func TestSearchMalformedBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"contexts": [`))
	})

	_, err := client.Search(context.Background(), "q")
	require.Error(t, err)
	assert.False(t, evalerrors.IsPermanent(err), "decode failures are retried")
}

func TestSearchDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"contexts":[]}`))
	}))
	t.Cleanup(srv.Close)

	cfg := configuration.DefaultConfig().ContextSearch
	cfg.Endpoint = srv.URL
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	client := contextsearch.New(cfg)

	_, err := client.Search(context.Background(), "q")
	require.NoError(t, err, "burst admits the first request")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Search(ctx, "q")
	require.Error(t, err, "second request cannot get a token before the deadline")
}

func TestSearchHonoursContext(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
}
