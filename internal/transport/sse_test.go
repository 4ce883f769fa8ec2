package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/manifest"
)

// sseTestServer runs the legacy transport's server side: the GET handler
// announces a POST-back endpoint and then relays responses onto the stream.
func sseTestServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()

	responses := make(chan jsonrpc.Response, 16)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("event: endpoint\ndata: /messages?session=abc\n\n"))
		flusher.Flush()

		for {
			select {
			case resp := <-responses:
				raw, err := json.Marshal(resp)
				require.NoError(t, err)
				w.Write([]byte("event: message\ndata: " + string(raw) + "\n\n"))
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("session"))

		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			result = map[string]any{}
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)

		responses <- jsonrpc.Response{Result: raw, ID: req.ID}
		w.WriteHeader(http.StatusAccepted)
	})

	return httptest.NewServer(mux)
}

func TestSSE_InitializeAndCall(t *testing.T) {
	srv := sseTestServer(t, map[string]any{
		"tools/list": map[string]any{"tools": []any{map[string]any{"name": "search"}}},
	})
	defer srv.Close()

	conn, err := NewSSE(context.Background(), &manifest.Server{Name: "legacy", URL: srv.URL + "/sse"}, testOptions(t))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, KindSSE, conn.Kind())

	result, err := conn.Call(context.Background(), jsonrpc.MethodToolsList, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result), `"search"`)
}

func TestSSE_StreamNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewSSE(context.Background(), &manifest.Server{Name: "legacy", URL: srv.URL}, testOptions(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSSE_StreamClosesBeforeEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		// No endpoint event; handler returns and the stream ends.
	}))
	defer srv.Close()

	_, err := NewSSE(context.Background(), &manifest.Server{Name: "legacy", URL: srv.URL}, testOptions(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		endpoint string
		want     string
	}{
		{
			name:     "relative path with query",
			base:     "https://host.example.com/sse",
			endpoint: "/messages?session=1",
			want:     "https://host.example.com/messages?session=1",
		},
		{
			name:     "absolute endpoint",
			base:     "https://host.example.com/sse",
			endpoint: "https://other.example.com/rpc",
			want:     "https://other.example.com/rpc",
		},
		{
			name:     "whitespace trimmed",
			base:     "https://host.example.com/sse",
			endpoint: " /messages \n",
			want:     "https://host.example.com/messages",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveEndpoint(tt.base, tt.endpoint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
