package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/logging"
	"github.com/toolmux/toolmux/internal/manifest"
	"github.com/toolmux/toolmux/internal/schema"
	"github.com/toolmux/toolmux/internal/transport"
)

// stdioServer builds a command-based config whose child answers every
// request with the given catalog. The stdio transport matches responses
// positionally, so a constant id works for initialize and tools/list alike.
func stdioServer(name string, toolNames ...string) manifest.Server {
	catalog := `[`
	for i, tn := range toolNames {
		if i > 0 {
			catalog += ","
		}
		catalog += `{\"name\":\"` + tn + `\"}`
	}
	catalog += `]`

	script := `while read -r line; do
  printf '%s\n' "{\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"tools\":` + catalog + `}}"
done`

	return manifest.Server{
		Name:    name,
		Command: "sh",
		Args:    []string{"-c", script},
		Stderr:  manifest.StderrDiscard,
	}
}

// httpToolServer serves the streamable HTTP transport with a fixed catalog.
func httpToolServer(t *testing.T, toolNames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result := map[string]any{}
		if req.Method == jsonrpc.MethodToolsList {
			tools := make([]any, 0, len(toolNames))
			for _, tn := range toolNames {
				tools = append(tools, map[string]any{"name": tn})
			}
			result = map[string]any{"tools": tools}
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jsonrpc.Response{Result: raw, ID: req.ID})
	}))
}

// sseToolServer serves the legacy event-stream transport with a fixed
// catalog, closing released when the client drops the stream.
func sseToolServer(t *testing.T, released chan<- struct{}, toolNames ...string) *httptest.Server {
	t.Helper()

	responses := make(chan jsonrpc.Response, 16)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("event: endpoint\ndata: /rpc\n\n"))
		flusher.Flush()

		for {
			select {
			case resp := <-responses:
				raw, err := json.Marshal(resp)
				require.NoError(t, err)
				w.Write([]byte("event: message\ndata: " + string(raw) + "\n\n"))
				flusher.Flush()
			case <-r.Context().Done():
				if released != nil {
					close(released)
				}
				return
			}
		}
	})
	mux.HandleFunc("POST /rpc", func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result := map[string]any{}
		if req.Method == jsonrpc.MethodToolsList {
			tools := make([]any, 0, len(toolNames))
			for _, tn := range toolNames {
				tools = append(tools, map[string]any{"name": tn})
			}
			result = map[string]any{"tools": tools}
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)

		responses <- jsonrpc.Response{Result: raw, ID: req.ID}
		w.WriteHeader(http.StatusAccepted)
	})

	return httptest.NewServer(mux)
}

func testBrokerOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Provider: schema.ProviderAnthropic,
		Logger:   logging.ForTest(t),
	}
}

func TestInitializeAll_MixedTransports(t *testing.T) {
	httpSrv := httpToolServer(t, "web-fetch")
	defer httpSrv.Close()

	// The detection probe POSTs to / and gets a 405 back, so the negotiator
	// falls back to the event-stream transport, which connects on GET /.
	sseSrv := sseToolServer(t, nil, "legacy-search")
	defer sseSrv.Close()

	servers := []manifest.Server{
		stdioServer("a-files", "read", "write"),
		{Name: "b-web", URL: httpSrv.URL},
		{Name: "c-legacy", URL: sseSrv.URL},
	}

	set, err := InitializeAll(context.Background(), servers, testBrokerOptions(t))
	require.NoError(t, err)
	defer set.Close()

	// Server order with catalog order inside each server.
	var names []string
	for _, tl := range set.Tools {
		names = append(names, tl.Server+":"+tl.Name)
	}
	assert.Equal(t, []string{
		"a-files:read", "a-files:write",
		"b-web:web-fetch",
		"c-legacy:legacy-search",
	}, names)

	assert.Equal(t, map[string]transport.Kind{
		"a-files":  transport.KindStdio,
		"b-web":    transport.KindHTTP,
		"c-legacy": transport.KindSSE,
	}, set.Transports())
}

func TestInitializeAll_PartialFailureReleasesSuccesses(t *testing.T) {
	released := make(chan struct{})
	sseSrv := sseToolServer(t, released, "search")
	defer sseSrv.Close()

	servers := []manifest.Server{
		{Name: "good", URL: sseSrv.URL, Transport: manifest.TransportSSE},
		{Name: "bad", Command: "x", URL: "https://conflict.example.com"},
	}

	_, err := InitializeAll(context.Background(), servers, testBrokerOptions(t))
	require.Error(t, err)

	var initErr *muxerrors.ServerInitError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, "bad", initErr.Server)
	assert.True(t, errors.Is(err, muxerrors.ErrConfiguration))

	// The connection the good server opened was closed before the error
	// reached us; the server sees its stream drop.
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("successful server's connection was not released")
	}
}

func TestInitializeAll_AllFailuresJoined(t *testing.T) {
	servers := []manifest.Server{
		{Name: "one", Command: "", URL: ""},
		{Name: "two", Command: "x", URL: "https://conflict.example.com"},
	}

	_, err := InitializeAll(context.Background(), servers, testBrokerOptions(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"one"`)
	assert.Contains(t, err.Error(), `"two"`)
}

func TestToolSet_CloseIsIdempotent(t *testing.T) {
	released := make(chan struct{})
	sseSrv := sseToolServer(t, released, "search")
	defer sseSrv.Close()

	servers := []manifest.Server{
		{Name: "only", URL: sseSrv.URL, Transport: manifest.TransportSSE},
	}

	set, err := InitializeAll(context.Background(), servers, testBrokerOptions(t))
	require.NoError(t, err)

	require.NoError(t, set.Close())
	require.NoError(t, set.Close())

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not released")
	}
}

func TestInitializeAll_ToolCountMatchesCatalogs(t *testing.T) {
	httpSrv := httpToolServer(t, "a", "b", "c")
	defer httpSrv.Close()

	servers := []manifest.Server{
		stdioServer("files", "read"),
		{Name: "web", URL: httpSrv.URL},
	}

	set, err := InitializeAll(context.Background(), servers, testBrokerOptions(t))
	require.NoError(t, err)
	defer set.Close()

	assert.Len(t, set.Tools, 4)
}

func TestInitializeAll_UsesCachedTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result := map[string]any{}
		if req.Method == jsonrpc.MethodToolsList {
			result = map[string]any{"tools": []any{map[string]any{"name": "secure"}}}
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jsonrpc.Response{Result: raw, ID: req.ID})
	}))
	defer srv.Close()

	store := transport.NewFileTokenStoreAt(t.TempDir(), "web")
	require.NoError(t, store.SaveTokens(context.Background(),
		&transport.Tokens{AccessToken: "tok-123", TokenType: "Bearer"}))

	opts := testBrokerOptions(t)
	opts.Transport.TokenProvider = store

	servers := []manifest.Server{
		{Name: "web", URL: srv.URL, Transport: manifest.TransportHTTP},
	}

	set, err := InitializeAll(context.Background(), servers, opts)
	require.NoError(t, err)
	defer set.Close()

	require.Len(t, set.Tools, 1)
	assert.Equal(t, "secure", set.Tools[0].Name)
}

func TestInitializeAll_ToolsAreInvocable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result map[string]any
		switch req.Method {
		case jsonrpc.MethodToolsList:
			result = map[string]any{"tools": []any{map[string]any{"name": "echo"}}}
		case jsonrpc.MethodToolsCall:
			result = map[string]any{"content": []any{map[string]any{"type": "text", "text": "pong"}}}
		default:
			result = map[string]any{}
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jsonrpc.Response{Result: raw, ID: req.ID})
	}))
	defer srv.Close()

	set, err := InitializeAll(context.Background(), []manifest.Server{{Name: "web", URL: srv.URL}}, testBrokerOptions(t))
	require.NoError(t, err)
	defer set.Close()

	require.Len(t, set.Tools, 1)
	assert.Equal(t, "pong", set.Tools[0].Invoke(context.Background(), nil))
}
