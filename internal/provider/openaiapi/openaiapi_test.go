package openaiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chathub/chathub/internal/provider"
)

// fakeAPI serves a minimal OpenAI-compatible surface.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if stream, _ := req["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, delta := range []string{"Hello", " from", " api"} {
				chunk := map[string]interface{}{
					"id":      "chunk-1",
					"object":  "chat.completion.chunk",
					"model":   "test-model",
					"choices": []map[string]interface{}{{"index": 0, "delta": map[string]string{"content": delta}}},
				}
				data, _ := json.Marshal(chunk)
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "Hello from api"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	})

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"id": "test-model", "object": "model"},
				{"id": "other-model", "object": "model"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := New("testapi", Options{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Model:   "test-model",
	}, zerolog.Nop())
	require.NoError(t, c.Init(context.Background()))
	return c
}

func TestSend(t *testing.T) {
	c := newTestClient(t, fakeAPI(t))

	resp, err := c.Send(context.Background(), "hi", []provider.Message{
		{Role: provider.RoleUser, Content: "earlier"},
		{Role: provider.RoleAssistant, Content: "reply"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello from api", resp.Content)
	assert.Equal(t, "testapi", resp.Provider)
	assert.Equal(t, "test-model", resp.Model)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}

func TestStream(t *testing.T) {
	c := newTestClient(t, fakeAPI(t))

	var deltas []string
	err := c.Stream(context.Background(), "hi", nil, func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello from api", strings.Join(deltas, ""))
}

func TestModels(t *testing.T) {
	c := newTestClient(t, fakeAPI(t))

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"test-model", "other-model"}, models)
}

func TestHealthy(t *testing.T) {
	srv := fakeAPI(t)
	c := newTestClient(t, srv)
	assert.True(t, c.Healthy(context.Background()))

	srv.Close()
	assert.False(t, c.Healthy(context.Background()))
}

func TestRequiresInit(t *testing.T) {
	c := New("testapi", Options{APIKey: "sk-test"}, zerolog.Nop())

	_, err := c.Send(context.Background(), "hi", nil)
	assert.True(t, errors.Is(err, provider.ErrNotInitialized))
}

func TestInitRequiresKey(t *testing.T) {
	c := New("testapi", Options{}, zerolog.Nop())
	assert.Error(t, c.Init(context.Background()))
}
