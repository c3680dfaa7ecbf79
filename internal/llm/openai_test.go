package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, chunks []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, chunk := range chunks {
		payload, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": chunk}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newOpenAITestServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *OpenAIProvider {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		handler(w, body)
	}))
	t.Cleanup(server.Close)

	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", Model: "test-model", TitleModel: "title-model", BaseURL: server.URL})
	require.NoError(t, err)
	return provider
}

func TestOpenAIProviderStream(t *testing.T) {
	var requestBody map[string]any
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, body map[string]any) {
		requestBody = body
		writeSSE(w, []string{"Hello", ", ", "world"})
	})

	prompt := Prompt{
		History: []Turn{{Role: RoleUser, Text: "hi"}, {Role: RoleAssistant, Text: "hello there"}},
		Parts:   []Part{TextPart("say hello")},
	}

	var chunks []string
	for chunk, err := range provider.Stream(context.Background(), prompt) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	assert.Equal(t, "Hello, world", strings.Join(chunks, ""))
	assert.Equal(t, "test-model", requestBody["model"])
	assert.Len(t, requestBody["messages"], 4)
}

func TestOpenAIProviderStreamError(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	var gotErr error
	for _, err := range provider.Stream(context.Background(), Prompt{Parts: []Part{TextPart("hi")}}) {
		if err != nil {
			gotErr = err
		}
	}
	assert.Error(t, gotErr)
}

func TestOpenAIProviderStreamStopsEarly(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, body map[string]any) {
		writeSSE(w, []string{"one", "two", "three"})
	})

	var chunks []string
	for chunk, err := range provider.Stream(context.Background(), Prompt{Parts: []Part{TextPart("count")}}) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
		break
	}
	assert.Equal(t, []string{"one"}, chunks)
}

func TestOpenAIProviderTitle(t *testing.T) {
	var requestBody map[string]any
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, body map[string]any) {
		requestBody = body
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"title-model","choices":[{"index":0,"message":{"role":"assistant","content":"  Contract Review Questions \n"},"finish_reason":"stop"}]}`)
	})

	title, err := provider.Title(context.Background(), "can you review this contract?")
	require.NoError(t, err)
	assert.Equal(t, "Contract Review Questions", title)
	assert.Equal(t, "title-model", requestBody["model"])
}
