package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mameikagou/compoder/internal/models"
)

// writeDelta writes one OpenAI-style SSE content frame.
func writeDelta(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	frame := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"delta": map[string]string{"content": content}},
		},
	}
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	w.(http.Flusher).Flush()
}

// drain reads the stream to exhaustion, returning concatenated content and
// the terminal error.
func drain(stream ChunkStream) (string, error) {
	var out string
	for {
		chunk, err := stream.Recv()
		if err != nil {
			return out, err
		}
		out += chunk
	}
}

func newTestClient(serverURL string) *HTTPModelClient {
	client := NewHTTPModelClient()
	client.SetProvider("test", ProviderConfig{BaseURL: serverURL, APIKey: "test-key"})
	return client
}

func TestHTTPModelClient_Generate(t *testing.T) {
	instruction := Instruction{
		System: "You are a frontend engineer.",
		Prompt: []models.PromptPart{{Type: models.PromptPartText, Text: "Build a button"}},
	}

	t.Run("successful stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Stream)
			assert.Equal(t, "gpt-4o", req.Model)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "system", req.Messages[0].Role)

			w.Header().Set("Content-Type", "text/event-stream")
			writeDelta(t, w, `<file name="A.tsx">`)
			writeDelta(t, w, "const a = 1;")
			writeDelta(t, w, "</file>")
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		stream, err := client.Generate(context.Background(), instruction, "gpt-4o", "test")
		require.NoError(t, err)
		defer stream.Close()

		content, err := drain(stream)
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, `<file name="A.tsx">const a = 1;</file>`, content)
	})

	t.Run("unknown provider", func(t *testing.T) {
		client := NewHTTPModelClient()
		_, err := client.Generate(context.Background(), instruction, "gpt-4o", "no-such-provider")
		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "no-such-provider", provErr.Provider)
	})

	t.Run("provider rejects with 401", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.Generate(context.Background(), instruction, "gpt-4o", "test")
		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
		assert.Contains(t, provErr.Message, "invalid api key")
	})

	t.Run("connection drop mid-stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			writeDelta(t, w, "partial output")
			// Hijack and slam the connection without a terminating frame.
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		stream, err := client.Generate(context.Background(), instruction, "gpt-4o", "test")
		require.NoError(t, err)
		defer stream.Close()

		content, err := drain(stream)
		assert.Equal(t, "partial output", content)
		assert.True(t, errors.Is(err, ErrStreamInterrupted) || err == io.EOF)
	})

	t.Run("malformed frames are skipped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": keepalive comment\n\n")
			fmt.Fprint(w, "data: {not json}\n\n")
			writeDelta(t, w, "real content")
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		stream, err := client.Generate(context.Background(), instruction, "gpt-4o", "test")
		require.NoError(t, err)
		defer stream.Close()

		content, err := drain(stream)
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, "real content", content)
	})

	t.Run("recv after done keeps returning EOF", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		stream, err := client.Generate(context.Background(), instruction, "gpt-4o", "test")
		require.NoError(t, err)
		defer stream.Close()

		_, err = stream.Recv()
		assert.Equal(t, io.EOF, err)
		_, err = stream.Recv()
		assert.Equal(t, io.EOF, err)
	})
}

func TestBuildMessages(t *testing.T) {
	t.Run("text-only prompt collapses to a string", func(t *testing.T) {
		messages := buildMessages(Instruction{
			System: "sys",
			Prompt: []models.PromptPart{
				{Type: models.PromptPartText, Text: "first"},
				{Type: models.PromptPartText, Text: "second"},
			},
		})

		require.Len(t, messages, 2)
		assert.Equal(t, "sys", messages[0].Content)
		assert.Equal(t, "first\nsecond", messages[1].Content)
	})

	t.Run("image prompt uses content parts", func(t *testing.T) {
		messages := buildMessages(Instruction{
			System: "sys",
			Prompt: []models.PromptPart{
				{Type: models.PromptPartText, Text: "match this"},
				{Type: models.PromptPartImage, Image: "data:image/png;base64,AAAA"},
			},
		})

		require.Len(t, messages, 2)
		parts, ok := messages[1].Content.([]contentPart)
		require.True(t, ok)
		require.Len(t, parts, 2)
		assert.Equal(t, "text", parts[0].Type)
		assert.Equal(t, "match this", parts[0].Text)
		assert.Equal(t, "image_url", parts[1].Type)
		require.NotNil(t, parts[1].ImageURL)
		assert.Equal(t, "data:image/png;base64,AAAA", parts[1].ImageURL.URL)
	})
}
