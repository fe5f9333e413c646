package codegen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mameikagou/compoder/internal/models"
)

// ProviderError means the model provider rejected the request outright
// (auth, quota, unknown model) before any chunk was produced.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s rejected request (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// ErrStreamInterrupted means the connection to the model dropped after some
// chunks were already delivered.
var ErrStreamInterrupted = errors.New("model stream interrupted")

// ChunkStream is a finite, forward-only sequence of text chunks from a model
// response. Recv returns io.EOF on clean exhaustion and an error wrapping
// ErrStreamInterrupted when the connection drops mid-stream. Chunks are
// never skipped or reordered and cannot be replayed.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// ModelClient opens a streaming generation against a model provider.
type ModelClient interface {
	Generate(ctx context.Context, instruction Instruction, model, provider string) (ChunkStream, error)
}

// ProviderConfig holds connection settings for one OpenAI-compatible
// provider endpoint.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// HTTPModelClient talks to OpenAI-compatible chat completion APIs over SSE.
type HTTPModelClient struct {
	providers  map[string]ProviderConfig
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPModelClient creates a model client configured from environment
// variables. Unknown providers fail at Generate time, not construction time.
func NewHTTPModelClient() *HTTPModelClient {
	providers := map[string]ProviderConfig{
		"openai": {
			BaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
		},
		"deepseek": {
			BaseURL: envOr("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
			APIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		},
		"ollama": {
			BaseURL: envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		},
	}

	settings := gobreaker.Settings{
		Name:        "model-provider",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}

	return &HTTPModelClient{
		providers: providers,
		httpClient: &http.Client{
			// No overall timeout: generations stream for minutes. Connect
			// behavior is bounded by the request context.
			Timeout: 0,
		},
		tracer:  otel.Tracer("model-client"),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// SetProvider overrides one provider's configuration, used by tests and by
// deployments that route every provider id through a gateway.
func (c *HTTPModelClient) SetProvider(name string, cfg ProviderConfig) {
	c.providers[name] = cfg
}

// Generate opens the model stream. It returns a ProviderError when the
// provider rejects the request before the first chunk.
func (c *HTTPModelClient) Generate(ctx context.Context, instruction Instruction, model, provider string) (ChunkStream, error) {
	ctx, span := c.tracer.Start(ctx, "model_client.generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("gen_ai.request.model", model),
		attribute.String("gen_ai.provider", provider),
	)

	cfg, ok := c.providers[provider]
	if !ok {
		err := &ProviderError{Provider: provider, StatusCode: 0, Message: "unknown provider"}
		span.RecordError(err)
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.open(ctx, cfg, instruction, model, provider)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return result.(ChunkStream), nil
}

// open performs the HTTP request and validates the response status.
func (c *HTTPModelClient) open(ctx context.Context, cfg ProviderConfig, instruction Instruction, model, provider string) (ChunkStream, error) {
	body := chatRequest{
		Model:    model,
		Stream:   true,
		Messages: buildMessages(instruction),
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: provider, StatusCode: 0, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	return &sseStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// chatRequest is the OpenAI-compatible request payload.
type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

// chatMessage carries either a plain string content or a multi-part content
// array when the prompt includes images.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// buildMessages renders the instruction as chat messages, preserving the
// caller-given order of prompt parts.
func buildMessages(instruction Instruction) []chatMessage {
	messages := []chatMessage{
		{Role: "system", Content: instruction.System},
	}

	hasImage := false
	for _, part := range instruction.Prompt {
		if part.Type == models.PromptPartImage {
			hasImage = true
			break
		}
	}

	if !hasImage {
		texts := make([]string, 0, len(instruction.Prompt))
		for _, part := range instruction.Prompt {
			texts = append(texts, part.Text)
		}
		messages = append(messages, chatMessage{Role: "user", Content: strings.Join(texts, "\n")})
		return messages
	}

	parts := make([]contentPart, 0, len(instruction.Prompt))
	for _, part := range instruction.Prompt {
		switch part.Type {
		case models.PromptPartImage:
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: part.Image}})
		default:
			parts = append(parts, contentPart{Type: "text", Text: part.Text})
		}
	}
	messages = append(messages, chatMessage{Role: "user", Content: parts})
	return messages
}

// sseStream reads OpenAI-style `data:` lines from a streaming response body.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

type chatDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Recv returns the next non-empty content delta. A clean end of stream
// (the [DONE] sentinel or EOF) yields io.EOF; a connection drop yields an
// error wrapping ErrStreamInterrupted.
func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if err == io.EOF {
				return "", io.EOF
			}
			return "", fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var delta chatDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			// Skip malformed keepalive frames rather than killing the run.
			continue
		}
		if len(delta.Choices) > 0 && delta.Choices[0].Delta.Content != "" {
			return delta.Choices[0].Delta.Content, nil
		}
	}
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
