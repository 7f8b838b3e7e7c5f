package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skein-ai/skein/pkg/models"
)

// OpenAIConfig holds settings for the OpenAI-compatible chat completions
// endpoint.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1" or a local
	// server's address.
	BaseURL string
	APIKey  string
	Model   string
	// Temperature is passed through to the completion request.
	Temperature float64
	// Timeout bounds a single completion, stream included. Zero means no
	// client-side timeout; cancellation then rests on the caller's context.
	Timeout time.Duration
}

// OpenAIClient streams chat completions over SSE from any OpenAI-compatible
// server.
type OpenAIClient struct {
	cfg  OpenAIConfig
	http *http.Client
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a streaming client for the configured endpoint.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerateStream sends the conversation and accumulates the streamed response.
// A context cancelled mid-stream is a clean break: the content received so far
// is returned without error.
func (c *OpenAIClient) GenerateStream(ctx context.Context, messages []models.Message, onDelta func(string)) (string, string, error) {
	payload := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Stream:      true,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", c.cfg.Model, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", c.cfg.Model, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.cfg.Model, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", c.cfg.Model, fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var content strings.Builder
	model := c.cfg.Model

	scanner := bufio.NewScanner(resp.Body)
	// Large SSE payloads need a bigger buffer than the scanner default.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		// A cancelled context mid-stream is a clean break; the partial
		// content is the final content.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return content.String(), model, nil
		}
		return content.String(), model, fmt.Errorf("read chat stream: %w", err)
	}
	return content.String(), model, nil
}
