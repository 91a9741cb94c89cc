package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

// Generator produces chat completions. The retrieval pipeline uses it
// for query expansion; answer synthesis callers reuse the same client.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// GenerationClient calls an OpenAI-compatible chat-completions endpoint.
type GenerationClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// NewGenerationClient creates a client from generation settings.
func NewGenerationClient(cfg config.GenerationConfig) *GenerationClient {
	return &GenerationClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate returns the completion for the given system and user prompts.
func (c *GenerationClient) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []chatMessage{}
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var out string
	err = withRetry(ctx, defaultRetryAttempts, defaultRetryBase, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("chat request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			return fmt.Errorf("chat service returned %d: %s", resp.StatusCode, string(body))
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode chat response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("chat service returned no choices")
		}
		out = parsed.Choices[0].Message.Content
		return nil
	})
	return out, err
}

var _ Generator = (*GenerationClient)(nil)
