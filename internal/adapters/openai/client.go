package openai

import (
	"context"
	"fmt"
	"time"

	"maru-lead-engine/pkg/httputil"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client is a minimal OpenAI chat-completions client.
type Client struct {
	httpClient *resty.Client
	apiKey     string
	model      string
}

// NewClient creates a new OpenAI client. A missing API key is not an error
// here: it becomes a configuration error on first use.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		httpClient: httputil.NewRestyClient(baseURL, 30*time.Second),
		apiKey:     apiKey,
		model:      model,
	}
}

// Complete runs one chat completion with a forced JSON object response and
// low-randomness decoding, and returns the assistant message content.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key is not configured")
	}

	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
		Temperature:    0.3, // Lower temperature for more consistent classification
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(req).
		SetResult(&ChatCompletionResponse{}).
		Post("/v1/chat/completions")

	if err != nil {
		log.Error().Err(err).Str("model", c.model).Msg("OpenAI API: chat completion request failed")
		return "", fmt.Errorf("OpenAI chat completion request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("model", c.model).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("OpenAI API: chat completion returned an error")
		return "", fmt.Errorf("OpenAI chat completion error: status %s, body: %s", resp.Status(), resp.String())
	}

	completion := resp.Result().(*ChatCompletionResponse)
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return completion.Choices[0].Message.Content, nil
}
