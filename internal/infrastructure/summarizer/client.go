// Package summarizer calls an external chat-completions endpoint to condense
// trimmed-away conversation items into a single synthetic summary item.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/utils/httpclients"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

const systemPrompt = "Condense the following conversation excerpt into a short factual summary. " +
	"Keep decisions, constraints and open questions. Do not add commentary."

type Client struct {
	client *resty.Client
	model  string
}

var _ conversation.Summarizer = (*Client)(nil)

// Options configure the summarizer endpoint.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates a summarizer against an OpenAI-compatible endpoint.
func NewClient(opts Options) *Client {
	client := httpclients.NewClient("summarizer").
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout)
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	return &Client{client: client, model: opts.Model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize implements conversation.Summarizer.
func (c *Client) Summarize(ctx context.Context, items []*conversation.Item) (json.RawMessage, error) {
	transcript := ""
	for _, item := range items {
		transcript += fmt.Sprintf("%s: %s\n", item.Role, string(item.Content))
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: transcript},
		},
	}

	var result chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfra, err, "summarizer request failed")
	}
	if resp.IsError() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfra,
			platformerrors.ErrorTypeInternal,
			fmt.Sprintf("summarizer returned status %d", resp.StatusCode()), nil,
			"c5e81f09-3a64-4d27-b8e0-195f6d2c04a8")
	}
	if len(result.Choices) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfra,
			platformerrors.ErrorTypeInternal, "summarizer returned no choices", nil,
			"71b4d8e2-0c95-4f36-a27d-e84a1c60f5b9")
	}

	content, err := json.Marshal(map[string]string{
		"type": "summary",
		"text": result.Choices[0].Message.Content,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfra, err, "failed to encode summary")
	}
	return content, nil
}
