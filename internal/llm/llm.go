package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic API for diary summarization.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for summarization.
func buildPrompt(entries string) (system string, user string) {
	system = `You summarize a developer's work diary. The input is one or more markdown diary entries, each describing a coding session: accomplishments grouped by category, session objectives, issues encountered, tools used, and files modified.

Write a short narrative summary (3-8 sentences) of what was worked on across these sessions. Rules:
- Lead with the main objectives and what was accomplished toward them
- Mention recurring issues or blockers if any appear
- Plain prose only, no headings, no bullet lists, no markdown fencing
- Do not invent work that is not in the entries`

	var sb strings.Builder
	sb.WriteString("Summarize these diary entries:\n\n")
	sb.WriteString(entries)
	user = sb.String()
	return
}

// Summarize sends rendered diary entries to the LLM and returns a
// short narrative summary.
func (c *Client) Summarize(ctx context.Context, entries string) (string, error) {
	systemPrompt, userPrompt := buildPrompt(entries)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return stripFencing(text), nil
}

// stripFencing removes markdown code fencing if the model wrapped its
// answer in one despite instructions.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
