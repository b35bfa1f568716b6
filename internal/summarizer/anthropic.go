package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/pearl-assistant/pearl/internal/schema"
)

const summarySystemPrompt = `You summarize one finished conversation between a user and their assistant.
Respond with a single JSON object and nothing else:
{"summary": "<2-5 sentence summary>",
 "topics": ["<short topic>", ...],
 "key_decisions": ["<decision>", ...],
 "action_items": ["<action item>", ...],
 "one_liner": "<one sentence gist>"}`

// Anthropic implements Summarizer on the Anthropic Messages API.
type Anthropic struct {
	client        *anthropic.Client
	model         string
	maxInputBytes int
}

// NewAnthropic creates an Anthropic summarizer. maxInputBytes <= 0 selects
// DefaultMaxInputBytes.
func NewAnthropic(client *anthropic.Client, model string, maxInputBytes int) *Anthropic {
	if maxInputBytes <= 0 {
		maxInputBytes = DefaultMaxInputBytes
	}
	return &Anthropic{client: client, model: model, maxInputBytes: maxInputBytes}
}

func (a *Anthropic) Summarize(ctx context.Context, turns []schema.Turn) (schema.Summary, error) {
	transcript := RenderTranscript(turns, a.maxInputBytes)

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: summarySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript)),
		},
	})
	if err != nil {
		return schema.Summary{}, fmt.Errorf("%w: messages call: %v", schema.ErrSummarizationFailed, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	summary, err := parseSummary(text.String())
	if err != nil {
		return schema.Summary{}, fmt.Errorf("%w: %v", schema.ErrSummarizationFailed, err)
	}
	return summary, nil
}

// parseSummary decodes the model's JSON reply, tolerating markdown fences
// and surrounding prose.
func parseSummary(raw string) (schema.Summary, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return schema.Summary{}, fmt.Errorf("no JSON object in reply")
	}

	var s schema.Summary
	if err := json.Unmarshal([]byte(raw[start:end+1]), &s); err != nil {
		return schema.Summary{}, fmt.Errorf("decode summary: %v", err)
	}
	if s.Text == "" && s.OneLiner == "" {
		return schema.Summary{}, fmt.Errorf("empty summary in reply")
	}
	if s.OneLiner == "" {
		s.OneLiner = s.Text
	}
	if s.Text == "" {
		s.Text = s.OneLiner
	}
	return s, nil
}
