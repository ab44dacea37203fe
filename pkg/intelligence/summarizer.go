package intelligence

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Summarizer produces a bounded-length digest of archived memory content.
type Summarizer interface {
	// Summarize returns a digest of the given contents, at most maxLength
	// runes long.
	Summarize(ctx context.Context, contents []string, maxLength int) (string, error)
}

// TruncatingSummarizer is the rule-based default: it joins the contents and
// truncates the result at the length cap. It never fails.
type TruncatingSummarizer struct{}

// Summarize joins the contents with "; " and truncates to maxLength runes.
func (TruncatingSummarizer) Summarize(_ context.Context, contents []string, maxLength int) (string, error) {
	joined := strings.Join(contents, "; ")
	return truncateRunes(joined, maxLength), nil
}

// OpenAISummarizer generates archive digests with an OpenAI chat model.
// It implements the Summarizer interface; callers should treat failures as
// soft and fall back to TruncatingSummarizer.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

// OpenAISummarizerConfig contains configuration for the OpenAI summarizer.
// APIKey: OpenAI API key (required)
// Model: Model name to use, defaults to "gpt-4o-mini"
// BaseURL: API base URL, defaults to the OpenAI official address
type OpenAISummarizerConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAISummarizer creates a new OpenAI-backed summarizer.
func NewOpenAISummarizer(cfg *OpenAISummarizerConfig) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai summarizer: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAISummarizer{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Summarize asks the model for a one-paragraph digest of the contents and
// truncates the answer to maxLength runes.
func (s *OpenAISummarizer) Summarize(ctx context.Context, contents []string, maxLength int) (string, error) {
	prompt := "Summarize the following memory snippets in one short paragraph:\n\n" +
		strings.Join(contents, "\n")

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You condense agent memories into terse archive summaries."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("summarize: no choices returned from OpenAI API")
	}

	return truncateRunes(resp.Choices[0].Message.Content, maxLength), nil
}

// truncateRunes cuts s at limit runes, keeping whole runes.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
