package transform

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultSystemPrompt instructs the model to polish a prompt without dropping
// content.
const DefaultSystemPrompt = "You optimize prompts for AI coding assistants. " +
	"Rewrite the prompt for clarity and structure. Keep every requirement, " +
	"identifier, constraint and numbered step. Return only the rewritten prompt."

// OpenAIConfig configures the chat-completions transformer.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// OpenAI calls the chat-completions API.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAI builds a transformer from cfg.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, errors.New("transform model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by the orchestrator's retry budget.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Transform implements Transformer.
func (o *OpenAI) Transform(ctx context.Context, text string, p Params) (string, error) {
	system := p.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	if len(p.Directives) > 0 {
		system += "\n\nWhile rewriting:\n- " + strings.Join(p.Directives, "\n- ")
	}

	model := o.model
	if p.Model != "" {
		model = p.Model
	}
	temperature := o.temperature
	if p.Temperature > 0 {
		temperature = p.Temperature
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fromStatus(apiErr.StatusCode, err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
