package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

// OpenAIProvider ходит в любой OpenAI-совместимый /chat/completions (OpenRouter по умолчанию).
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(cfg infra.ProviderConfig, timeout time.Duration) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// повторы внутри одной модели запрещены: следующая попытка, это следующая модель
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

// NewProviders собирает провайдеры по секции reasoning.providers.
func NewProviders(cfg infra.ReasoningConfig) map[string]Provider {
	out := make(map[string]Provider, len(cfg.Providers))
	for name, p := range cfg.Providers {
		out[name] = NewOpenAIProvider(p, cfg.RequestTimeout)
	}
	return out
}

func (p *OpenAIProvider) Complete(ctx context.Context, model string, msgs []Message) (string, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: params,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("model %s: http %d: %w", model, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("model %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s: %w", model, errEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}
