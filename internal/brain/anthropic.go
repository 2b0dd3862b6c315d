package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/0x6d61/vulnbot/pkg/schema"
)

const anthropicMaxTokens = 4096

// anthropicBrain は Anthropic Messages API を公式 SDK 経由で使う Brain 実装。
type anthropicBrain struct {
	cfg    Config
	client *anthropic.Client
}

func newAnthropicBrain(cfg Config) (*anthropicBrain, error) {
	// モデル呼び出しは自動リトライしない（失敗は呼び出し側へ返す）
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	switch cfg.AuthType {
	case AuthOAuthToken:
		opts = append(opts,
			option.WithHeader("Authorization", "Bearer "+cfg.Token),
			option.WithHeader("anthropic-beta", "oauth-2025-04-20"),
		)
	default:
		opts = append(opts, option.WithAPIKey(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &anthropicBrain{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}, nil
}

func (b *anthropicBrain) Provider() string { return string(ProviderAnthropic) }

func (b *anthropicBrain) Chat(ctx context.Context, messages []schema.Message, temperature float64) (string, error) {
	var system []anthropic.TextBlockParam
	params := make([]anthropic.MessageParam, 0, len(messages))

	// system は独立したパラメータ、それ以外は user / assistant メッセージに変換する
	for _, m := range messages {
		switch m.Role {
		case schema.RoleSystem:
			system = append(system, anthropic.NewTextBlock(m.Content))
		case schema.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.F(anthropic.Model(b.cfg.Model)),
		MaxTokens:   anthropic.F(int64(anthropicMaxTokens)),
		Messages:    anthropic.F(params),
		Temperature: anthropic.F(temperature),
	}
	if len(system) > 0 {
		req.System = anthropic.F(system)
	}

	msg, err := b.client.Messages.New(ctx, req)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return "", fmt.Errorf("%w (401). Please check your ANTHROPIC_API_KEY in the .env file", ErrAuth)
		}
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text content", ErrEmptyResponse)
	}
	return sb.String(), nil
}
