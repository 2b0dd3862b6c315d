package brain

import (
	"context"

	"github.com/0x6d61/vulnbot/pkg/schema"
)

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// ollamaBrain は Ollama の OpenAI 互換 API を使う Brain 実装。
//
// Ollama の OpenAI 互換 API:
//
//	POST <base_url>/v1/chat/completions
//	Authorization ヘッダーは無視される（認証不要）
type ollamaBrain struct {
	inner *openAIBrain
}

func newOllamaBrain(cfg Config) (*ollamaBrain, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaBaseURL
	}
	inner, err := newOpenAIBrain(cfg)
	if err != nil {
		return nil, err
	}
	return &ollamaBrain{inner: inner}, nil
}

// Provider はプロバイダー名を返す。
func (b *ollamaBrain) Provider() string { return string(ProviderOllama) }

// Chat は OpenAI 互換 API 経由で委譲する。
func (b *ollamaBrain) Chat(ctx context.Context, messages []schema.Message, temperature float64) (string, error) {
	return b.inner.Chat(ctx, messages, temperature)
}
