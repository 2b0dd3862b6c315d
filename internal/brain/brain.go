// Package brain は LLM クライアントを共通インターフェースで抽象化する。
// OpenRouter（デフォルト）・OpenAI・Anthropic・Ollama をサポートする。
package brain

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/0x6d61/vulnbot/pkg/schema"
)

// Provider は LLM プロバイダーを識別する。
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOllama     Provider = "ollama"
)

// DefaultTemperature はツール呼び出しの安定性を優先した低めのサンプリング温度。
const DefaultTemperature = 0.1

// AuthType は認証方式を識別する。
type AuthType string

const (
	// AuthAPIKey は通常の API キー認証。
	AuthAPIKey AuthType = "api_key"
	// AuthOAuthToken は Anthropic の OAuth トークン認証（Authorization: Bearer）。
	AuthOAuthToken AuthType = "oauth_token"
	// AuthNone は認証なし（Ollama）。
	AuthNone AuthType = "none"
)

var (
	// ErrAuth は認証失敗（HTTP 401）。
	ErrAuth = errors.New("brain: authentication failed")
	// ErrEmptyResponse は応答が空、または choices / content を含まないことを示す。
	ErrEmptyResponse = errors.New("brain: empty response from LLM")
	// ErrConnection は LLM API への接続・通信の失敗。
	ErrConnection = errors.New("brain: LLM API connection error")
)

// Config は Brain の設定を保持する。
type Config struct {
	Provider Provider
	Model    string
	AuthType AuthType
	Token    string
	BaseURL  string // テスト時にモックサーバーを指定するために使う（空なら公式エンドポイント）
}

// Brain は LLM との対話インターフェース。
type Brain interface {
	// Chat は会話履歴全体を渡し、アシスタントの応答テキストを 1 つ返す。
	Chat(ctx context.Context, messages []schema.Message, temperature float64) (string, error)
	// Provider はプロバイダー名を返す。
	Provider() string
}

// New は Config に基づいて適切な Brain 実装を返す。
func New(cfg Config) (Brain, error) {
	if cfg.Token == "" && cfg.Provider != ProviderOllama {
		return nil, fmt.Errorf("brain: token must not be empty (set %s)", tokenEnv(cfg.Provider))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenRouter:
		return newOpenAIBrain(cfg)
	case ProviderOpenAI:
		return newOpenAIBrain(cfg)
	case ProviderAnthropic:
		return newAnthropicBrain(cfg)
	case ProviderOllama:
		return newOllamaBrain(cfg)
	default:
		return nil, fmt.Errorf("brain: unknown provider %q (supported: openrouter, openai, anthropic, ollama)", cfg.Provider)
	}
}

// DefaultModel はプロバイダーごとのデフォルトモデルを返す。
func DefaultModel(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-latest"
	case ProviderOllama:
		return "llama3.1"
	default:
		return "deepseek/deepseek-r1:free"
	}
}

func tokenEnv(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOllama:
		return "OLLAMA_BASE_URL"
	default:
		return "OPENROUTER_API_KEY"
	}
}

// ConfigHint は LoadConfig へのヒント（プロバイダー・モデル）を保持する。
// 認証情報は環境変数から自動解決する。
type ConfigHint struct {
	Provider Provider
	Model    string
	BaseURL  string
}

// LoadConfig は環境変数から認証情報を解決して Config を返す。
//
// 解決優先順位:
//   - openrouter: OPENROUTER_API_KEY（モデルは OPENROUTER_MODEL でも指定可）
//   - openai:     OPENAI_API_KEY
//   - anthropic:  ANTHROPIC_API_KEY → ANTHROPIC_AUTH_TOKEN
//   - ollama:     認証なし。OLLAMA_BASE_URL でエンドポイントを上書き
func LoadConfig(hint ConfigHint) (Config, error) {
	if hint.Provider == "" {
		hint.Provider = ProviderOpenRouter
	}
	cfg := Config{
		Provider: hint.Provider,
		Model:    hint.Model,
		BaseURL:  hint.BaseURL,
	}

	switch hint.Provider {
	case ProviderOpenRouter:
		if cfg.Model == "" {
			cfg.Model = os.Getenv("OPENROUTER_MODEL")
		}
		if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Token = key
			cfg.AuthType = AuthAPIKey
			return withDefaultModel(cfg), nil
		}
		return cfg, errors.New(
			"brain: OpenRouter 認証情報が見つかりません\n" +
				"  export OPENROUTER_API_KEY=sk-or-...  (または .env に記述)",
		)

	case ProviderOpenAI:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Token = key
			cfg.AuthType = AuthAPIKey
			return withDefaultModel(cfg), nil
		}
		return cfg, errors.New(
			"brain: OpenAI 認証情報が見つかりません\n" +
				"  export OPENAI_API_KEY=sk-...",
		)

	case ProviderAnthropic:
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.Token = key
			cfg.AuthType = AuthAPIKey
			return withDefaultModel(cfg), nil
		}
		if token := os.Getenv("ANTHROPIC_AUTH_TOKEN"); token != "" {
			cfg.Token = token
			cfg.AuthType = AuthOAuthToken
			return withDefaultModel(cfg), nil
		}
		return cfg, errors.New(
			"brain: Anthropic 認証情報が見つかりません\n" +
				"  export ANTHROPIC_API_KEY=sk-ant-api03-...",
		)

	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaBaseURL
		}
		cfg.AuthType = AuthNone
		return withDefaultModel(cfg), nil

	default:
		return cfg, fmt.Errorf("brain: unknown provider %q", hint.Provider)
	}
}

func withDefaultModel(cfg Config) Config {
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	return cfg
}
