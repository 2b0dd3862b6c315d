package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0x6d61/vulnbot/pkg/schema"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	openAIChatCompletePath   = "/v1/chat/completions"

	openRouterReferer = "https://github.com/vuln-bot"
	openRouterTitle   = "VulnBot CLI"
)

// openAIBrain は OpenAI 互換 Chat Completions API を使う Brain 実装。
// OpenRouter・OpenAI 本家・Ollama で共用する。
type openAIBrain struct {
	cfg    Config
	client *http.Client
}

func newOpenAIBrain(cfg Config) (*openAIBrain, error) {
	return &openAIBrain{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (b *openAIBrain) Provider() string { return string(b.cfg.Provider) }

func (b *openAIBrain) endpoint() string {
	baseURL := b.cfg.BaseURL
	if baseURL == "" {
		if b.cfg.Provider == ProviderOpenRouter {
			baseURL = defaultOpenRouterBaseURL
		} else {
			baseURL = defaultOpenAIBaseURL
		}
	}
	// BaseURL が既に /v1 で終わっている場合は /chat/completions のみ付加
	// OpenRouter: https://openrouter.ai/api/v1 → .../api/v1/chat/completions
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + openAIChatCompletePath
}

func (b *openAIBrain) Chat(ctx context.Context, messages []schema.Message, temperature float64) (string, error) {
	body := map[string]any{
		"model":       b.cfg.Model,
		"messages":    messages,
		"temperature": temperature,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	}
	if b.cfg.Provider == ProviderOpenRouter {
		req.Header.Set("HTTP-Referer", openRouterReferer)
		req.Header.Set("X-Title", openRouterTitle)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrConnection, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w (401). Please check your %s in the .env file", ErrAuth, tokenEnv(b.cfg.Provider))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: API error %d: %s", ErrConnection, resp.StatusCode, string(respBytes))
	}

	return parseOpenAIResponse(respBytes)
}

// openAIResponse は Chat Completions API のレスポンス構造体（必要最小限）。
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func parseOpenAIResponse(data []byte) (string, error) {
	var resp openAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrEmptyResponse, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content", ErrEmptyResponse)
	}
	return content, nil
}
