// Package nvd は NVD CVE API 2.0 から脆弱性レコードを取得する。
package nvd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL は NVD CVE API 2.0 のエンドポイント。
	DefaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	// DefaultTimeout は 1 回の API 呼び出しのタイムアウト。
	DefaultTimeout = 10 * time.Second

	userAgent = "VulnBot-CLI/1.0"
)

var (
	// ErrNotFound は NVD に該当 CVE が存在しないことを示す。
	ErrNotFound = errors.New("CVE not found")
	// ErrInvalidID は CVE ID の形式が不正であることを示す。
	ErrInvalidID = errors.New("invalid CVE id")
)

var cveIDRe = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// Config は Client の設定。
type Config struct {
	BaseURL  string
	APIKey   string
	CacheDir string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Client は NVD API クライアント。複数セッションから並行に使ってよい。
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   *Cache
	logger  *zap.Logger
}

// New は Config から Client を作る。logger が nil なら何も出力しない。
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   NewCache(cfg.CacheDir, cfg.CacheTTL),
		logger:  logger.Named("nvd"),
	}
}

// NormalizeID は前後の空白を除き大文字に揃える。
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// GetCVE は CVE レコード（vulnerabilities[0].cve）を返す。
// キャッシュにあれば API を呼ばない。
func (c *Client) GetCVE(ctx context.Context, id string) (json.RawMessage, error) {
	id = NormalizeID(id)
	if !cveIDRe.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	if rec, ok := c.cache.Get(id); ok {
		c.logger.Debug("cache hit", zap.String("cve", id))
		return rec, nil
	}

	rec, err := c.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(id, rec); err != nil {
		// キャッシュ失敗は結果に影響させない
		c.logger.Warn("cache write failed", zap.String("cve", id), zap.Error(err))
	}
	return rec, nil
}

func (c *Client) fetch(ctx context.Context, id string) (json.RawMessage, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("nvd: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("cveId", id)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("nvd: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	c.logger.Debug("fetch", zap.String("cve", id))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API Error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("API Error: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API Error: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("API Error: invalid JSON response")
	}

	cve := gjson.GetBytes(body, "vulnerabilities.0.cve")
	if !cve.Exists() || !cve.IsObject() {
		return nil, ErrNotFound
	}
	return json.RawMessage(cve.Raw), nil
}
