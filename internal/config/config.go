// Package config は config/config.yaml の統合設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0x6d61/vulnbot/internal/mcp"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultPath は設定ファイルの既定パス
const DefaultPath = "config/config.yaml"

// LLMConfig は推論に使う LLM の設定
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
}

// AgentConfig は推論ループの設定
type AgentConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

// NVDConfig は NVD API と CVE キャッシュの設定
type NVDConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MitreConfig は ATT&CK テクニック DB の設定
type MitreConfig struct {
	DBPath    string `yaml:"db_path"`
	SourceURL string `yaml:"source_url"`
}

// ToolsConfig はツール呼び出しの設定
type ToolsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig はログ出力の設定。File は TUI モードでのみ使う。
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// MCPConfig は外部 MCP サーバーの定義（キーがサーバー名）
type MCPConfig struct {
	Servers map[string]mcp.ServerConfig `yaml:"servers"`
}

// AppConfig は config/config.yaml の統合設定構造
type AppConfig struct {
	LLM   LLMConfig   `yaml:"llm"`
	Agent AgentConfig `yaml:"agent"`
	NVD   NVDConfig   `yaml:"nvd"`
	Mitre MitreConfig `yaml:"mitre"`
	Tools ToolsConfig `yaml:"tools"`
	Log   LogConfig   `yaml:"log"`
	MCP   MCPConfig   `yaml:"mcp"`
}

// Default はデフォルト値だけの AppConfig を返す。
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults はゼロ値のフィールドにデフォルト値を適用する
func (c *AppConfig) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openrouter"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = 5
	}
	if c.NVD.BaseURL == "" {
		c.NVD.BaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	}
	if c.NVD.CacheDir == "" {
		c.NVD.CacheDir = filepath.Join(homeDir(), "cache", "nvd")
	}
	if c.NVD.CacheTTL == 0 {
		c.NVD.CacheTTL = 24 * time.Hour
	}
	if c.NVD.Timeout == 0 {
		c.NVD.Timeout = 10 * time.Second
	}
	if c.Mitre.DBPath == "" {
		c.Mitre.DBPath = filepath.Join("data", "mitre.db")
	}
	if c.Mitre.SourceURL == "" {
		c.Mitre.SourceURL = "https://raw.githubusercontent.com/mitre/cti/master/enterprise-attack/enterprise-attack.json"
	}
	if c.Tools.Timeout == 0 {
		c.Tools.Timeout = 10 * time.Second
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(homeDir(), "vulnbot.log")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// applyEnv は環境変数による上書きを適用する。
func (c *AppConfig) applyEnv() {
	if v := os.Getenv("VULNBOT_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("VULNBOT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if c.NVD.APIKey == "" {
		c.NVD.APIKey = os.Getenv("NVD_API_KEY")
	}
}

// validate は明らかに不正な値を弾く。
func (c *AppConfig) validate() error {
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("config: agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	for name, s := range c.MCP.Servers {
		if s.Command == "" {
			return fmt.Errorf("config: mcp server %q has no command", name)
		}
	}
	return nil
}

// MCPServers はサーバー定義を名前順のスライスで返す。Name にはキーが入る。
func (c *AppConfig) MCPServers() []mcp.ServerConfig {
	names := make([]string, 0, len(c.MCP.Servers))
	for name := range c.MCP.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]mcp.ServerConfig, 0, len(names))
	for _, name := range names {
		s := c.MCP.Servers[name]
		s.Name = name
		out = append(out, s)
	}
	return out
}

// Load は config/config.yaml を読み込む。
// ${VAR} 環境変数をファイル全体で展開してからパースする。
// ファイルが存在しない場合はデフォルトの AppConfig を返す。
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(expandEnvString(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// homeDir はデータディレクトリ ~/.vulnbot を返す。ホームが取れなければカレントの .vulnbot。
func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".vulnbot")
	}
	return ".vulnbot"
}

// expandEnvString は文字列内の ${VAR} をホスト環境変数で展開する
func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
