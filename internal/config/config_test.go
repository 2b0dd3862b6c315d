package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/vulnbot/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
  temperature: 0.3
agent:
  max_steps: 8
nvd:
  cache_dir: /tmp/nvd
  cache_ttl: 1h
  timeout: 3s
mitre:
  db_path: /var/lib/vulnbot/mitre.db
tools:
  timeout: 15s
mcp:
  servers:
    remote:
      command: vulnbot
      args: ["serve"]
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider: got %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model: got %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("temperature: got %v, want 0.3", cfg.LLM.Temperature)
	}
	if cfg.Agent.MaxSteps != 8 {
		t.Errorf("max_steps: got %d, want 8", cfg.Agent.MaxSteps)
	}
	if cfg.NVD.CacheTTL != time.Hour {
		t.Errorf("cache_ttl: got %v, want 1h", cfg.NVD.CacheTTL)
	}
	if cfg.NVD.Timeout != 3*time.Second {
		t.Errorf("nvd timeout: got %v, want 3s", cfg.NVD.Timeout)
	}
	if cfg.Tools.Timeout != 15*time.Second {
		t.Errorf("tools timeout: got %v, want 15s", cfg.Tools.Timeout)
	}
	if cfg.Mitre.DBPath != "/var/lib/vulnbot/mitre.db" {
		t.Errorf("db_path: got %q", cfg.Mitre.DBPath)
	}
	// 未指定のフィールドにはデフォルトが入る
	if cfg.NVD.BaseURL != "https://services.nvd.nist.gov/rest/json/cves/2.0" {
		t.Errorf("nvd base_url: got %q", cfg.NVD.BaseURL)
	}

	servers := cfg.MCPServers()
	if len(servers) != 1 {
		t.Fatalf("servers: got %d, want 1", len(servers))
	}
	if servers[0].Name != "remote" || servers[0].Command != "vulnbot" || servers[0].Args[0] != "serve" {
		t.Errorf("server: got %+v", servers[0])
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_NVD_KEY", "secret-key")
	t.Setenv("TEST_MCP_TOKEN", "tok")
	path := writeConfig(t, `nvd:
  api_key: "${TEST_NVD_KEY}"
mcp:
  servers:
    intel:
      command: intel-server
      env:
        TOKEN: "${TEST_MCP_TOKEN}"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.NVD.APIKey != "secret-key" {
		t.Errorf("api_key: got %q, want secret-key", cfg.NVD.APIKey)
	}
	if got := cfg.MCP.Servers["intel"].Env["TOKEN"]; got != "tok" {
		t.Errorf("env TOKEN: got %q, want tok", got)
	}
}

func TestLoad_UnsetEnvExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `llm:
  model: "${VULNBOT_TEST_UNSET_VAR}"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Model != "" {
		t.Errorf("model: got %q, want empty", cfg.LLM.Model)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	def := config.Default()
	if cfg.LLM.Provider != def.LLM.Provider || cfg.Agent.MaxSteps != def.Agent.MaxSteps {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.LLM.Provider != "openrouter" {
		t.Errorf("provider: got %q, want openrouter", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature != 0.1 {
		t.Errorf("temperature: got %v, want 0.1", cfg.LLM.Temperature)
	}
	if cfg.Agent.MaxSteps != 5 {
		t.Errorf("max_steps: got %d, want 5", cfg.Agent.MaxSteps)
	}
	if cfg.NVD.CacheTTL != 24*time.Hour {
		t.Errorf("cache_ttl: got %v, want 24h", cfg.NVD.CacheTTL)
	}
	if cfg.NVD.Timeout != 10*time.Second || cfg.Tools.Timeout != 10*time.Second {
		t.Errorf("timeouts: got nvd=%v tools=%v", cfg.NVD.Timeout, cfg.Tools.Timeout)
	}
	if cfg.Mitre.DBPath != filepath.Join("data", "mitre.db") {
		t.Errorf("db_path: got %q", cfg.Mitre.DBPath)
	}
	if len(cfg.MCPServers()) != 0 {
		t.Errorf("servers: got %v", cfg.MCPServers())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VULNBOT_PROVIDER", "ollama")
	t.Setenv("VULNBOT_MODEL", "qwen2.5")
	t.Setenv("NVD_API_KEY", "from-env")
	path := writeConfig(t, `llm:
  provider: openai
  model: gpt-4o
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "qwen2.5" {
		t.Errorf("llm: got %s/%s, want ollama/qwen2.5", cfg.LLM.Provider, cfg.LLM.Model)
	}
	if cfg.NVD.APIKey != "from-env" {
		t.Errorf("api_key: got %q", cfg.NVD.APIKey)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "llm: [unclosed", "failed to parse"},
		{"negative steps", "agent:\n  max_steps: -1\n", "max_steps"},
		{"temperature", "llm:\n  temperature: 3\n", "temperature"},
		{"server without command", "mcp:\n  servers:\n    x:\n      args: [a]\n", "no command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error: got %q, want substring %q", err, tt.want)
			}
		})
	}
}
