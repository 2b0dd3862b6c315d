package mcp

import (
	"os"
	"sort"
)

// ServerConfig は設定ファイルにおける MCP サーバー定義
type ServerConfig struct {
	// Name はサーバーの識別名
	Name string `yaml:"name"`
	// Command は起動するコマンド
	Command string `yaml:"command"`
	// Args はコマンドライン引数
	Args []string `yaml:"args"`
	// Env はサーバーに渡す追加の環境変数（${VAR} は設定読み込み時に展開済み）
	Env map[string]string `yaml:"env,omitempty"`
}

// Environ はホスト環境に Env を追加した "KEY=VALUE" のリストを返す。
// Env が空なら nil（ホスト環境をそのまま引き継ぐ）。
func (s ServerConfig) Environ() []string {
	if len(s.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}
