// Package mcp は MCP (Model Context Protocol) 形式の JSON-RPC 2.0 でツール層を公開・利用する。
//
// Server は tools.Registry を 1 行 1 JSON のストリーム（stdio / TCP）で公開し、
// Client は別プロセスのサーバーに接続してツールの列挙・呼び出しを行う。
package mcp

import "encoding/json"

// ProtocolVersion はハンドシェイクで通知する MCP プロトコルバージョン。
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 エラーコード
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeNotInitialized は initialize 前のリクエストに返す。
	CodeNotInitialized = -32002
)

// JSON-RPC 2.0 メッセージ型

// rpcMessage は受信したリクエスト / 通知。ID は呼び出し側の値をそのまま返すため RawMessage で保持する。
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError は JSON-RPC のエラーオブジェクト。
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// ToolSchema は tools/list レスポンスにおけるツール定義
type ToolSchema struct {
	// Server はこのツールが所属するサーバー名（Manager が設定する）
	Server string `json:"-"`
	// Name はツールの一意な名前
	Name string `json:"name"`
	// Description はツールの説明
	Description string `json:"description"`
	// InputSchema はツール引数の JSON Schema
	InputSchema map[string]any `json:"inputSchema"`
}

// CallParams は tools/call の params。
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallResult は tools/call の実行結果
type CallResult struct {
	// Content はレスポンスのコンテンツブロック群
	Content []ContentBlock `json:"content"`
	// IsError はツール実行がエラーだったかどうか
	IsError bool `json:"isError,omitempty"`
}

// Text は最初の text ブロックを返す。
func (r *CallResult) Text() string {
	for _, c := range r.Content {
		if c.Type == "text" {
			return c.Text
		}
	}
	return ""
}

// ContentBlock はレスポンス内の単一コンテンツブロック
type ContentBlock struct {
	// Type はコンテンツの種類（"text" のみ使用）
	Type string `json:"type"`
	// Text はテキストコンテンツ
	Text string `json:"text,omitempty"`
}

// ServerInfo は initialize で返すサーバー情報。
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult は initialize の結果。
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}
