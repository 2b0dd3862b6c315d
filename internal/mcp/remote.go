package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/0x6d61/vulnbot/internal/tools"
)

// ToolClient はツールの列挙と呼び出しができる MCP 接続（Client / Manager）。
type ToolClient interface {
	ListTools(ctx context.Context) ([]ToolSchema, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
}

// RemoteTools はリモートの MCP サーバーをローカルのツール層と同じ形で扱うアダプター。
// 推論ループはツールがどこで動いているかを知らない。
type RemoteTools struct {
	client  ToolClient
	timeout time.Duration

	mu    sync.RWMutex
	descs []tools.Descriptor
	known map[string]bool
}

// NewRemoteTools はツール一覧を取得して RemoteTools を作る。
// timeout が 0 以下なら tools.DefaultTimeout を使う。
func NewRemoteTools(ctx context.Context, client ToolClient, timeout time.Duration) (*RemoteTools, error) {
	if timeout <= 0 {
		timeout = tools.DefaultTimeout
	}
	rt := &RemoteTools{client: client, timeout: timeout}
	if err := rt.Refresh(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

// Refresh はツール一覧を取り直す。
func (rt *RemoteTools) Refresh(ctx context.Context) error {
	schemas, err := rt.client.ListTools(ctx)
	if err != nil {
		return err
	}
	descs := make([]tools.Descriptor, 0, len(schemas))
	known := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		if known[s.Name] {
			continue
		}
		known[s.Name] = true
		descs = append(descs, tools.Descriptor{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}

	rt.mu.Lock()
	rt.descs = descs
	rt.known = known
	rt.mu.Unlock()
	return nil
}

// Descriptors はリモートのツール定義を返す。
func (rt *RemoteTools) Descriptors() []tools.Descriptor {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]tools.Descriptor(nil), rt.descs...)
}

// Invoke はリモートツールを呼び出し、text ブロックを tools.Result に戻す。
// 通信エラーもエラー結果として返し、ループを止めない。
func (rt *RemoteTools) Invoke(ctx context.Context, name string, args map[string]any) tools.Result {
	rt.mu.RLock()
	ok := rt.known[name]
	rt.mu.RUnlock()
	if !ok {
		return tools.ErrorResult(tools.ErrToolNotFound.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()

	res, err := rt.client.CallTool(ctx, name, args)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("remote call %s: %v", name, err))
	}
	return decodeResult(res)
}

// decodeResult はサーバーが返した text を JSON として読み戻す。JSON でなければ文字列として扱う。
func decodeResult(res *CallResult) tools.Result {
	text := res.Text()
	var out tools.Result
	if text == "" || json.Unmarshal([]byte(text), &out) != nil {
		if res.IsError {
			if text == "" {
				text = "remote tool failed"
			}
			return tools.ErrorResult(text)
		}
		return tools.OK(text)
	}
	if res.IsError && !out.IsError() {
		return tools.ErrorResult(text)
	}
	return out
}
