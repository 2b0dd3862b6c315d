package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager は複数の MCP サーバーを管理し、ツールの集約・ルーティングを行う。
// 同名のツールは先に起動したサーバーのものが優先される。
type Manager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client      // サーバー名 → クライアント
	order   []string                // 起動順のサーバー名
	tools   map[string][]ToolSchema // サーバー名 → ツール一覧
	routes  map[string]string       // ツール名 → サーバー名
}

// NewManager は空の Manager を返す。
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:  logger.Named("mcp"),
		clients: make(map[string]*Client),
		tools:   make(map[string][]ToolSchema),
		routes:  make(map[string]string),
	}
}

// StartAll は全サーバーを起動し、Initialize と ListTools を実行する。
// 個別のサーバー起動に失敗した場合は警告を出して続行する。1 台も起動できなければエラー。
func (m *Manager) StartAll(ctx context.Context, configs []ServerConfig, clientVersion string) error {
	var errs []error
	for _, cfg := range configs {
		client, err := NewStdioClient(ctx, cfg, m.logger)
		if err != nil {
			m.logger.Warn("failed to start server", zap.String("server", cfg.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if err := m.Add(ctx, cfg.Name, client, clientVersion); err != nil {
			errs = append(errs, err)
		}
	}
	if len(configs) > 0 && m.Len() == 0 {
		return fmt.Errorf("mcp: no server started: %w", errors.Join(errs...))
	}
	return nil
}

// Add は接続済みクライアントのハンドシェイクとツール取得を行い、管理下に置く。
// 失敗した場合クライアントは閉じられる。
func (m *Manager) Add(ctx context.Context, name string, client *Client, clientVersion string) error {
	if _, err := client.Initialize(ctx, "vulnbot", clientVersion); err != nil {
		m.logger.Warn("failed to initialize server", zap.String("server", name), zap.Error(err))
		_ = client.Close()
		return err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		m.logger.Warn("failed to list tools", zap.String("server", name), zap.Error(err))
		_ = client.Close()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.clients[name]; ok {
		_ = old.Close()
		m.removeLocked(name)
	}
	for i := range tools {
		tools[i].Server = name
		if owner, taken := m.routes[tools[i].Name]; taken {
			m.logger.Warn("duplicate tool name, keeping first",
				zap.String("tool", tools[i].Name), zap.String("kept", owner), zap.String("ignored", name))
			continue
		}
		m.routes[tools[i].Name] = name
	}
	m.clients[name] = client
	m.order = append(m.order, name)
	m.tools[name] = tools
	m.logger.Info("server ready", zap.String("server", name), zap.Int("tools", len(tools)))
	return nil
}

func (m *Manager) removeLocked(name string) {
	delete(m.clients, name)
	delete(m.tools, name)
	for tool, owner := range m.routes {
		if owner == name {
			delete(m.routes, tool)
		}
	}
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len は稼働中のサーバー数を返す。
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// ListTools は全サーバーのツールを起動順に集約して返す。重複名は最初のものだけ。
func (m *Manager) ListTools(_ context.Context) ([]ToolSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ToolSchema
	for _, name := range m.order {
		for _, t := range m.tools[name] {
			if m.routes[t.Name] == name {
				all = append(all, t)
			}
		}
	}
	return all, nil
}

// CallTool はツール名からサーバーを引き、そのサーバーのツールを呼び出す。
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	m.mu.RLock()
	server, ok := m.routes[name]
	client := m.clients[server]
	m.mu.RUnlock()
	if !ok || client == nil {
		return nil, fmt.Errorf("mcp: no server provides tool %q", name)
	}
	return client.CallTool(ctx, name, args)
}

// Close は全 MCP サーバーとの接続を閉じる
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, name := range m.order {
		if err := m.clients[name].Close(); err != nil {
			m.logger.Warn("failed to close server", zap.String("server", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	m.clients = make(map[string]*Client)
	m.tools = make(map[string][]ToolSchema)
	m.routes = make(map[string]string)
	m.order = nil
	return errors.Join(errs...)
}
