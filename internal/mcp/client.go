package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"
)

// ErrClientClosed はクローズ済みのクライアントを使ったことを示す。
var ErrClientClosed = errors.New("mcp: client is closed")

// closeWait はサブプロセスの終了を待つ最大時間。超えたら kill する。
const closeWait = 5 * time.Second

// Client は MCP サーバーと行区切り JSON-RPC 2.0 で通信する。
type Client struct {
	conn   *jsonrpc2.Conn
	cmd    *exec.Cmd // サブプロセスモード時のみ非 nil
	logger *zap.Logger
	closed atomic.Bool
	server ServerInfo
}

// NewClient は既に接続済みのストリームからクライアントを作る。
// Initialize を呼ぶまでツールは使えない。
func NewClient(ctx context.Context, rwc io.ReadWriteCloser, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{logger: logger.Named("mcp-client")}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{})
	c.conn = jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(c.handle))
	return c
}

// handle はサーバーから来たリクエスト / 通知を処理する。クライアントは何も公開しない。
func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if req.Notif {
		c.logger.Debug("server notification", zap.String("method", req.Method))
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
}

// stdioConn はサブプロセスの stdin / stdout を 1 本のストリームにまとめる。
type stdioConn struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (s *stdioConn) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *stdioConn) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *stdioConn) Close() error {
	errIn := s.stdin.Close()
	errOut := s.stdout.Close()
	if errIn != nil {
		return errIn
	}
	return errOut
}

// NewStdioClient は MCP サーバーをサブプロセスとして起動し、その stdio に接続する。
func NewStdioClient(ctx context.Context, cfg ServerConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp: server %q has no command", cfg.Name)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...) // nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command -- command は設定ファイルから読み込まれる（ユーザー入力ではない）
	cmd.Env = cfg.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("mcp: failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("mcp: failed to start server %s: %w", cfg.Command, err)
	}

	c := NewClient(ctx, &stdioConn{stdin: stdin, stdout: stdout}, logger)
	c.cmd = cmd
	return c, nil
}

// Dial は TCP で待ち受けている MCP サーバーに接続する。
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mcp: dial %s: %w", addr, err)
	}
	return NewClient(ctx, conn, logger), nil
}

// Initialize は MCP プロトコルのハンドシェイクを行う。
// initialize リクエスト → レスポンス受信 → notifications/initialized 通知の順に実行する。
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (*InitializeResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	var res InitializeResult
	err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("mcp: initialize failed: %w", err)
	}
	c.server = res.ServerInfo

	if err := c.conn.Notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, fmt.Errorf("mcp: failed to send initialized notification: %w", err)
	}
	c.logger.Debug("initialized",
		zap.String("server", res.ServerInfo.Name),
		zap.String("version", res.ServerInfo.Version),
		zap.String("protocol", res.ProtocolVersion))
	return &res, nil
}

// ServerInfo は Initialize で受け取ったサーバー情報を返す。
func (c *Client) ServerInfo() ServerInfo { return c.server }

// Ping は接続の生存確認を行う。
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	var res json.RawMessage
	if err := c.call(ctx, "ping", nil, &res); err != nil {
		return fmt.Errorf("mcp: ping failed: %w", err)
	}
	return nil
}

// ListTools は MCP サーバーからツール一覧を取得する
func (c *Client) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	var resp struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &resp); err != nil {
		return nil, fmt.Errorf("mcp: tools/list failed: %w", err)
	}
	return resp.Tools, nil
}

// CallTool は MCP サーバーのツールを呼び出す。
// ツール自体の失敗は error ではなく CallResult.IsError で返る。
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if args == nil {
		args = map[string]any{}
	}

	var res CallResult
	if err := c.call(ctx, "tools/call", CallParams{Name: name, Arguments: args}, &res); err != nil {
		return nil, fmt.Errorf("mcp: tools/call %s failed: %w", name, err)
	}
	return &res, nil
}

// call は conn.Call のエラーを RPCError に変換する。
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	err := c.conn.Call(ctx, method, params, result)
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Code: int(rpcErr.Code), Message: rpcErr.Message}
	}
	if errors.Is(err, jsonrpc2.ErrClosed) {
		return ErrClientClosed
	}
	return err
}

// Done は接続が切れると閉じられるチャネルを返す。
func (c *Client) Done() <-chan struct{} { return c.conn.DisconnectNotify() }

// Close は接続を閉じ、サブプロセスがあれば終了を待つ。
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	err := c.conn.Close()
	if errors.Is(err, jsonrpc2.ErrClosed) {
		err = nil
	}

	if c.cmd != nil {
		done := make(chan error, 1)
		go func() {
			done <- c.cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(closeWait):
			c.logger.Warn("server did not exit, killing", zap.Int("pid", c.cmd.Process.Pid))
			_ = c.cmd.Process.Kill()
			<-done
		}
	}
	return err
}
