package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/tools"
)

// maxLineSize は 1 リクエスト行の最大バイト数。
const maxLineSize = 4 << 20

// Toolset はサーバーが公開するツール層（tools.Registry）。
type Toolset interface {
	Descriptors() []tools.Descriptor
	Invoke(ctx context.Context, name string, args map[string]any) tools.Result
}

// Server は Toolset を行区切りの JSON-RPC 2.0 で公開する。
// 接続ごとに独立したハンドシェイク状態を持ち、Toolset だけを共有する。
type Server struct {
	tools   Toolset
	info    ServerInfo
	logger  *zap.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

// NewServer は Server を作る。logger が nil なら何も出力しない。
func NewServer(ts Toolset, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		tools:  ts,
		info:   ServerInfo{Name: "vulnbot", Version: version},
		logger: logger.Named("mcp"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// connState は 1 接続分のプロトコル状態。
type connState struct {
	initialized bool // initialize リクエストを処理済み
	ready       bool // notifications/initialized を受信済み
}

// ServeConn は r から 1 行ずつリクエストを読み、w に応答を書く。
// r が EOF になるか ctx がキャンセルされると戻る。不正な行は捨てて処理を続ける。
func (s *Server) ServeConn(ctx context.Context, r io.Reader, w io.Writer) error {
	// ctx キャンセル時に読み取りを解除する
	if c, ok := r.(io.Closer); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				_ = c.Close()
			case <-stop:
			}
		}()
	}

	br := bufio.NewReaderSize(r, 64*1024)
	bw := bufio.NewWriter(w)

	var st connState
	for {
		raw, tooLong, readErr := readLine(br)
		if tooLong {
			s.logger.Warn("dropping oversized request", zap.Int("limit", maxLineSize), zap.ByteString("line", truncateLine(raw)))
		} else if line := bytes.TrimSpace(raw); len(line) > 0 {
			if err := s.respond(bw, s.handleLine(ctx, &st, line)); err != nil {
				return err
			}
		}

		if readErr != nil {
			if ctx.Err() != nil || errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrClosedPipe) || errors.Is(readErr, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("mcp: read request: %w", readErr)
		}
	}
}

// readLine は改行までの 1 行を返す。maxLineSize を超えた行は先頭だけ残して
// 改行まで読み捨て、tooLong を立てる。
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize {
				tooLong = true
				line = append(line, chunk[:min(len(chunk), 200)]...)
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

// respond は応答を 1 行で書き出す。resp が nil なら何もしない。
func (s *Server) respond(bw *bufio.Writer, resp *rpcResponse) error {
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		data, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "failed to encode result"))
	}
	data = append(data, '\n')
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("mcp: write response: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("mcp: write response: %w", err)
	}
	return nil
}

// handleLine は 1 行を処理し、返すべき応答を返す。通知と不正な行では nil。
func (s *Server) handleLine(ctx context.Context, st *connState, line []byte) *rpcResponse {
	var msg rpcMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		s.logger.Warn("dropping malformed request", zap.ByteString("line", truncateLine(line)), zap.Error(err))
		return nil
	}

	// id がなければ通知。応答は返さない。
	if len(msg.ID) == 0 {
		s.handleNotification(st, &msg)
		return nil
	}
	if !validID(msg.ID) {
		return errorResponse(json.RawMessage("null"), CodeInvalidRequest, "invalid request: id must be a string or number")
	}
	if msg.JSONRPC != "2.0" {
		return errorResponse(msg.ID, CodeInvalidRequest, `invalid request: jsonrpc must be "2.0"`)
	}
	if msg.Method == "" {
		return errorResponse(msg.ID, CodeInvalidRequest, "invalid request: method is required")
	}

	s.logger.Debug("request", zap.String("method", msg.Method), zap.ByteString("id", msg.ID))

	switch msg.Method {
	case "initialize":
		st.initialized = true
		return resultResponse(msg.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		})
	case "ping":
		return resultResponse(msg.ID, struct{}{})
	}

	if !st.initialized {
		return errorResponse(msg.ID, CodeNotInitialized, "server not initialized: send initialize first")
	}

	if !st.ready {
		s.logger.Debug("request before notifications/initialized", zap.String("method", msg.Method))
	}

	switch msg.Method {
	case "tools/list":
		return resultResponse(msg.ID, map[string]any{"tools": s.tools.Descriptors()})
	case "tools/call":
		return s.handleCall(ctx, &msg)
	default:
		return errorResponse(msg.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func (s *Server) handleNotification(st *connState, msg *rpcMessage) {
	switch msg.Method {
	case "notifications/initialized":
		st.ready = true
		s.logger.Debug("client ready")
	default:
		s.logger.Debug("ignoring notification", zap.String("method", msg.Method))
	}
}

// handleCall はツールを呼び出し、結果を content ブロックに包んで返す。
// ツールのエラーは isError 付きの成功レスポンスになる。
func (s *Server) handleCall(ctx context.Context, msg *rpcMessage) *rpcResponse {
	var p CallParams
	if len(msg.Params) == 0 || json.Unmarshal(msg.Params, &p) != nil {
		return errorResponse(msg.ID, CodeInvalidParams, "invalid params: expected {name, arguments}")
	}
	if p.Name == "" {
		return errorResponse(msg.ID, CodeInvalidParams, "invalid params: name is required")
	}

	res := s.tools.Invoke(ctx, p.Name, p.Arguments)
	if res.IsError() {
		s.logger.Info("tool error", zap.String("tool", p.Name), zap.String("error", res.Err))
	}
	return resultResponse(msg.ID, CallResult{
		Content: []ContentBlock{{Type: "text", Text: res.String()}},
		IsError: res.IsError(),
	})
}

// Serve は ln で接続を受け付け、接続ごとに ServeConn を実行する。
// ctx がキャンセルされるとリスナーと全接続を閉じて戻る。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.closing = true
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		_ = ln.Close()
	}()

	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			stopped := ctx.Err() != nil
			cancel()
			s.wg.Wait()
			if stopped {
				return nil
			}
			return fmt.Errorf("mcp: accept: %w", err)
		}

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			_ = conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				_ = conn.Close()
			}()
			remote := conn.RemoteAddr().String()
			s.logger.Info("client connected", zap.String("remote", remote))
			if err := s.ServeConn(ctx, conn, conn); err != nil {
				s.logger.Warn("connection error", zap.String("remote", remote), zap.Error(err))
			}
			s.logger.Info("client disconnected", zap.String("remote", remote))
		}()
	}
}

// ListenAndServe は addr で TCP を待ち受ける。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mcp: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func resultResponse(id json.RawMessage, result any) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// validID は id が文字列または数値かどうかを返す。
func validID(id json.RawMessage) bool {
	switch id[0] {
	case '"':
		var s string
		return json.Unmarshal(id, &s) == nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		return json.Unmarshal(id, &n) == nil
	}
	return false
}

func truncateLine(line []byte) []byte {
	if len(line) > 200 {
		return line[:200]
	}
	return line
}
