package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout は 1 回のツール呼び出しに許す最大時間。
const DefaultTimeout = 10 * time.Second

var (
	// ErrToolNotFound は未登録のツール名が指定されたことを示す。
	ErrToolNotFound = errors.New("Tool not found")
	// ErrDuplicateTool は同名ツールの二重登録を示す。
	ErrDuplicateTool = errors.New("tools: tool already registered")
	// ErrEmptyName はツール名が空であることを示す。
	ErrEmptyName = errors.New("tools: tool name must not be empty")
)

// Descriptor はツールの名前・説明・引数スキーマ。起動時に一度だけ宣言する。
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Handler はツールの実装。戻り値は JSON に変換できる値であること。
type Handler func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	desc    Descriptor
	handler Handler
}

// Registry はツール名 → (Descriptor, Handler) の対応を保持する。
// 登録は起動時のみで、以後は複数セッションから読み取り専用で共有される。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
	timeout time.Duration
}

// Option は Registry の設定を変更する。
type Option func(*Registry)

// WithTimeout はツール呼び出しのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry は空の Registry を返す。
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register はツールを登録する。
func (r *Registry) Register(desc Descriptor, h Handler) error {
	if desc.Name == "" {
		return ErrEmptyName
	}
	if h == nil {
		return fmt.Errorf("tools: nil handler for %s", desc.Name)
	}
	if desc.InputSchema == nil {
		desc.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}
	r.entries[desc.Name] = entry{desc: desc, handler: h}
	r.order = append(r.order, desc.Name)
	return nil
}

// Descriptors は登録順に全ツールの Descriptor を返す。
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].desc)
	}
	return out
}

// Has はツールが登録済みかどうかを返す。
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Invoke はツールを呼び出し、結果を必ず Result に変換して返す。
// 未登録・ハンドラーのエラー・panic・タイムアウトはすべて Result.Err になる。
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) Result {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return ErrorResult(ErrToolNotFound.Error())
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	// ハンドラーが ctx を無視しても呼び出し側を待たせないよう、バッファ付きで受ける
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", name, p)}
			}
		}()
		v, err := e.handler(ctx, args)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return ErrorResult(o.err.Error())
		}
		return OK(o.value)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrorResult(fmt.Sprintf("tool %s timed out after %s", name, r.timeout))
		}
		return ErrorResult(fmt.Sprintf("tool %s cancelled: %v", name, ctx.Err()))
	}
}
