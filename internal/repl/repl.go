package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/0x6d61/vulnbot/internal/agent"
	"github.com/0x6d61/vulnbot/internal/tools"
)

// Asker は 1 ターン分の質問に答える推論ループ（agent.Loop）。
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// REPL は質問を読み、推論ループの進行と回答を表示する。
type REPL struct {
	asker  Asker
	in     LineReader
	out    io.Writer
	events <-chan agent.Event
	tools  []tools.Descriptor
	debug  bool
}

// Option は REPL の設定を変更する。
type Option func(*REPL)

// WithEvents は推論ループのイベントチャネルを接続する。
func WithEvents(ch <-chan agent.Event) Option { return func(r *REPL) { r.events = ch } }

// WithTools は /tools で表示するツール一覧を設定する。
func WithTools(descs []tools.Descriptor) Option { return func(r *REPL) { r.tools = descs } }

// WithDebug は debug イベントを表示する。
func WithDebug(on bool) Option { return func(r *REPL) { r.debug = on } }

// New は REPL を作る。
func New(asker Asker, in LineReader, out io.Writer, opts ...Option) *REPL {
	r := &REPL{asker: asker, in: in, out: out}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run は EOF・/quit・ctx のキャンセルまで対話を続ける。
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "VulnBot interactive session. /help for commands, /quit to exit.")
	r.in.SetPrompt(mainPrompt())

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.in.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, readline.ErrInterrupt) {
				fmt.Fprintln(r.out, "(type /quit to exit)")
				continue
			}
			return fmt.Errorf("repl: read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		_ = r.in.SaveHistory(line)

		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
	}
}

// command は / コマンドを処理する。終了すべきなら true。
func (r *REPL) command(line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, "Commands: /help, /tools, /debug, /quit")
	case "/tools":
		PrintTools(r.out, r.tools)
	case "/debug":
		r.debug = !r.debug
		fmt.Fprintf(r.out, "debug: %v\n", r.debug)
	default:
		errorColor.Fprintf(r.out, "unknown command %s\n", line)
	}
	return false
}

// ask は 1 ターン実行し、実行中のイベントと最終結果を表示する。
func (r *REPL) ask(ctx context.Context, question string) {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	if r.events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.printEvents(stop)
		}()
	}

	answer, err := r.asker.Ask(ctx, question)
	close(stop)
	wg.Wait()

	if err != nil {
		errorColor.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out)
	answerColor.Fprintln(r.out, answer)
	fmt.Fprintln(r.out)
}

// printEvents は stop が閉じられるまでイベントを表示し、最後に残りを吐き出す。
func (r *REPL) printEvents(stop <-chan struct{}) {
	for {
		select {
		case e, ok := <-r.events:
			if !ok {
				return
			}
			r.printEvent(e)
		case <-stop:
			for {
				select {
				case e, ok := <-r.events:
					if !ok {
						return
					}
					r.printEvent(e)
				default:
					return
				}
			}
		}
	}
}

func (r *REPL) printEvent(e agent.Event) {
	switch e.Type {
	case agent.EventLog:
		if e.Source == agent.SourceTool {
			toolColor.Fprintf(r.out, "🔧 %s\n", e.Message)
		} else {
			thoughtColor.Fprintf(r.out, "💭 %s\n", e.Message)
		}
	case agent.EventObservation:
		resultColor.Fprintf(r.out, "📄 %s\n", preview(e.Message, 300))
	case agent.EventDebug:
		if r.debug {
			debugColor.Fprintf(r.out, "[debug] %s\n", e.Message)
		}
	}
}

// PrintTools はツール一覧を表示する。
func PrintTools(w io.Writer, descs []tools.Descriptor) {
	if len(descs) == 0 {
		fmt.Fprintln(w, "No tools available.")
		return
	}
	for _, d := range descs {
		toolColor.Fprintf(w, "%s", d.Name)
		fmt.Fprintf(w, "  %s\n", d.Description)
		for _, p := range requiredArgs(d.InputSchema) {
			fmt.Fprintf(w, "    - %s (required)\n", p)
		}
	}
}

// preview は s を最大 n 文字に切り詰める。
func preview(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
