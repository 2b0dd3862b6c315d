// Package agent は LLM とツールを接続する ReAct ループを提供する。
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/brain"
	"github.com/0x6d61/vulnbot/internal/session"
	"github.com/0x6d61/vulnbot/internal/tools"
	"github.com/0x6d61/vulnbot/pkg/schema"
)

// Toolbox はループから見たツール層。プロセス内の tools.Registry と
// JSON-RPC 越しの mcp.RemoteTools の両方がこれを満たす。
type Toolbox interface {
	Descriptors() []tools.Descriptor
	Invoke(ctx context.Context, name string, args map[string]any) tools.Result
}

// Loop は Brain・Toolbox・UI を接続するオーケストレーター。
//
// ループの流れ:
//
//	Brain.Chat(snapshot) → ParseAction
//	execute_tool → Toolbox.Invoke → "Observation: <json>" を user として追記 → 次のループへ
//	final_answer → content を返して終了
//	ディレクティブなし → 生テキストを回答として終了
//
// Loop は 1 セッションを専有する。同じ Loop の Ask を並行に呼ばないこと。
type Loop struct {
	br          brain.Brain
	toolbox     Toolbox
	sess        *session.Session
	temperature float64
	events      chan<- Event
	logger      *zap.Logger
}

// Option は Loop の設定を変更する。
type Option func(*loopOptions)

type loopOptions struct {
	maxSteps     int
	temperature  float64
	systemPrompt string
	events       chan<- Event
	logger       *zap.Logger
}

// WithMaxSteps は 1 ターンあたりのツール呼び出し上限を設定する。
func WithMaxSteps(n int) Option { return func(o *loopOptions) { o.maxSteps = n } }

// WithTemperature はサンプリング温度を設定する。
func WithTemperature(t float64) Option { return func(o *loopOptions) { o.temperature = t } }

// WithSystemPrompt はツール一覧から生成するシステムプロンプトを置き換える。
func WithSystemPrompt(p string) Option { return func(o *loopOptions) { o.systemPrompt = p } }

// WithEvents は UI へイベントを送るチャネルを設定する。
func WithEvents(ch chan<- Event) Option { return func(o *loopOptions) { o.events = ch } }

// WithLogger はロガーを設定する。
func WithLogger(l *zap.Logger) Option { return func(o *loopOptions) { o.logger = l } }

// NewLoop は新しいセッションを持つ Loop を構築する。
func NewLoop(br brain.Brain, toolbox Toolbox, opts ...Option) *Loop {
	o := loopOptions{
		maxSteps:    session.DefaultMaxSteps,
		temperature: brain.DefaultTemperature,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.systemPrompt == "" {
		o.systemPrompt = brain.BuildSystemPrompt(toolbox.Descriptors())
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	sess := session.New(o.systemPrompt, o.maxSteps)
	return &Loop{
		br:          br,
		toolbox:     toolbox,
		sess:        sess,
		temperature: o.temperature,
		events:      o.events,
		logger:      o.logger.Named("agent").With(zap.String("session", sess.ID())),
	}
}

// Session はループが保持するセッションを返す。
func (l *Loop) Session() *session.Session { return l.sess }

// Ask はユーザーの質問を 1 ターン処理し、最終回答を返す。
//
// 戻り値のエラーは *ModelCallError, *UnknownActionError, ErrBudgetExceeded（%w でラップ）,
// または ctx のエラー。ツールのエラーは Observation としてモデルに返るため、ここには現れない。
func (l *Loop) Ask(ctx context.Context, question string) (string, error) {
	l.sess.BeginTurn(question)
	l.logger.Debug("turn started", zap.String("question", question))

	for {
		if err := ctx.Err(); err != nil {
			return "", l.fail(err)
		}

		l.emit(Event{Type: EventDebug, Source: SourceSystem, Step: l.sess.Steps(),
			Message: fmt.Sprintf("Sending request to LLM (step %d)...", l.sess.Steps())})

		reply, err := l.br.Chat(ctx, l.sess.Snapshot(), l.temperature)
		if err != nil {
			return "", l.fail(&ModelCallError{Err: err})
		}
		l.sess.Append(schema.Message{Role: schema.RoleAssistant, Content: reply})
		l.emit(Event{Type: EventDebug, Source: SourceAI, Message: "LLM response: " + preview(reply, 100)})

		action, ok := brain.ParseAction(reply)
		if !ok {
			l.emit(Event{Type: EventDebug, Source: SourceSystem, Message: "No JSON action found. Treating as final answer."})
			return l.answer(reply), nil
		}
		if action.Thought != "" {
			l.emit(Event{Type: EventLog, Source: SourceAI, Message: action.Thought})
		}

		switch action.Action {
		case schema.ActionFinalAnswer:
			content := action.Content
			if strings.TrimSpace(content) == "" {
				content = reply
			}
			return l.answer(content), nil

		case schema.ActionExecuteTool:
			l.execTool(ctx, action)
			if l.sess.Exhausted() {
				return "", l.fail(fmt.Errorf("%w (%d tool steps without a final answer)", ErrBudgetExceeded, l.sess.Steps()))
			}

		default:
			return "", l.fail(&UnknownActionError{Action: string(action.Action)})
		}
	}
}

// execTool はツールを呼び出し、Observation を履歴に追記してステップを進める。
func (l *Loop) execTool(ctx context.Context, action *schema.Action) {
	args, _ := json.Marshal(action.Arguments)
	l.emit(Event{Type: EventLog, Source: SourceTool, ToolName: action.ToolName,
		Message: fmt.Sprintf("Executing %s with args %s...", action.ToolName, args)})

	var result tools.Result
	if action.ArgumentsError != "" {
		result = tools.ErrorResult(action.ArgumentsError)
	} else {
		result = l.toolbox.Invoke(ctx, action.ToolName, action.Arguments)
	}
	observation := result.String()
	if result.IsError() {
		l.logger.Warn("tool error", zap.String("tool", action.ToolName), zap.String("error", result.Err))
	}

	l.sess.Append(schema.Message{Role: schema.RoleUser, Content: "Observation: " + observation})
	l.sess.IncrementStep()
	l.emit(Event{Type: EventObservation, Source: SourceTool, ToolName: action.ToolName,
		Step: l.sess.Steps(), Message: observation})
}

func (l *Loop) answer(content string) string {
	l.emit(Event{Type: EventAnswer, Source: SourceAI, Message: content})
	l.logger.Debug("turn finished", zap.Int("steps", l.sess.Steps()))
	return content
}

func (l *Loop) fail(err error) error {
	l.emit(Event{Type: EventError, Source: SourceSystem, Message: err.Error()})
	l.logger.Warn("turn failed", zap.Error(err), zap.Int("steps", l.sess.Steps()))
	return err
}

// emit は Event を UI に送る（ノンブロッキング、バッファが溢れたら捨てる）。
func (l *Loop) emit(e Event) {
	if l.events == nil {
		return
	}
	e.SessionID = l.sess.ID()
	select {
	case l.events <- e:
	default:
		// UI が処理しきれない場合は捨てる（ログのドロップは許容）
	}
}

// preview は s を最大 n 文字に切り詰める。
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
