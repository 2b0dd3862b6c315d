// Package tui implements the Bubble Tea chat console for VulnBot.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/vulnbot/internal/agent"
	"github.com/0x6d61/vulnbot/internal/tools"
)

// FocusState tracks which pane has keyboard focus.
type FocusState int

const (
	FocusInput    FocusState = iota // bottom: input bar
	FocusViewport                   // main pane: session log
)

// InputMode は入力バーの動作モード。
type InputMode int

const (
	InputNormal      InputMode = iota // 通常のテキスト入力
	InputConfirmQuit                  // 終了確認ダイアログ
)

// Asker は 1 ターン分の質問に答える推論ループ（agent.Loop）。
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// AgentEventMsg は Agent ループから届く Bubble Tea メッセージ。
type AgentEventMsg agent.Event

// answerMsg は Ask の完了を知らせる。
type answerMsg struct {
	text string
	err  error
}

// AgentEventCmd は次の Agent イベントを待つ Bubble Tea コマンド。
// チャネルが閉じられたら購読をやめる。
func AgentEventCmd(ch <-chan agent.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return AgentEventMsg(e)
	}
}

// Model is the root Bubble Tea model for the VulnBot console.
type Model struct {
	width     int
	height    int
	ready     bool
	focus     FocusState
	inputMode InputMode
	viewport  viewport.Model
	input     textinput.Model
	spinner   spinner.Model

	blocks    []*DisplayBlock
	expanded  bool // Observation の折りたたみ解除
	showDebug bool // debug イベントを表示する
	busy      bool // Ask 実行中
	thinking  *DisplayBlock

	ctx    context.Context
	cancel context.CancelFunc
	asker  Asker
	events <-chan agent.Event
	tools  []tools.Descriptor
	now    func() time.Time

	// ステータスバー表示用
	Provider  string
	ModelName string
}

// Option は Model の設定を変更する。
type Option func(*Model)

// WithEvents は Agent ループのイベントチャネルを接続する。
func WithEvents(ch <-chan agent.Event) Option { return func(m *Model) { m.events = ch } }

// WithTools は /tools で表示するツール一覧を設定する。
func WithTools(descs []tools.Descriptor) Option { return func(m *Model) { m.tools = descs } }

// WithModelInfo はステータスバーに表示するプロバイダーとモデルを設定する。
func WithModelInfo(provider, model string) Option {
	return func(m *Model) {
		m.Provider = provider
		m.ModelName = model
	}
}

// WithDebug は debug イベントの表示を切り替える。
func WithDebug(on bool) Option { return func(m *Model) { m.showDebug = on } }

// New は Model を初期化する。ctx がキャンセルされると実行中の Ask も中断される。
func New(ctx context.Context, asker Asker, opts ...Option) Model {
	ctx, cancel := context.WithCancel(ctx)

	ti := textinput.New()
	ti.Placeholder = "Ask about a CVE, an ATT&CK technique, or /help"
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		focus:   FocusInput,
		input:   ti,
		spinner: sp,
		ctx:     ctx,
		cancel:  cancel,
		asker:   asker,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.blocks = append(m.blocks, newBlock(BlockSystem, "VulnBot ready. Type a question, /help for commands."))
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.events != nil {
		cmds = append(cmds, AgentEventCmd(m.events))
	}
	return tea.Batch(cmds...)
}

// Run は Model を全画面で起動し、終了するまでブロックする。
func Run(m Model) error {
	defer m.cancel()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}

// askCmd は Ask を Bubble Tea の外（別 goroutine）で実行する。
func (m Model) askCmd(question string) tea.Cmd {
	ctx, asker := m.ctx, m.asker
	return func() tea.Msg {
		text, err := asker.Ask(ctx, question)
		return answerMsg{text: text, err: err}
	}
}

// rebuildViewport regenerates the viewport content from the display blocks.
func (m *Model) rebuildViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderBlocks(m.blocks, m.viewport.Width, m.expanded, m.spinner.View()))
	m.viewport.GotoBottom()
}

// addBlock は表示ブロックを追加する。応答待ちのスピナーは常に末尾に残す。
func (m *Model) addBlock(b *DisplayBlock) {
	n := len(m.blocks)
	if m.thinking != nil && !m.thinking.Done && n > 0 && m.blocks[n-1] == m.thinking {
		m.blocks = append(m.blocks[:n-1], b, m.thinking)
		return
	}
	m.blocks = append(m.blocks, b)
}

// lastToolBlock は name のツールの直近のブロックを返す。
func (m *Model) lastToolBlock(name string) *DisplayBlock {
	for i := len(m.blocks) - 1; i >= 0; i-- {
		b := m.blocks[i]
		if b.Type == BlockUserInput {
			return nil
		}
		if b.Type == BlockTool && b.ToolName == name && len(b.Output) == 0 {
			return b
		}
	}
	return nil
}
