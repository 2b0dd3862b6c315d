package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/vulnbot/internal/agent"
)

const helpText = `Commands:
  /help    show this help
  /tools   list available tools
  /debug   toggle debug log lines
  /clear   clear the screen (the conversation is kept)
  /quit    exit
Keys: [Tab] switch pane  [Ctrl+O] expand tool output  [Ctrl+C] quit`

// Update implements tea.Model and routes all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg.Width, msg.Height)
		m.ready = true
		m.rebuildViewport()
		return m, nil

	// スピナーティックメッセージ処理（応答待ちアニメーション用）
	case spinner.TickMsg:
		if m.busy {
			m.spinner, cmd = m.spinner.Update(msg)
			m.rebuildViewport()
			return m, cmd
		}
		return m, nil

	// Agent ループからのイベントを処理する。
	case AgentEventMsg:
		m.handleAgentEvent(agent.Event(msg))
		m.rebuildViewport()
		// 次のイベントを待つコマンドを再登録（Bubble Tea の非同期ループパターン）
		if m.events != nil {
			return m, AgentEventCmd(m.events)
		}
		return m, nil

	case answerMsg:
		m.handleAnswer(msg)
		m.rebuildViewport()
		return m, nil

	case tea.KeyMsg:
		// Quit confirmation dialog intercepts all keys when active.
		if m.inputMode == InputConfirmQuit {
			return m.handleConfirmQuitKey(msg)
		}

		// Ctrl+C: show confirmation dialog instead of quitting immediately.
		if msg.String() == "ctrl+c" {
			m.inputMode = InputConfirmQuit
			return m, nil
		}

		// Global: Tab cycles focus between panes.
		if msg.String() == "tab" {
			m.cycleFocus()
			return m, nil
		}

		// Global: Ctrl+O toggles observation folding.
		if msg.String() == "ctrl+o" {
			m.expanded = !m.expanded
			m.rebuildViewport()
			return m, nil
		}

		switch m.focus {
		case FocusViewport:
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)

		case FocusInput:
			if msg.String() == "enter" {
				cmds = append(cmds, m.submitInput())
			} else {
				m.input, cmd = m.input.Update(msg)
				cmds = append(cmds, cmd)
			}
		}
	}

	return m, tea.Batch(cmds...)
}

// handleConfirmQuitKey processes keys while the quit dialog is shown.
func (m Model) handleConfirmQuitKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "ctrl+c":
		m.cancel()
		return m, tea.Quit
	case "n", "N", "esc":
		m.inputMode = InputNormal
	}
	return m, nil
}

// handleResize recomputes all component dimensions to fit the new terminal size.
func (m *Model) handleResize(w, h int) {
	m.width = w
	m.height = h

	const (
		statusBarH = 1
		inputAreaH = 3 // 1 line + rounded border top/bottom
		paneBorder = 2 // top + bottom borders for the log pane
	)

	vpH := h - statusBarH - inputAreaH - paneBorder
	if vpH < 4 {
		vpH = 4
	}
	vpW := w - 4 // subtract 2 borders + 2 side margins
	if vpW < 10 {
		vpW = 10
	}

	if !m.ready {
		m.viewport = viewport.New(vpW, vpH)
	} else {
		m.viewport.Width = vpW
		m.viewport.Height = vpH
	}
	m.input.Width = w - 8
}

// cycleFocus toggles focus between Viewport and Input.
func (m *Model) cycleFocus() {
	switch m.focus {
	case FocusViewport:
		m.focus = FocusInput
		m.input.Focus()
	case FocusInput:
		m.focus = FocusViewport
		m.input.Blur()
	}
}

// submitInput は入力を処理する。質問なら Ask を開始するコマンドを返す。
func (m *Model) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()

	if strings.HasPrefix(text, "/") {
		cmd := m.handleCommand(text)
		m.rebuildViewport()
		return cmd
	}

	if m.busy {
		m.addBlock(newBlock(BlockSystem, "Still working on the previous question..."))
		m.rebuildViewport()
		return nil
	}
	if m.asker == nil {
		m.addBlock(newBlock(BlockError, "no agent connected"))
		m.rebuildViewport()
		return nil
	}

	m.addBlock(newBlock(BlockUserInput, text))
	m.thinking = newThinkingBlock(m.now())
	m.addBlock(m.thinking)
	m.busy = true
	m.rebuildViewport()
	return tea.Batch(m.askCmd(text), m.spinner.Tick)
}

// handleCommand は / で始まるコマンドを処理する。
func (m *Model) handleCommand(text string) tea.Cmd {
	name := strings.Fields(text)[0]
	switch name {
	case "/help":
		m.addBlock(newBlock(BlockSystem, helpText))
	case "/tools":
		if len(m.tools) == 0 {
			m.addBlock(newBlock(BlockSystem, "No tools available."))
			return nil
		}
		var sb strings.Builder
		sb.WriteString("Available tools:")
		for _, d := range m.tools {
			fmt.Fprintf(&sb, "\n  %s  %s", d.Name, d.Description)
		}
		m.addBlock(newBlock(BlockSystem, sb.String()))
	case "/debug":
		m.showDebug = !m.showDebug
		state := "off"
		if m.showDebug {
			state = "on"
		}
		m.addBlock(newBlock(BlockSystem, "Debug log "+state+"."))
	case "/clear":
		m.blocks = nil
		if m.thinking != nil && !m.thinking.Done {
			m.blocks = append(m.blocks, m.thinking)
		}
	case "/quit", "/exit":
		m.cancel()
		return tea.Quit
	default:
		m.addBlock(newBlock(BlockError, fmt.Sprintf("unknown command %s (try /help)", name)))
	}
	return nil
}

// handleAgentEvent は Loop からのイベントを表示ブロックに反映する。
// 最終回答とエラーは answerMsg 側で表示するため、ここでは扱わない。
func (m *Model) handleAgentEvent(e agent.Event) {
	switch e.Type {
	case agent.EventLog:
		switch e.Source {
		case agent.SourceAI:
			m.addBlock(newBlock(BlockThought, e.Message))
		case agent.SourceTool:
			b := newBlock(BlockTool, e.Message)
			b.ToolName = e.ToolName
			m.addBlock(b)
		default:
			m.addBlock(newBlock(BlockSystem, e.Message))
		}
	case agent.EventObservation:
		b := m.lastToolBlock(e.ToolName)
		if b == nil {
			b = newBlock(BlockTool, e.ToolName)
			b.ToolName = e.ToolName
			m.addBlock(b)
		}
		b.Output = observationLines(e.Message)
	case agent.EventDebug:
		if m.showDebug {
			m.addBlock(newBlock(BlockSystem, "[debug] "+e.Message))
		}
	}
}

// handleAnswer は Ask の結果を表示する。
func (m *Model) handleAnswer(msg answerMsg) {
	m.busy = false
	if m.thinking != nil {
		m.thinking.finish(m.now())
		m.thinking = nil
	}
	if msg.err != nil {
		m.addBlock(newBlock(BlockError, msg.err.Error()))
		return
	}
	m.addBlock(newBlock(BlockAnswer, msg.text))
}
