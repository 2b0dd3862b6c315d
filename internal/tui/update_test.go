package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/vulnbot/internal/agent"
	"github.com/0x6d61/vulnbot/internal/tools"
)

// stubAsker は決まった回答を返すテスト用 Asker。
type stubAsker struct {
	answer string
	err    error
	asked  []string
}

func (s *stubAsker) Ask(_ context.Context, q string) (string, error) {
	s.asked = append(s.asked, q)
	return s.answer, s.err
}

// newReadyModel はサイズ確定済みの Model を返す。
func newReadyModel(t *testing.T, asker Asker, opts ...Option) Model {
	t.Helper()
	m := New(context.Background(), asker, opts...)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

// runCmd はコマンドを実行し、Batch を展開して得られたメッセージを返す。
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func findAnswer(t *testing.T, msgs []tea.Msg) answerMsg {
	t.Helper()
	for _, msg := range msgs {
		if a, ok := msg.(answerMsg); ok {
			return a
		}
	}
	t.Fatalf("no answerMsg in %v", msgs)
	return answerMsg{}
}

func typeText(m Model, s string) Model {
	m.input.SetValue(s)
	return m
}

func pressEnter(m Model) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func lastBlock(m Model) *DisplayBlock {
	return m.blocks[len(m.blocks)-1]
}

// ---------------------------------------------------------------------------
// cycleFocus
// ---------------------------------------------------------------------------

func TestCycleFocus(t *testing.T) {
	m := New(context.Background(), nil)
	if m.focus != FocusInput {
		t.Fatalf("initial focus: got %d, want FocusInput", m.focus)
	}
	m.cycleFocus()
	if m.focus != FocusViewport {
		t.Errorf("after one cycle: got %d, want FocusViewport", m.focus)
	}
	m.cycleFocus()
	if m.focus != FocusInput {
		t.Errorf("after full cycle: got %d, want FocusInput", m.focus)
	}
}

// ---------------------------------------------------------------------------
// submit / answer
// ---------------------------------------------------------------------------

func TestSubmit_AsksAndShowsAnswer(t *testing.T) {
	asker := &stubAsker{answer: "**Log4Shell** is a JNDI injection."}
	m := newReadyModel(t, asker)

	m, cmd := pressEnter(typeText(m, "What is CVE-2021-44228?"))
	if !m.busy {
		t.Fatal("expected busy after submit")
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	if lastBlock(m).Type != BlockThinking {
		t.Errorf("last block: got %d, want BlockThinking", lastBlock(m).Type)
	}

	ans := findAnswer(t, runCmd(cmd))
	if len(asker.asked) != 1 || asker.asked[0] != "What is CVE-2021-44228?" {
		t.Fatalf("asked: got %v", asker.asked)
	}

	next, _ := m.Update(ans)
	m = next.(Model)
	if m.busy {
		t.Error("expected not busy after answer")
	}
	b := lastBlock(m)
	if b.Type != BlockAnswer || !strings.Contains(b.Text, "Log4Shell") {
		t.Errorf("last block: got %+v", b)
	}
	for _, blk := range m.blocks {
		if blk.Type == BlockThinking && !blk.Done {
			t.Error("thinking block left running")
		}
	}
}

func TestSubmit_ErrorIsShown(t *testing.T) {
	asker := &stubAsker{err: errors.New("agent: step budget exhausted")}
	m := newReadyModel(t, asker)

	m, cmd := pressEnter(typeText(m, "loop forever"))
	next, _ := m.Update(findAnswer(t, runCmd(cmd)))
	m = next.(Model)

	b := lastBlock(m)
	if b.Type != BlockError || !strings.Contains(b.Text, "budget") {
		t.Errorf("last block: got %+v", b)
	}
}

func TestSubmit_IgnoredWhileBusy(t *testing.T) {
	asker := &stubAsker{answer: "ok"}
	m := newReadyModel(t, asker)
	m, _ = pressEnter(typeText(m, "first"))

	m, cmd := pressEnter(typeText(m, "second"))
	if cmd != nil {
		t.Error("expected no command while busy")
	}
	if b := lastBlock(m); b.Type != BlockThinking {
		t.Errorf("spinner must stay last, got %d", b.Type)
	}
	found := false
	for _, b := range m.blocks {
		if b.Type == BlockSystem && strings.Contains(b.Text, "Still working") {
			found = true
		}
	}
	if !found {
		t.Error("expected busy notice")
	}
}

func TestSubmit_Empty(t *testing.T) {
	m := newReadyModel(t, &stubAsker{})
	before := len(m.blocks)
	m, cmd := pressEnter(typeText(m, "   "))
	if cmd != nil || len(m.blocks) != before {
		t.Error("blank input must be ignored")
	}
}

// ---------------------------------------------------------------------------
// commands
// ---------------------------------------------------------------------------

func TestCommands(t *testing.T) {
	descs := []tools.Descriptor{{Name: "get_cve", Description: "Fetch a CVE"}}

	t.Run("help", func(t *testing.T) {
		m, _ := pressEnter(typeText(newReadyModel(t, nil), "/help"))
		if !strings.Contains(lastBlock(m).Text, "/tools") {
			t.Errorf("help: got %q", lastBlock(m).Text)
		}
	})
	t.Run("tools", func(t *testing.T) {
		m, _ := pressEnter(typeText(newReadyModel(t, nil, WithTools(descs)), "/tools"))
		if !strings.Contains(lastBlock(m).Text, "get_cve") {
			t.Errorf("tools: got %q", lastBlock(m).Text)
		}
	})
	t.Run("debug toggle", func(t *testing.T) {
		m, _ := pressEnter(typeText(newReadyModel(t, nil), "/debug"))
		if !m.showDebug {
			t.Error("expected debug on")
		}
	})
	t.Run("clear", func(t *testing.T) {
		m, _ := pressEnter(typeText(newReadyModel(t, nil), "/clear"))
		if len(m.blocks) != 0 {
			t.Errorf("blocks: got %d, want 0", len(m.blocks))
		}
	})
	t.Run("unknown", func(t *testing.T) {
		m, _ := pressEnter(typeText(newReadyModel(t, nil), "/frobnicate"))
		if lastBlock(m).Type != BlockError {
			t.Errorf("expected error block, got %d", lastBlock(m).Type)
		}
	})
	t.Run("quit", func(t *testing.T) {
		m := newReadyModel(t, nil)
		_, cmd := pressEnter(typeText(m, "/quit"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
		if m.ctx.Err() == nil {
			t.Error("expected context cancelled on quit")
		}
	})
}

// ---------------------------------------------------------------------------
// agent events
// ---------------------------------------------------------------------------

func TestHandleAgentEvent_ToolAndObservation(t *testing.T) {
	m := newReadyModel(t, &stubAsker{})
	m, _ = pressEnter(typeText(m, "q"))

	events := []agent.Event{
		{Type: agent.EventLog, Source: agent.SourceAI, Message: "Look up the CVE"},
		{Type: agent.EventLog, Source: agent.SourceTool, ToolName: "get_cve", Message: `Executing get_cve with args {"cve_id":"CVE-2021-44228"}...`},
		{Type: agent.EventObservation, Source: agent.SourceTool, ToolName: "get_cve", Message: `{"id":"CVE-2021-44228","published":"2021-12-10"}`},
		{Type: agent.EventDebug, Source: agent.SourceSystem, Message: "hidden"},
	}
	for _, e := range events {
		next, _ := m.Update(AgentEventMsg(e))
		m = next.(Model)
	}

	var thought, tool *DisplayBlock
	for _, b := range m.blocks {
		switch b.Type {
		case BlockThought:
			thought = b
		case BlockTool:
			tool = b
		case BlockSystem:
			if strings.Contains(b.Text, "hidden") {
				t.Error("debug event shown while debug is off")
			}
		}
	}
	if thought == nil || thought.Text != "Look up the CVE" {
		t.Errorf("thought: got %+v", thought)
	}
	if tool == nil {
		t.Fatal("no tool block")
	}
	if len(tool.Output) != 4 {
		t.Errorf("observation lines: got %d (%v), want 4", len(tool.Output), tool.Output)
	}
	if lastBlock(m).Type != BlockThinking {
		t.Errorf("spinner must stay last, got %d", lastBlock(m).Type)
	}
}

func TestHandleAgentEvent_DebugShownWhenEnabled(t *testing.T) {
	m := newReadyModel(t, nil, WithDebug(true))
	next, _ := m.Update(AgentEventMsg(agent.Event{Type: agent.EventDebug, Message: "Sending request to LLM"}))
	m = next.(Model)
	if !strings.Contains(lastBlock(m).Text, "[debug] Sending request") {
		t.Errorf("last block: got %q", lastBlock(m).Text)
	}
}

func TestAgentEventCmd(t *testing.T) {
	ch := make(chan agent.Event, 1)
	ch <- agent.Event{Type: agent.EventLog, Message: "hi"}
	msg := AgentEventCmd(ch)()
	if e, ok := msg.(AgentEventMsg); !ok || e.Message != "hi" {
		t.Errorf("got %#v", msg)
	}
	close(ch)
	if msg := AgentEventCmd(ch)(); msg != nil {
		t.Errorf("closed channel: got %#v, want nil", msg)
	}
}

// ---------------------------------------------------------------------------
// keys
// ---------------------------------------------------------------------------

func TestCtrlC_ConfirmQuit(t *testing.T) {
	m := newReadyModel(t, nil)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(Model)
	if m.inputMode != InputConfirmQuit {
		t.Fatal("expected confirm dialog")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	m = next.(Model)
	if m.inputMode != InputNormal || cmd != nil {
		t.Error("n must close the dialog without quitting")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(Model)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestCtrlO_TogglesExpanded(t *testing.T) {
	m := newReadyModel(t, nil)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	if !next.(Model).expanded {
		t.Error("expected expanded after ctrl+o")
	}
}

func TestThinkingDuration(t *testing.T) {
	m := newReadyModel(t, &stubAsker{answer: "done"})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	m, cmd := pressEnter(typeText(m, "q"))
	thinking := m.thinking

	m.now = func() time.Time { return base.Add(12 * time.Second) }
	next, _ := m.Update(findAnswer(t, runCmd(cmd)))
	_ = next

	if !thinking.Done || thinking.Elapsed != 12*time.Second {
		t.Errorf("thinking: done=%v elapsed=%v", thinking.Done, thinking.Elapsed)
	}
}
