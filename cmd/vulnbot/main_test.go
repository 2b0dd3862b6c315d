package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/agent"
	"github.com/0x6d61/vulnbot/internal/config"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := newLogger(false, "loud", ""); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vulnbot.log")
	l, err := newLogger(false, "debug", path)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	l.Info("hello")
	_ = l.Sync()
}

func TestLocalRegistry_WithoutIndex(t *testing.T) {
	c := config.Default()
	c.Mitre.DBPath = filepath.Join(t.TempDir(), "missing.db")
	c.NVD.CacheDir = t.TempDir()

	reg, cleanup, err := localRegistry(c, zap.NewNop())
	if err != nil {
		t.Fatalf("localRegistry: %v", err)
	}
	defer cleanup()

	if !reg.Has("get_cve") {
		t.Error("get_cve should be registered")
	}
	if reg.Has("get_mitre_technique") {
		t.Error("technique tools should be disabled without an index")
	}
}

func TestSelfServer(t *testing.T) {
	sc, err := selfServer()
	if err != nil {
		t.Fatalf("selfServer: %v", err)
	}
	if sc.Command == "" {
		t.Error("command should be the running executable")
	}
	if len(sc.Args) == 0 || sc.Args[0] != "serve" {
		t.Errorf("args: got %v, want serve first", sc.Args)
	}
}

func TestIsURL(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/a.json":  true,
		"http://localhost/a.json":     true,
		"data/enterprise-attack.json": false,
		"":                            false,
	}
	for in, want := range tests {
		if got := isURL(in); got != want {
			t.Errorf("isURL(%q) = %v, want %v", in, got, want)
		}
	}
}

// traceAsker は Ask の途中でイベントを 1 つ流す asker。
type traceAsker struct {
	events chan<- agent.Event
}

func (a *traceAsker) Ask(_ context.Context, question string) (string, error) {
	a.events <- agent.Event{Type: agent.EventLog, Source: agent.SourceAI, Message: "thinking about " + question}
	return "answer", nil
}

func newTestCommand(stderr *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetErr(stderr)
	return cmd
}

func TestAskOnce_TraceReturnsWhenSessionFails(t *testing.T) {
	var stderr bytes.Buffer
	cmd := newTestCommand(&stderr)
	wantErr := errors.New("no credentials")

	done := make(chan error, 1)
	go func() {
		_, err := askOnce(cmd, "q", true, func(chan<- agent.Event) (asker, func(), error) {
			return nil, nil, wantErr
		})
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("err: got %v, want %v", err, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("askOnce did not return after the session failed to open")
	}
}

func TestAskOnce_TracePrintsEvents(t *testing.T) {
	var stderr bytes.Buffer
	cmd := newTestCommand(&stderr)
	cleaned := false

	answer, err := askOnce(cmd, "Log4Shell", true, func(events chan<- agent.Event) (asker, func(), error) {
		return &traceAsker{events: events}, func() { cleaned = true }, nil
	})
	if err != nil {
		t.Fatalf("askOnce: %v", err)
	}
	if answer != "answer" {
		t.Errorf("answer: got %q", answer)
	}
	if !cleaned {
		t.Error("session cleanup was not called")
	}
	if !strings.Contains(stderr.String(), "thinking about Log4Shell") {
		t.Errorf("trace output: got %q", stderr.String())
	}
}

func TestAskOnce_NoTrace(t *testing.T) {
	var stderr bytes.Buffer
	cmd := newTestCommand(&stderr)

	_, err := askOnce(cmd, "q", false, func(events chan<- agent.Event) (asker, func(), error) {
		if events != nil {
			t.Error("events channel should be nil without trace")
		}
		return &traceAsker{events: make(chan agent.Event, 1)}, func() {}, nil
	})
	if err != nil {
		t.Fatalf("askOnce: %v", err)
	}
	if stderr.Len() != 0 {
		t.Errorf("unexpected trace output: %q", stderr.String())
	}
}
