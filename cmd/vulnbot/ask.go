package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/0x6d61/vulnbot/internal/agent"
)

var (
	askRemote  bool
	askConnect string
	askTrace   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Long: `Run one reasoning turn and print the final answer to stdout.

Examples:
  vulnbot ask "What is CVE-2021-44228 and how severe is it?"
  vulnbot ask --trace "Which ATT&CK techniques cover phishing?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askRemote, "remote", false, "Use tools from the MCP servers in the config file")
	askCmd.Flags().StringVar(&askConnect, "connect", "", "Use tools from a server listening on host:port")
	askCmd.Flags().BoolVar(&askTrace, "trace", false, "Print thoughts and tool calls to stderr")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	open := func(events chan<- agent.Event) (asker, func(), error) {
		loop, _, _, cleanup, err := newSession(cmd.Context(), sessionOptions{remote: askRemote, connect: askConnect}, events, logger)
		if err != nil {
			return nil, nil, err
		}
		return loop, cleanup, nil
	}

	answer, err := askOnce(cmd, strings.Join(args, " "), askTrace, open)
	if err != nil {
		return err
	}
	if isTerminal() {
		if out, err := glamour.Render(answer, "dark"); err == nil {
			answer = out
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

type asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// askOnce はセッションを開いて 1 ターン推論する。trace が true なら途中経過を stderr に流し、
// 戻る前にトレース出力の終了を待つ。
func askOnce(cmd *cobra.Command, question string, trace bool, open func(chan<- agent.Event) (asker, func(), error)) (string, error) {
	var events chan agent.Event
	if trace {
		events = make(chan agent.Event, 256)
		done := make(chan struct{})
		go func() {
			defer close(done)
			traceEvents(cmd, events)
		}()
		defer func() {
			close(events)
			<-done
		}()
	}

	a, cleanup, err := open(events)
	if err != nil {
		return "", err
	}
	defer cleanup()

	return a.Ask(cmd.Context(), question)
}

// traceEvents は推論の途中経過を stderr に出す。
func traceEvents(cmd *cobra.Command, events <-chan agent.Event) {
	w := cmd.ErrOrStderr()
	for e := range events {
		switch e.Type {
		case agent.EventLog:
			color.New(color.FgCyan).Fprintf(w, "[%s] %s\n", e.Source, e.Message)
		case agent.EventObservation:
			color.New(color.FgMagenta).Fprintf(w, "[observation] %s\n", e.Message)
		case agent.EventDebug:
			if verbose {
				color.New(color.FgHiBlack).Fprintf(w, "[debug] %s\n", e.Message)
			}
		}
	}
}
