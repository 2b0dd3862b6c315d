package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/0x6d61/vulnbot/internal/agent"
	"github.com/0x6d61/vulnbot/internal/repl"
	"github.com/0x6d61/vulnbot/internal/tui"
)

var (
	startPlain   bool
	startRemote  bool
	startConnect string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an interactive session",
	Long: `Start an interactive session with the reasoning agent.

A full-screen console is used when stdin and stdout are terminals.
Use --plain for a line-oriented prompt.

Tools run in-process by default. With --remote the tools come from the
MCP servers listed in the config file, with --connect from a running
"vulnbot serve --listen" instance.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startPlain, "plain", false, "Use the line-oriented prompt instead of the full-screen console")
	startCmd.Flags().BoolVar(&startRemote, "remote", false, "Use tools from the MCP servers in the config file")
	startCmd.Flags().StringVar(&startConnect, "connect", "", "Use tools from a server listening on host:port")
	rootCmd.AddCommand(startCmd)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	useTUI := !startPlain && isTerminal()

	// TUI では stderr に書くと画面が崩れるのでファイルに逃がす
	log := logger
	if useTUI {
		log = fileLogger()
		defer func() { _ = log.Sync() }()
	}

	events := make(chan agent.Event, 256)
	loop, descs, bcfg, cleanup, err := newSession(ctx, sessionOptions{remote: startRemote, connect: startConnect}, events, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if useTUI {
		m := tui.New(ctx, loop,
			tui.WithEvents(events),
			tui.WithTools(descs),
			tui.WithModelInfo(string(bcfg.Provider), bcfg.Model),
			tui.WithDebug(verbose),
		)
		return tui.Run(m)
	}

	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".vulnbot", "history")
	}
	prompt, err := repl.NewPrompt(history)
	if err != nil {
		return err
	}
	defer prompt.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Model: %s/%s  Tools: %d\n", bcfg.Provider, bcfg.Model, len(descs))
	r := repl.New(loop, prompt, cmd.OutOrStdout(),
		repl.WithEvents(events),
		repl.WithTools(descs),
		repl.WithDebug(verbose),
	)
	return r.Run(ctx)
}
