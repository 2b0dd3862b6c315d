// Package repl は TTY でない環境や --plain 指定時に使う行指向の対話インターフェース。
package repl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

// LineReader は 1 行ずつ入力を読むプロンプト（readline.Instance）。
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	SaveHistory(line string) error
	Close() error
}

// 出力の配色
var (
	promptColor  = color.New(color.FgGreen)
	thoughtColor = color.New(color.FgCyan)
	toolColor    = color.New(color.FgYellow)
	resultColor  = color.New(color.FgMagenta)
	answerColor  = color.New(color.FgWhite, color.Bold)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgHiBlack)
)

// mainPrompt は通常の入力プロンプト。
func mainPrompt() string { return promptColor.Sprint("vulnbot ➤ ") }

// NewPrompt は履歴ファイル付きの readline プロンプトを作る。
// historyFile が空なら履歴は保存しない。
func NewPrompt(historyFile string) (LineReader, error) {
	if historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(historyFile), 0o755); err != nil {
			return nil, fmt.Errorf("repl: failed to create history directory: %w", err)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            mainPrompt(),
		HistoryFile:       historyFile,
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("repl: failed to create readline instance: %w", err)
	}
	return rl, nil
}
