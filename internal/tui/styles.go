package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary      = lipgloss.Color("#00D7FF") // cyan: focus / AI
	colorSecondary    = lipgloss.Color("#AF87FF") // purple: thinking
	colorSuccess      = lipgloss.Color("#87FF5F") // green: user
	colorWarning      = lipgloss.Color("#FFD700") // yellow: tool
	colorDanger       = lipgloss.Color("#FF5555") // red: error
	colorMuted        = lipgloss.Color("#555577") // dim gray: hints / debug
	colorBorder       = lipgloss.Color("#333355") // default border
	colorBorderActive = lipgloss.Color("#00D7FF") // focused border
)

// Log pane
var (
	logPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	logPaneActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorderActive)
)

// Input bar
var (
	inputBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	inputBarActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorderActive)
)

// Status bar (top)
var statusBarStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("#0D0D1A")).
	Foreground(colorPrimary).
	Padding(0, 1)

// Quit confirmation dialog (centered overlay)
var confirmQuitBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorDanger).
	Padding(0, 2)

// foldIndicatorStyle は折りたたみ行の「… +N lines (ctrl+o)」スタイル。
var foldIndicatorStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

// User input block style: ハイライト背景でユーザー入力を目立たせる
var userInputBlockStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("#1A1A2E")).
	Foreground(colorSuccess).
	Bold(true).
	Padding(0, 1)

var (
	toolHeaderStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	toolOutputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	thoughtStyle    = lipgloss.NewStyle().Foreground(colorSecondary).Italic(true)
	errorStyle      = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(colorMuted)
)
