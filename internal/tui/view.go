package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// View implements tea.Model and renders the console layout.
func (m Model) View() string {
	if !m.ready {
		return "\n  ⚡ Starting VulnBot...\n"
	}

	statusBar := m.renderStatusBar()

	paneStyle := logPaneStyle
	if m.focus == FocusViewport {
		paneStyle = logPaneActiveStyle
	}
	logPane := paneStyle.Width(m.width - 2).Render(m.viewport.View())

	base := lipgloss.JoinVertical(lipgloss.Left, statusBar, logPane, m.renderInputBar())

	// Overlay quit confirmation dialog in the center of the screen.
	if m.inputMode == InputConfirmQuit {
		base = m.overlayCenter(base, m.renderConfirmQuit())
	}
	return base
}

// renderStatusBar renders the single-line header with app name, model and hints.
func (m Model) renderStatusBar() string {
	appName := lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true).
		Render("⚡ VULNBOT")

	var modelInfo string
	switch {
	case m.ModelName != "":
		modelInfo = mutedStyle.Render(fmt.Sprintf("Model: %s/%s", m.Provider, m.ModelName))
	case m.Provider != "":
		modelInfo = mutedStyle.Render("Model: " + m.Provider)
	}

	state := mutedStyle.Render("idle")
	if m.busy {
		state = lipgloss.NewStyle().Foreground(colorWarning).Render("thinking")
	}

	hint := mutedStyle.Render("[Tab] Switch pane  [Ctrl+O] Expand  [/help]")

	left := appName + "  " + state
	if modelInfo != "" {
		left += "  " + modelInfo
	}
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(hint)-2))
	return statusBarStyle.Width(m.width).Render(left + gap + hint)
}

// renderInputBar renders the bottom input area with context-aware prefix.
func (m Model) renderInputBar() string {
	style := inputBarStyle
	var prefix string
	switch m.focus {
	case FocusViewport:
		prefix = mutedStyle.Render("[Log] ↑↓ Scroll")
	case FocusInput:
		prefix = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Render(">")
		style = inputBarActiveStyle
	}
	return style.Width(m.width - 2).Render(prefix + " " + m.input.View())
}

// renderConfirmQuit renders the centered quit confirmation dialog.
func (m Model) renderConfirmQuit() string {
	title := lipgloss.NewStyle().
		Foreground(colorWarning).
		Bold(true).
		Render("Quit VulnBot?")

	hint := mutedStyle.Render("[Y] Yes  [N] No  [Esc] Cancel")

	return confirmQuitBoxStyle.Render(fmt.Sprintf("\n  %s\n\n  %s\n", title, hint))
}

// overlayCenter places the overlay string in the center of the base string.
func (m Model) overlayCenter(base, overlay string) string {
	baseLines := strings.Split(base, "\n")
	overlayLines := strings.Split(overlay, "\n")

	overlayH := len(overlayLines)
	overlayW := 0
	for _, line := range overlayLines {
		if w := lipgloss.Width(line); w > overlayW {
			overlayW = w
		}
	}

	startRow := max(0, (m.height-overlayH)/2)
	startCol := max(0, (m.width-overlayW)/2)

	// Pad base to have enough lines
	for len(baseLines) < startRow+overlayH {
		baseLines = append(baseLines, strings.Repeat(" ", m.width))
	}

	for i, oLine := range overlayLines {
		row := startRow + i
		baseLine := baseLines[row]

		left := truncateVisual(baseLine, startCol)
		rightStart := startCol + lipgloss.Width(oLine)
		right := ""
		if lipgloss.Width(baseLine) > rightStart {
			right = skipVisual(baseLine, rightStart)
		}
		baseLines[row] = left + oLine + right
	}

	return strings.Join(baseLines, "\n")
}

// truncateVisual returns the first n visual columns of a string, padded with spaces.
func truncateVisual(s string, n int) string {
	w := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > n {
			return s[:i] + strings.Repeat(" ", n-w)
		}
		w += rw
	}
	return s + strings.Repeat(" ", n-w)
}

// skipVisual returns everything after the first n visual columns.
func skipVisual(s string, n int) string {
	w := 0
	for i, r := range s {
		if w >= n {
			return s[i:]
		}
		w += runewidth.RuneWidth(r)
	}
	return ""
}
