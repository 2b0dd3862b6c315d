package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
)

// Observation の折りたたみ設定
const (
	foldThreshold = 8
	previewLines  = 5
)

// renderToolBlock はツール呼び出しブロックをレンダリングする。
// Format:
//
//	● get_cve  Executing get_cve with args {...}
//	⎿  output line 1
//	   output line 2
//	   … +N lines (ctrl+o)
func renderToolBlock(b *DisplayBlock, width int, expanded bool) string {
	var sb strings.Builder

	header := "● " + b.Text
	if width > 0 {
		header = runewidth.Truncate(header, width, "…")
	}
	sb.WriteString(toolHeaderStyle.Render(header))
	sb.WriteString("\n")

	if len(b.Output) == 0 {
		return sb.String()
	}

	const outputPrefix = "  ⎿  "
	const contPrefix = "     "

	lines := b.Output
	folded := false
	if !expanded && len(lines) > foldThreshold {
		folded = true
		lines = lines[:previewLines]
	}

	for i, line := range lines {
		prefix := contPrefix
		if i == 0 {
			prefix = outputPrefix
		}
		out := prefix + line
		if width > 0 {
			out = runewidth.Truncate(out, width, "…")
		}
		sb.WriteString(toolOutputStyle.Render(out))
		sb.WriteString("\n")
	}

	if folded {
		remaining := len(b.Output) - previewLines
		sb.WriteString(foldIndicatorStyle.Render(fmt.Sprintf("     … +%d lines (ctrl+o)", remaining)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderThinkingBlock は応答待ちブロックをレンダリングする。
// 処理中: <spinnerFrame> Thinking...
// 完了: ✻ Completed in Xs
func renderThinkingBlock(b *DisplayBlock, spinnerFrame string) string {
	if b.Done {
		return thoughtStyle.Render(fmt.Sprintf("✻ Completed in %s", formatDuration(b.Elapsed))) + "\n"
	}
	return thoughtStyle.Render(spinnerFrame+" Thinking...") + "\n"
}

// renderAnswerBlock は最終回答を glamour で Markdown としてレンダリングする。
func renderAnswerBlock(b *DisplayBlock, width int) string {
	if b.Text == "" {
		return ""
	}
	rendered, err := renderMarkdown(b.Text, width)
	if err != nil {
		// フォールバック: プレーンテキスト
		return b.Text + "\n"
	}
	return rendered
}

// renderMarkdown は glamour を使って Markdown をターミナル用にレンダリングする。
// WithAutoStyle() は非 TTY 環境（テスト・CI）で plain にフォールバックするため dark を明示する。
// dark スタイルは左右マージンを追加するため、width を縮小して渡す。
func renderMarkdown(text string, width int) (string, error) {
	wrapWidth := width - 4
	if wrapWidth < 20 {
		wrapWidth = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

// renderUserInputBlock はユーザー入力をハイライト背景でレンダリングする。
func renderUserInputBlock(b *DisplayBlock) string {
	return userInputBlockStyle.Render("> "+b.Text) + "\n"
}

func renderThoughtBlock(b *DisplayBlock) string {
	return thoughtStyle.Render("💭 "+b.Text) + "\n"
}

func renderErrorBlock(b *DisplayBlock) string {
	return errorStyle.Render("✗ "+b.Text) + "\n"
}

func renderSystemBlock(b *DisplayBlock) string {
	return mutedStyle.Render(b.Text) + "\n"
}

// formatDuration は表示用の時間フォーマットを返す (例: "12s", "1m23s")。
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%ds", m, s)
}

// renderBlocks は全ての DisplayBlock をビューポート用コンテンツにレンダリングする。
func renderBlocks(blocks []*DisplayBlock, width int, expanded bool, spinnerFrame string) string {
	var sb strings.Builder
	for _, b := range blocks {
		switch b.Type {
		case BlockUserInput:
			sb.WriteString(renderUserInputBlock(b))
		case BlockThinking:
			sb.WriteString(renderThinkingBlock(b, spinnerFrame))
		case BlockThought:
			sb.WriteString(renderThoughtBlock(b))
		case BlockTool:
			sb.WriteString(renderToolBlock(b, width, expanded))
		case BlockAnswer:
			sb.WriteString(renderAnswerBlock(b, width))
		case BlockError:
			sb.WriteString(renderErrorBlock(b))
		case BlockSystem:
			sb.WriteString(renderSystemBlock(b))
		}
	}
	return sb.String()
}
