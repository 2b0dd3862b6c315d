package tui

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// BlockType はビューポートに並ぶ表示ブロックの種類。
type BlockType int

const (
	BlockUserInput BlockType = iota // ユーザーの質問
	BlockThinking                   // LLM 応答待ち（スピナー）
	BlockThought                    // モデルの thought
	BlockTool                       // ツール呼び出しと Observation
	BlockAnswer                     // 最終回答（Markdown）
	BlockError                      // ターンを終わらせたエラー
	BlockSystem                     // システムメッセージ・デバッグ行
)

// DisplayBlock は 1 つの表示単位。
type DisplayBlock struct {
	Type BlockType
	Text string

	// BlockTool
	ToolName string
	Output   []string

	// BlockThinking
	Started time.Time
	Done    bool
	Elapsed time.Duration
}

func newBlock(t BlockType, text string) *DisplayBlock {
	return &DisplayBlock{Type: t, Text: text}
}

func newThinkingBlock(now time.Time) *DisplayBlock {
	return &DisplayBlock{Type: BlockThinking, Started: now}
}

// finish は thinking ブロックを完了状態にする。
func (b *DisplayBlock) finish(now time.Time) {
	if b.Done {
		return
	}
	b.Done = true
	b.Elapsed = now.Sub(b.Started)
}

// observationLines は Observation の JSON を整形して行に分ける。JSON でなければそのまま。
func observationLines(s string) []string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err == nil {
		s = buf.String()
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
