package brain

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/0x6d61/vulnbot/pkg/schema"
)

// jsonBlockRe は LLM が ```json コードブロックで返した JSON を抽出するパターン。
// 最初のブロックだけを対象にする。
var jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ParseAction は LLM の応答テキストからディレクティブを 1 つ取り出す。
//
// 優先順位:
//  1. 最初の ```json コードブロック。中身が壊れていてもフォールバックはしない。
//  2. コードブロックがなければ、最初の { から末尾の } までのオブジェクト（テキスト末尾で終わること）。
//
// JSON オブジェクトが取れない・"action" が文字列でない場合は false を返す。
// 種別の判定は action だけで行い、他のフィールドは型が違っても読める範囲で読む。
// action の値が未知の場合は Action をそのまま返し、判定はループ側に任せる。
// 返される Action は種別に応じたフィールドだけを持つ。
func ParseAction(text string) (*schema.Action, bool) {
	candidate, ok := extractCandidate(text)
	if !ok {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return nil, false
	}
	var kind string
	if err := json.Unmarshal(fields["action"], &kind); err != nil || kind == "" {
		return nil, false
	}

	a := &schema.Action{Thought: looseString(fields["thought"]), Action: schema.ActionType(kind)}
	switch a.Action {
	case schema.ActionExecuteTool:
		a.ToolName = looseString(fields["tool_name"])
		a.Arguments, a.ArgumentsError = objectArgs(fields["arguments"])
	case schema.ActionFinalAnswer:
		a.Content = looseString(fields["content"])
	}
	return a, true
}

// looseString は文字列ならその値を、それ以外の JSON 値ならコンパクトな JSON テキストを返す。
// 欠落と null は空文字。
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil || buf.String() == "null" {
		return ""
	}
	return buf.String()
}

// objectArgs は arguments を map にする。欠落と null は空の引数。
// オブジェクト以外はツールに渡さず、エラーメッセージを返す。
func objectArgs(raw json.RawMessage) (map[string]any, string) {
	args := map[string]any{}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return args, ""
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}, "arguments must be a JSON object, got " + clip(looseString(raw), 80)
	}
	return args, ""
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func extractCandidate(text string) (string, bool) {
	if m := jsonBlockRe.FindStringSubmatch(text); len(m) > 1 {
		return m[1], true
	}

	trimmed := strings.TrimRight(text, " \t\r\n")
	if !strings.HasSuffix(trimmed, "}") {
		return "", false
	}
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return "", false
	}
	return trimmed[start:], true
}
