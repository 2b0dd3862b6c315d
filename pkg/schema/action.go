// Package schema defines the shared JSON types exchanged between the Brain (LLM), the agent loop and the UI.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionType defines the kind of directive the Brain wants to perform.
type ActionType string

const (
	// ActionExecuteTool は登録済みツールの呼び出しを要求する。
	ActionExecuteTool ActionType = "execute_tool"

	// ActionFinalAnswer はユーザーへの最終回答を返す。
	ActionFinalAnswer ActionType = "final_answer"
)

// Known は既知のアクション種別かどうかを返す。
func (t ActionType) Known() bool {
	return t == ActionExecuteTool || t == ActionFinalAnswer
}

// Action is the JSON payload emitted by the Brain (LLM).
//
// Brain は以下のいずれかの形式で応答する:
//
//	{"thought": "...", "action": "execute_tool", "tool_name": "get_cve", "arguments": {"cve_id": "CVE-2021-44228"}}
//	{"thought": "...", "action": "final_answer", "content": "..."}
type Action struct {
	Thought   string         `json:"thought,omitempty"`
	Action    ActionType     `json:"action"`
	ToolName  string         `json:"tool_name,omitempty"` // ActionExecuteTool
	Arguments map[string]any `json:"arguments,omitempty"` // ActionExecuteTool
	Content   string         `json:"content,omitempty"`   // ActionFinalAnswer

	// ArgumentsError は arguments がオブジェクトでなかったときの理由。
	// 空でなければツールは呼ばず、これをエラーの Observation として返す。
	ArgumentsError string `json:"-"`
}

// FormatAction は Action を LLM が返すのと同じ fenced JSON 形式に整形する。
func FormatAction(a Action) (string, error) {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("schema: marshal action: %w", err)
	}
	// 文字列内のバッククォートでフェンスが閉じないよう \u0060 にエスケープする
	body := strings.ReplaceAll(string(b), "`", `\u0060`)
	return "```json\n" + body + "\n```", nil
}
