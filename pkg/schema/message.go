package schema

// Role は会話メッセージの発話者。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message は LLM に渡す会話履歴の 1 要素。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
