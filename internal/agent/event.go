package agent

// EventType は Loop から UI へ送るイベントの種別。
type EventType string

const (
	// EventLog は通常のログ行（AI の思考・ツール実行の開始）。
	EventLog EventType = "log"
	// EventDebug は LLM 呼び出しやパース結果などの詳細ログ。
	EventDebug EventType = "debug"
	// EventObservation はツール結果（Observation として履歴に入る JSON）。
	EventObservation EventType = "observation"
	// EventAnswer は最終回答。1 ターンにつき最大 1 回。
	EventAnswer EventType = "answer"
	// EventError はターンを終了させたエラー。1 ターンにつき最大 1 回。
	EventError EventType = "error"
)

// LogSource はログ行の発信元。
type LogSource string

const (
	SourceSystem LogSource = "system"
	SourceAI     LogSource = "ai"
	SourceTool   LogSource = "tool"
)

// Event は Loop から UI へ送るメッセージ。
type Event struct {
	SessionID string
	Type      EventType
	Source    LogSource
	Message   string
	ToolName  string // EventObservation / ツール実行ログ時に使用
	Step      int
}
