// Package session は 1 つの会話セッションの履歴とステップカウンタを保持する。
//
// 履歴は追記のみ。message[0] は常にシステムメッセージで、以後変更されない。
// セッションは 1 つの Loop が専有するため、ロックは持たない。
package session

import (
	"github.com/google/uuid"

	"github.com/0x6d61/vulnbot/pkg/schema"
)

// DefaultMaxSteps は 1 ターンあたりのツール呼び出し上限のデフォルト値。
const DefaultMaxSteps = 5

// Session は会話履歴とステップカウンタ。
type Session struct {
	id       string
	messages []schema.Message
	steps    int
	maxSteps int
}

// New はシステムメッセージを先頭に持つセッションを作る。
// maxSteps が 0 以下なら DefaultMaxSteps を使う。
func New(systemPrompt string, maxSteps int) *Session {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Session{
		id:       uuid.Must(uuid.NewV7()).String(),
		messages: []schema.Message{{Role: schema.RoleSystem, Content: systemPrompt}},
		maxSteps: maxSteps,
	}
}

// ID はセッションの一意な識別子（UUIDv7）を返す。
func (s *Session) ID() string { return s.id }

// Append はメッセージを履歴の末尾に追加する。
// システムロールのメッセージは先頭以外に置けないため user として扱う。
func (s *Session) Append(msg schema.Message) {
	if msg.Role == schema.RoleSystem {
		msg.Role = schema.RoleUser
	}
	s.messages = append(s.messages, msg)
}

// BeginTurn はユーザーの質問を追加し、ステップカウンタを新しいターン用に戻す。
func (s *Session) BeginTurn(question string) {
	s.Append(schema.Message{Role: schema.RoleUser, Content: question})
	s.steps = 0
}

// Snapshot は履歴のコピーを返す。呼び出し側が変更してもセッションには影響しない。
func (s *Session) Snapshot() []schema.Message {
	out := make([]schema.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// IncrementStep はステップを 1 進める。上限に達していれば進めずに false を返す。
func (s *Session) IncrementStep() bool {
	if s.steps >= s.maxSteps {
		return false
	}
	s.steps++
	return true
}

// Exhausted は現在のターンでステップ上限に到達したかどうかを返す。
func (s *Session) Exhausted() bool { return s.steps >= s.maxSteps }

// Steps は現在のターンで消費したステップ数を返す。
func (s *Session) Steps() int { return s.steps }

// MaxSteps はステップ上限を返す。
func (s *Session) MaxSteps() int { return s.maxSteps }

// Len は履歴のメッセージ数を返す。
func (s *Session) Len() int { return len(s.messages) }
