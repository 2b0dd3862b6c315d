// Package tools provides the tool registry and dispatch boundary shared by the agent loop and the protocol server.
package tools

import (
	"encoding/json"
)

// Result はツール呼び出しの結果。Value か Err のどちらか一方だけを持つ。
//
// JSON では Value そのもの、またはエラー時に {"error": "..."} になる。
type Result struct {
	Value any
	Err   string
}

// OK は成功結果を返す。
func OK(v any) Result { return Result{Value: v} }

// ErrorResult はエラー結果を返す。
func ErrorResult(msg string) Result { return Result{Err: msg} }

// IsError はエラー結果かどうかを返す。
func (r Result) IsError() bool { return r.Err != "" }

// MarshalJSON は Result を Observation 用の JSON に変換する。
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != "" {
		return json.Marshal(map[string]string{"error": r.Err})
	}
	if raw, ok := r.Value.(json.RawMessage); ok && len(raw) > 0 {
		return raw, nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON は {"error": "..."} 形式をエラー結果として読み戻す。
// リモートのツール結果を Result に戻すときに使う。
func (r *Result) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil && len(probe) == 1 {
		if raw, ok := probe["error"]; ok {
			var msg string
			if err := json.Unmarshal(raw, &msg); err == nil {
				*r = Result{Err: msg}
				return nil
			}
		}
	}
	*r = Result{Value: json.RawMessage(append([]byte(nil), data...))}
	return nil
}

// String は Result の JSON 表現を返す。変換できない場合はエラー JSON を返す。
func (r Result) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": "unserializable tool result: " + err.Error()})
	}
	return string(b)
}
