package agent

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded はステップ上限に到達してターンを打ち切ったことを示す。
var ErrBudgetExceeded = errors.New("agent: maximum steps reached")

// ModelCallError は LLM 呼び出しの失敗。自動リトライはしない。
type ModelCallError struct {
	Err error
}

func (e *ModelCallError) Error() string { return fmt.Sprintf("agent: model call failed: %v", e.Err) }

func (e *ModelCallError) Unwrap() error { return e.Err }

// UnknownActionError は LLM が未知の action を返したことを示す。
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("agent: unknown action type %q", e.Action)
}
