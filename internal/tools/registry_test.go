package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/vulnbot/internal/tools"
)

func echoHandler(_ context.Context, args map[string]any) (any, error) {
	return map[string]any{"echo": args["text"]}, nil
}

func TestRegistry_RegisterAndDescriptors(t *testing.T) {
	r := tools.NewRegistry()
	for _, name := range []string{"b_tool", "a_tool", "c_tool"} {
		if err := r.Register(tools.Descriptor{Name: name}, echoHandler); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	descs := r.Descriptors()
	if len(descs) != 3 {
		t.Fatalf("len: got %d, want 3", len(descs))
	}
	// 登録順を保つこと
	for i, want := range []string{"b_tool", "a_tool", "c_tool"} {
		if descs[i].Name != want {
			t.Errorf("descs[%d]: got %q, want %q", i, descs[i].Name, want)
		}
	}
	if descs[0].InputSchema["type"] != "object" {
		t.Errorf("default InputSchema: got %v", descs[0].InputSchema)
	}
	if !r.Has("a_tool") || r.Has("missing") {
		t.Error("Has returned wrong result")
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := tools.NewRegistry()
	if err := r.Register(tools.Descriptor{}, echoHandler); !errors.Is(err, tools.ErrEmptyName) {
		t.Errorf("empty name: got %v, want ErrEmptyName", err)
	}
	if err := r.Register(tools.Descriptor{Name: "x"}, nil); err == nil {
		t.Error("nil handler: want error")
	}
	_ = r.Register(tools.Descriptor{Name: "x"}, echoHandler)
	if err := r.Register(tools.Descriptor{Name: "x"}, echoHandler); !errors.Is(err, tools.ErrDuplicateTool) {
		t.Errorf("duplicate: got %v, want ErrDuplicateTool", err)
	}
}

func TestRegistry_Invoke_Success(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(tools.Descriptor{Name: "echo"}, echoHandler)

	res := r.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	if res.IsError() {
		t.Fatalf("unexpected error: %s", res.Err)
	}
	if got := res.String(); got != `{"echo":"hi"}` {
		t.Errorf("String: got %s", got)
	}
}

func TestRegistry_Invoke_NotFound(t *testing.T) {
	r := tools.NewRegistry()
	res := r.Invoke(context.Background(), "nope", nil)
	if res.Err != "Tool not found" {
		t.Errorf("Err: got %q, want %q", res.Err, "Tool not found")
	}
	if got := res.String(); got != `{"error":"Tool not found"}` {
		t.Errorf("String: got %s", got)
	}
}

func TestRegistry_Invoke_HandlerError(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(tools.Descriptor{Name: "fail"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("lookup miss")
	})

	res := r.Invoke(context.Background(), "fail", nil)
	if res.Err != "lookup miss" {
		t.Errorf("Err: got %q", res.Err)
	}
}

func TestRegistry_Invoke_RecoversPanic(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(tools.Descriptor{Name: "boom"}, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	})

	res := r.Invoke(context.Background(), "boom", nil)
	if !res.IsError() || !strings.Contains(res.Err, "kaboom") {
		t.Errorf("Err: got %q, want panic message", res.Err)
	}
}

func TestRegistry_Invoke_Timeout(t *testing.T) {
	r := tools.NewRegistry(tools.WithTimeout(20 * time.Millisecond))
	release := make(chan struct{})
	defer close(release)
	_ = r.Register(tools.Descriptor{Name: "stall"}, func(context.Context, map[string]any) (any, error) {
		<-release // ctx を無視するハンドラー
		return "late", nil
	})

	start := time.Now()
	res := r.Invoke(context.Background(), "stall", nil)
	if !res.IsError() || !strings.Contains(res.Err, "timed out") {
		t.Errorf("Err: got %q, want timeout", res.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Invoke took %s, want bounded by timeout", elapsed)
	}
}

func TestRegistry_Invoke_Cancelled(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(tools.Descriptor{Name: "wait"}, func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Invoke(ctx, "wait", nil)
	if !res.IsError() {
		t.Error("cancelled invoke should be an error result")
	}
}

func TestResult_JSON(t *testing.T) {
	raw := tools.OK(json.RawMessage(`{"id":"CVE-2021-44228"}`))
	if got := raw.String(); got != `{"id":"CVE-2021-44228"}` {
		t.Errorf("raw: got %s", got)
	}

	var back tools.Result
	if err := json.Unmarshal([]byte(`{"error":"CVE not found"}`), &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Err != "CVE not found" {
		t.Errorf("Err: got %q", back.Err)
	}

	if err := json.Unmarshal([]byte(`[{"id":"T1566"}]`), &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.IsError() || back.String() != `[{"id":"T1566"}]` {
		t.Errorf("value: got %+v", back)
	}

	bad := tools.OK(make(chan int))
	if !strings.Contains(bad.String(), "error") {
		t.Errorf("unserializable: got %s", bad.String())
	}
}
