package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/0x6d61/vulnbot/internal/mcp"
)

// Picker は MCP サーバーのツールを番号で選び、引数を 1 つずつ入力して呼び出す。
// LLM を介さずにサーバーの動作を確かめるための手動クライアント。
type Picker struct {
	client mcp.ToolClient
	in     LineReader
	out    io.Writer
}

// NewPicker は Picker を作る。
func NewPicker(client mcp.ToolClient, in LineReader, out io.Writer) *Picker {
	return &Picker{client: client, in: in, out: out}
}

// Run は q か EOF が入力されるまで選択と呼び出しを繰り返す。
func (p *Picker) Run(ctx context.Context) error {
	list, err := p.client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("repl: list tools: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(p.out, "Server exposes no tools.")
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintln(p.out, "\nAvailable tools:")
		for i, t := range list {
			fmt.Fprintf(p.out, "  %d. %s  %s\n", i+1, toolColor.Sprint(t.Name), t.Description)
		}

		choice, err := p.prompt("Select tool number (q to quit): ")
		if err != nil {
			return quitErr(err)
		}
		if choice == "q" || choice == "quit" {
			return nil
		}
		n, convErr := strconv.Atoi(choice)
		if convErr != nil || n < 1 || n > len(list) {
			errorColor.Fprintf(p.out, "invalid choice %q\n", choice)
			continue
		}

		tool := list[n-1]
		args, err := p.readArgs(tool)
		if err != nil {
			return quitErr(err)
		}

		res, err := p.client.CallTool(ctx, tool.Name, args)
		if err != nil {
			errorColor.Fprintf(p.out, "call failed: %v\n", err)
			continue
		}
		p.printResult(res)
	}
}

// readArgs は inputSchema の properties を順に尋ねる。必須の引数は空を受け付けない。
func (p *Picker) readArgs(tool mcp.ToolSchema) (map[string]any, error) {
	args := map[string]any{}
	required := map[string]bool{}
	for _, r := range requiredArgs(tool.InputSchema) {
		required[r] = true
	}

	for _, name := range propertyNames(tool.InputSchema) {
		label := name
		if required[name] {
			label += " (required)"
		}
		for {
			v, err := p.prompt(label + ": ")
			if err != nil {
				return nil, err
			}
			if v == "" && required[name] {
				errorColor.Fprintf(p.out, "%s is required\n", name)
				continue
			}
			if v != "" {
				args[name] = v
			}
			break
		}
	}
	return args, nil
}

func (p *Picker) prompt(label string) (string, error) {
	p.in.SetPrompt(promptColor.Sprint(label))
	line, err := p.in.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *Picker) printResult(res *mcp.CallResult) {
	text := res.Text()
	var buf bytes.Buffer
	if json.Indent(&buf, []byte(text), "", "  ") == nil {
		text = buf.String()
	}
	if res.IsError {
		errorColor.Fprintf(p.out, "Tool error:\n%s\n", text)
		return
	}
	resultColor.Fprintf(p.out, "Result:\n%s\n", text)
}

// quitErr は EOF / Ctrl+C を正常終了として扱う。
func quitErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
		return nil
	}
	return fmt.Errorf("repl: read input: %w", err)
}

// requiredArgs は JSON Schema の required を返す。ローカルでは []string、JSON 経由では []any になる。
func requiredArgs(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// propertyNames は properties のキーを必須優先・名前順で返す。
func propertyNames(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	for _, r := range requiredArgs(schema) {
		required[r] = true
	}
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})
	return names
}
