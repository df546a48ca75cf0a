package mcpserver

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/SouthHost/the-bastion/internal/execute"
	"github.com/SouthHost/the-bastion/internal/helper"
	"github.com/SouthHost/the-bastion/internal/result"
)

// handleRunCommand runs a command under full supervision and returns the
// result record as JSON.
func handleRunCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	cmdline := stringArg(args, "cmd", "")
	if cmdline == "" {
		return errResult("cmd is required"), nil
	}

	opts := execute.Options{
		Cmd:         strings.Fields(cmdline),
		StdinStr:    stringArg(args, "stdin", ""),
		MustSucceed: boolArg(args, "must_succeed"),
	}
	if n := numberArg(args, "max_stdout_bytes"); n > 0 {
		opts.MaxStdoutBytes = uint64(n)
	}

	return resultJSON(execute.Execute(opts))
}

// handleRunHelper runs a helper command and unwraps its envelope.
func handleRunHelper(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	cmdline := stringArg(args, "cmd", "")
	if cmdline == "" {
		return errResult("cmd is required"), nil
	}

	res := execute.Execute(execute.Options{
		Cmd:      strings.Fields(cmdline),
		IsHelper: true,
	})
	if res.IsErr() {
		return resultJSON(res)
	}

	value, ok := res.Value.(*execute.ExecutionResult)
	if !ok {
		return errResult("unexpected execution value"), nil
	}
	return resultJSON(helper.Unwrap(helper.Extract(value.Stdout)))
}

func resultJSON(res *result.Result) (*mcp.CallToolResult, error) {
	data, err := res.JSON()
	if err != nil {
		return errResult(err.Error()), nil
	}
	if res.IsErr() {
		return errResult(data), nil
	}
	return newTextResult(data), nil
}

// getArgs safely extracts the arguments map from a CallToolRequest.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg extracts a string argument with a default value.
func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// boolArg extracts a boolean argument, defaulting to false.
func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// numberArg extracts a numeric argument, defaulting to 0.
func numberArg(args map[string]interface{}, key string) float64 {
	n, _ := args[key].(float64)
	return n
}

// newTextResult creates a successful MCP tool result with text content.
func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// errResult creates a tool-level error result (IsError=true).
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
	}
}
