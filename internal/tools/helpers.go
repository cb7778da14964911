// Package tools implements the MCP tool handlers.
//
// One file per tool. Each tool receives its dependencies via its struct
// and exposes a Definition for registration plus a Handle compatible with
// mcp-go's CallToolRequest signature. User mistakes come back as tool
// error results; unexpected internal failures are returned as Go errors
// so the server reports them as protocol errors.
package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request.
// JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// tableCell makes s safe for a one-line markdown table cell and trims it
// to max runes.
func tableCell(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if runes := []rune(s); len(runes) > max {
		s = string(runes[:max]) + "..."
	}
	return s
}
