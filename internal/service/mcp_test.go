package service

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestNormalizeSSEURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "empty URL", raw: "", wantErr: true},
		{name: "missing scheme", raw: "localhost:9000/sse", wantErr: true},
		{name: "bare host gets sse path", raw: "http://localhost:9000", want: "http://localhost:9000/sse"},
		{name: "explicit path kept", raw: "https://research.example.com/sse", want: "https://research.example.com/sse"},
		{name: "trailing slash counts as a path", raw: "https://research.example.com/", want: "https://research.example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeSSEURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got %q", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("normalizeSSEURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeToolResult(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   string
	}{
		{
			name:   "nil result",
			result: nil,
			want:   "[Tool 'perplexity_ask' returned unexpected result structure]",
		},
		{
			name: "plain text content",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "an answer"}},
			},
			want: "an answer",
		},
		{
			name: "multiple text blocks joined",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.TextContent{Type: "text", Text: "first"},
					mcp.TextContent{Type: "text", Text: "second"},
				},
			},
			want: "first\nsecond",
		},
		{
			name: "error result",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "rate limited"}},
				IsError: true,
			},
			want: "[Tool Error: rate limited]",
		},
		{
			name:   "empty result",
			result: &mcp.CallToolResult{},
			want:   "[Tool 'perplexity_ask' returned no information]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeToolResult(tt.result, "perplexity_ask"); got != tt.want {
				t.Errorf("normalizeToolResult = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolSchemaMap(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]any{"messages": map[string]any{"type": "array"}},
		Required:   []string{"messages"},
	}
	m := toolSchemaMap(schema)
	if m["type"] != "object" {
		t.Errorf("type = %v", m["type"])
	}
	if _, ok := m["properties"].(map[string]any)["messages"]; !ok {
		t.Errorf("properties not carried over: %v", m["properties"])
	}
	if req, ok := m["required"].([]string); !ok || len(req) != 1 {
		t.Errorf("required = %v", m["required"])
	}
}

func TestToolSchemaMap_Defaults(t *testing.T) {
	m := toolSchemaMap(mcp.ToolInputSchema{})
	if m["type"] != "object" {
		t.Errorf("empty schema type = %v, want object", m["type"])
	}
	props, ok := m["properties"].(map[string]any)
	if !ok || len(props) != 0 {
		t.Errorf("empty schema properties = %v", m["properties"])
	}
	if _, ok := m["required"]; ok {
		t.Error("required should be omitted when empty")
	}
}

func TestConversationArgs(t *testing.T) {
	args := conversationArgs("hello there")
	messages, ok := args["messages"].([]map[string]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("unexpected messages shape: %v", args["messages"])
	}
	if messages[0]["role"] != "user" || messages[0]["content"] != "hello there" {
		t.Errorf("unexpected message: %v", messages[0])
	}
}

func TestExecute_UnconfiguredURL(t *testing.T) {
	p := NewToolProvider(&ToolProviderConfig{SSEURL: ""}, nil)
	if got := p.Execute(context.Background(), "prompt"); got != "[Error: MCP Server URL not configured]" {
		t.Errorf("Execute = %q", got)
	}

	p = NewToolProvider(&ToolProviderConfig{SSEURL: "not-a-url"}, nil)
	if got := p.Execute(context.Background(), "prompt"); got != "[Error: Invalid MCP Server URL format]" {
		t.Errorf("Execute = %q", got)
	}
}
