package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/timmy/vidqa/internal/logger"
)

// Tool selection modes for the research provider.
const (
	SelectionModeRule  = "rule"
	SelectionModeModel = "model"
)

// ToolProvider runs the external research step of the answer pipeline. It
// connects to an MCP server over SSE, picks one of the server's tools by
// rule or by model, executes it and returns the text result. Failures never
// abort the pipeline; they come back as bracketed placeholder strings that
// the synthesis prompt knows how to ignore.
type ToolProvider struct {
	sseURL        string
	selectionMode string
	callTimeout   time.Duration
	selectionChat *ChatService
	logger        *logger.Logger
}

// ToolProviderConfig holds configuration for the tool provider
type ToolProviderConfig struct {
	SSEURL        string
	SelectionMode string
	CallTimeout   time.Duration
	SelectionChat *ChatService
}

// NewToolProvider creates a new research tool provider
func NewToolProvider(cfg *ToolProviderConfig, log *logger.Logger) *ToolProvider {
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	mode := cfg.SelectionMode
	if mode == "" {
		mode = SelectionModeRule
	}
	return &ToolProvider{
		sseURL:        cfg.SSEURL,
		selectionMode: mode,
		callTimeout:   callTimeout,
		selectionChat: cfg.SelectionChat,
		logger:        log,
	}
}

func (p *ToolProvider) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// normalizeSSEURL validates the configured server URL. A bare host with no
// path is assumed to expose its SSE endpoint at /sse.
func normalizeSSEURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("server URL not configured")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "", fmt.Errorf("invalid server URL format: %s", raw)
	}
	rest := strings.SplitN(raw, "://", 2)[1]
	if !strings.Contains(rest, "/") {
		return strings.TrimRight(raw, "/") + "/sse", nil
	}
	return raw, nil
}

// Execute connects to the research server and runs one tool against the
// intermediate prompt. The returned string is either the tool's text output
// or a bracketed diagnostic; an error is never returned.
func (p *ToolProvider) Execute(ctx context.Context, intermediatePrompt string) string {
	sseURL, err := normalizeSSEURL(p.sseURL)
	if err != nil {
		if p.sseURL == "" {
			p.log(ctx).Error("MCP server URL is not configured")
			return "[Error: MCP Server URL not configured]"
		}
		p.log(ctx).WithError(err).Error("MCP server URL is malformed")
		return "[Error: Invalid MCP Server URL format]"
	}

	c, err := client.NewSSEMCPClient(sseURL)
	if err != nil {
		p.log(ctx).WithError(err).Error("Failed to create MCP client")
		return fmt.Sprintf("[Error: Connection failed to MCP server at %s]", sseURL)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		p.log(ctx).WithError(err).Error("Failed to connect to MCP server")
		return fmt.Sprintf("[Error: Connection failed to MCP server at %s]", sseURL)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "vidqa", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		p.log(ctx).WithError(err).Error("MCP initialize handshake failed")
		return fmt.Sprintf("[Unexpected error interacting with MCP server: %v]", err)
	}

	if p.selectionMode == SelectionModeModel && p.selectionChat != nil {
		return p.executeModelSelected(ctx, c, intermediatePrompt)
	}
	return p.executeRuleSelected(ctx, c, intermediatePrompt)
}

// executeRuleSelected scores the prompt against the keyword tables and
// calls the winning tool directly.
func (p *ToolProvider) executeRuleSelected(ctx context.Context, c *client.Client, prompt string) string {
	toolName := SelectToolRuleBased(prompt)
	p.log(ctx).WithFields(logger.Fields{"tool": toolName}).Info("Rule-based tool selection")

	result, err := p.callTool(ctx, c, toolName, conversationArgs(prompt))
	if err != nil {
		p.log(ctx).WithError(err).WithFields(logger.Fields{"tool": toolName}).Error("Rule-selected tool call failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return "[Error: Timeout interacting with MCP server]"
		}
		return fmt.Sprintf("[Error executing rule-based tool '%s': %v]", toolName, err)
	}
	return normalizeToolResult(result, toolName)
}

// executeModelSelected lists the server's tools, lets the selection model
// pick one with a forced tool choice, then executes it. Only the first tool
// call in the model's reply is honored.
func (p *ToolProvider) executeModelSelected(ctx context.Context, c *client.Client, prompt string) string {
	listResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		p.log(ctx).WithError(err).Error("Failed to list MCP tools")
		return fmt.Sprintf("[Unexpected error interacting with MCP server: %v]", err)
	}
	if len(listResult.Tools) == 0 {
		p.log(ctx).Warn("MCP server exposed no tools")
		return "[Error: No tools available from MCP server]"
	}

	specs := make([]ToolSpec, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		specs = append(specs, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toolSchemaMap(t.InputSchema),
		})
	}

	invocation, text, err := p.selectionChat.CompleteWithTools(ctx, prompt, specs)
	if err != nil {
		p.log(ctx).WithError(err).Error("Selection model call failed")
		return fmt.Sprintf("[Error interacting with selection model: %v]", err)
	}
	if invocation == nil {
		if text != "" {
			p.log(ctx).Info("Selection model answered directly without a tool call")
			return strings.TrimSpace(text)
		}
		return "[LLM did not select or run a tool]"
	}

	p.log(ctx).WithFields(logger.Fields{"tool": invocation.Name}).Info("Model-based tool selection")
	result, err := p.callTool(ctx, c, invocation.Name, invocation.Arguments)
	if err != nil {
		p.log(ctx).WithError(err).WithFields(logger.Fields{"tool": invocation.Name}).Error("Model-selected tool call failed")
		return fmt.Sprintf("[Error executing tool '%s': %v]", invocation.Name, err)
	}
	return normalizeToolResult(result, invocation.Name)
}

func (p *ToolProvider) callTool(ctx context.Context, c *client.Client, name string, args map[string]any) (*mcp.CallToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	start := time.Now()
	result, err := c.CallTool(callCtx, req)
	p.log(ctx).WithFields(logger.Fields{
		"tool":                 name,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug("Tool call finished")
	return result, err
}

// conversationArgs wraps the prompt in the messages shape the research
// server's tools expect.
func conversationArgs(prompt string) map[string]any {
	return map[string]any{
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
}

// normalizeToolResult flattens a tool result into plain text. Error results
// and empty results become bracketed diagnostics.
func normalizeToolResult(result *mcp.CallToolResult, toolName string) string {
	if result == nil {
		return fmt.Sprintf("[Tool '%s' returned unexpected result structure]", toolName)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			sb.WriteString(text.Text)
			sb.WriteString("\n")
		}
	}
	text := strings.TrimSpace(sb.String())

	if result.IsError {
		return fmt.Sprintf("[Tool Error: %s]", text)
	}
	if text == "" {
		return fmt.Sprintf("[Tool '%s' returned no information]", toolName)
	}
	return text
}

// toolSchemaMap converts an MCP input schema into the generic JSON Schema
// map the chat API's tools parameter takes.
func toolSchemaMap(schema mcp.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if m["type"] == "" {
		m["type"] = "object"
	}
	if schema.Properties != nil {
		m["properties"] = schema.Properties
	} else {
		m["properties"] = map[string]any{}
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}
