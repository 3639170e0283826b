package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ChatService calls an OpenAI-compatible chat completions endpoint. It is
// used for summarization, theme extraction, answer synthesis and
// model-driven tool selection.
type ChatService struct {
	client *resty.Client
	model  string
}

// ChatConfig holds configuration for the chat service
type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewChatService creates a new chat completion service
func NewChatService(cfg *ChatConfig) *ChatService {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(120 * time.Second)

	return &ChatService{
		client: client,
		model:  cfg.Model,
	}
}

// GetModel returns the model name being used
func (s *ChatService) GetModel() string {
	return s.model
}

// ToolSpec describes a callable tool offered to the model during
// tool selection. Parameters is a JSON Schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolInvocation is the model's choice of tool and its arguments.
type ToolInvocation struct {
	Name      string
	Arguments map[string]any
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a single user prompt and returns the model's text reply.
func (s *ChatService) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	req := chatRequest{
		Model:       s.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}

	resp, err := s.send(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteWithTools forces the model to pick one of the offered tools.
// It returns the first tool call from the response; if the model produced
// plain text despite the forced choice, that text is returned instead.
func (s *ChatService) CompleteWithTools(ctx context.Context, prompt string, tools []ToolSpec) (*ToolInvocation, string, error) {
	apiTools := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		apiTools = append(apiTools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	req := chatRequest{
		Model:      s.model,
		Messages:   []chatMessage{{Role: "user", Content: prompt}},
		Tools:      apiTools,
		ToolChoice: "required",
	}

	resp, err := s.send(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("chat API returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, "", fmt.Errorf("failed to parse tool arguments for %s: %w", call.Function.Name, err)
			}
		}
		return &ToolInvocation{Name: call.Function.Name, Arguments: args}, "", nil
	}

	return nil, msg.Content, nil
}

func (s *ChatService) send(ctx context.Context, req chatRequest) (*chatResponse, error) {
	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/chat/completions")

	if err != nil {
		return nil, fmt.Errorf("failed to call chat API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error != nil {
			return nil, fmt.Errorf("chat API error: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("chat API error: status %d, body: %s", httpResp.StatusCode(), httpResp.String())
	}

	return &resp, nil
}
