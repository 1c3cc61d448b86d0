package provider

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolChoice controls whether the model may, must, or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// Image is an inline base64 image attached to a user message.
type Image struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ToolCall is a tool invocation requested by the model. Arguments holds the
// JSON object text exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a callable tool to the model. Parameters is a JSON
// Schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Images     []Image    `json:"images,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// IsError marks a tool message that carries a failure, not output.
	IsError bool `json:"is_error,omitempty"`
}

type CompletionRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	Tools       []ToolSpec `json:"tools,omitempty"`
	ToolChoice  ToolChoice `json:"tool_choice,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type CompletionResponse struct {
	ID        string     `json:"id"`
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Provider is an inference backend. Complete blocks until the model answers
// or ctx is done; callers that need concurrency run it in a goroutine.
type Provider interface {
	ID() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Models() []ModelInfo
}

// ImageFromBase64 normalises a client-supplied base64 payload: a data URL
// prefix is dropped along with any embedded whitespace.
func ImageFromBase64(s string) Image {
	clean := strings.TrimSpace(s)
	mediaType := "image/png"
	if strings.HasPrefix(clean, "data:") {
		header, body, ok := strings.Cut(clean, ",")
		if ok {
			clean = body
			if mt, _, found := strings.Cut(strings.TrimPrefix(header, "data:"), ";"); found && mt != "" {
				mediaType = mt
			}
		}
	}
	clean = strings.NewReplacer(" ", "", "\n", "", "\r", "", "\t", "").Replace(clean)
	return Image{MediaType: mediaType, Data: clean}
}
