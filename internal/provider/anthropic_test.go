package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}

		var req anthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.System != "You are helpful." {
			t.Errorf("system = %q", req.System)
		}
		if len(req.Messages) != 1 {
			t.Errorf("messages = %d, want 1 (system extracted)", len(req.Messages))
		}
		if req.MaxTokens != 4096 {
			t.Errorf("max_tokens = %d, want default 4096", req.MaxTokens)
		}
		if req.Tools != nil || req.ToolChoice != nil {
			t.Error("tools should be omitted when none are offered")
		}

		_, _ = w.Write([]byte(`{
			"id": "msg_123",
			"type": "message",
			"model": "claude-sonnet-4",
			"content": [{"type": "text", "text": "Hello!"}, {"type": "text", "text": "Anything else?"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider("anthropic", server.URL, "sk-ant-test", nil)

	resp, err := p.Complete(context.Background(), &CompletionRequest{
		Model: "claude-sonnet-4",
		Messages: []Message{
			{Role: RoleSystem, Content: "You are helpful."},
			{Role: RoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "msg_123" {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Content != "Hello!\n\nAnything else?" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.ToolCalls != nil {
		t.Errorf("tool_calls = %v, want nil", resp.ToolCalls)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestAnthropicToolUseRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Name != "send_gmail_message" {
			t.Fatalf("tools = %+v", req.Tools)
		}
		if req.Tools[0].InputSchema["type"] != "object" {
			t.Errorf("input_schema = %v", req.Tools[0].InputSchema)
		}
		if req.ToolChoice == nil || req.ToolChoice.Type != "any" {
			t.Errorf("tool_choice = %+v, want any", req.ToolChoice)
		}

		// user, assistant(tool_use x2), user(tool_result x2)
		if len(req.Messages) != 3 {
			t.Fatalf("messages = %d, want 3", len(req.Messages))
		}
		assistant := req.Messages[1]
		if assistant.Role != "assistant" || len(assistant.Content) != 3 {
			t.Fatalf("assistant = %+v", assistant)
		}
		if assistant.Content[0].Type != "text" || assistant.Content[1].Type != "tool_use" {
			t.Errorf("assistant blocks = %+v", assistant.Content)
		}
		if string(assistant.Content[2].Input) != "{}" {
			t.Errorf("invalid arguments should become {}, got %s", assistant.Content[2].Input)
		}
		results := req.Messages[2]
		if results.Role != "user" || len(results.Content) != 2 {
			t.Fatalf("tool results = %+v, want one user turn with 2 blocks", results)
		}
		if results.Content[0].Type != "tool_result" || results.Content[0].ToolUseID != "tu_1" || results.Content[0].IsError {
			t.Errorf("tool_result = %+v", results.Content[0])
		}
		if !results.Content[1].IsError {
			t.Errorf("failed tool_result should set is_error: %+v", results.Content[1])
		}

		_, _ = w.Write([]byte(`{
			"id": "msg_2",
			"content": [
				{"type": "text", "text": "Sending now."},
				{"type": "tool_use", "id": "tu_3", "name": "send_gmail_message", "input": {"message": "hi", "to": ["a@b.c"]}},
				{"type": "tool_use", "id": "tu_4", "name": "get_issues", "input": null}
			],
			"stop_reason": "tool_use"
		}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider("anthropic", server.URL, "key", nil)
	resp, err := p.Complete(context.Background(), &CompletionRequest{
		Model: "claude-sonnet-4",
		Messages: []Message{
			{Role: RoleUser, Content: "email bob"},
			{Role: RoleAssistant, Content: "Working on it.", ToolCalls: []ToolCall{
				{ID: "tu_1", Name: "get_issues", Arguments: `{"state":"open"}`},
				{ID: "tu_2", Name: "get_issues", Arguments: `not json`},
			}},
			{Role: RoleTool, ToolCallID: "tu_1", Content: "no issues"},
			{Role: RoleTool, ToolCallID: "tu_2", Content: "Error executing get_issues: bad args", IsError: true},
		},
		Tools:      []ToolSpec{{Name: "send_gmail_message", Description: "Send", Parameters: map[string]any{"type": "object"}}},
		ToolChoice: ToolChoiceRequired,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Sending now." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool_calls = %d, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "send_gmail_message" || resp.ToolCalls[0].ID != "tu_3" {
		t.Errorf("tool call = %+v", resp.ToolCalls[0])
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(resp.ToolCalls[0].Arguments), &args); err != nil {
		t.Fatalf("arguments not JSON: %v", err)
	}
	if args["message"] != "hi" {
		t.Errorf("arguments = %v", args)
	}
	if resp.ToolCalls[1].Arguments != "{}" {
		t.Errorf("null input should become {}, got %q", resp.ToolCalls[1].Arguments)
	}
}

func TestAnthropicToolChoiceNoneOmitsTools(t *testing.T) {
	p := NewAnthropicProvider("anthropic", "", "key", nil)
	req := p.toAnthRequest(&CompletionRequest{
		Messages:   []Message{{Role: RoleUser, Content: "hi"}},
		Tools:      []ToolSpec{{Name: "x"}},
		ToolChoice: ToolChoiceNone,
	})
	if req.Tools != nil || req.ToolChoice != nil {
		t.Errorf("tools should be omitted for tool_choice none, got %+v", req.Tools)
	}

	req = p.toAnthRequest(&CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools:    []ToolSpec{{Name: "x"}},
	})
	if req.ToolChoice == nil || req.ToolChoice.Type != "auto" {
		t.Errorf("tool_choice = %+v, want auto", req.ToolChoice)
	}
	if req.Tools[0].InputSchema["type"] != "object" {
		t.Error("nil parameters should default to an object schema")
	}
}

func TestAnthropicImageBlocks(t *testing.T) {
	p := NewAnthropicProvider("anthropic", "", "key", nil)
	req := p.toAnthRequest(&CompletionRequest{
		Messages: []Message{{
			Role:    RoleUser,
			Content: "classify",
			Images:  []Image{{MediaType: "image/jpeg", Data: "/9j/"}},
		}},
	})
	blocks := req.Messages[0].Content
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	img := blocks[1]
	if img.Type != "image" || img.Source == nil {
		t.Fatalf("image block = %+v", img)
	}
	if img.Source.Type != "base64" || img.Source.MediaType != "image/jpeg" || img.Source.Data != "/9j/" {
		t.Errorf("image source = %+v", img.Source)
	}
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider("anthropic", server.URL, "key", nil)
	_, err := p.Complete(context.Background(), &CompletionRequest{
		Model:    "claude",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Temporary() {
		t.Errorf("api error = %+v", apiErr)
	}
	if got := err.Error(); !strings.HasPrefix(got, "anthropic api error (status 400)") {
		t.Errorf("message = %q", got)
	}
}

func TestAnthropicErrorInBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider("anthropic", server.URL, "key", nil)
	if _, err := p.Complete(context.Background(), &CompletionRequest{Model: "claude"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestAnthropicDefaultBaseURL(t *testing.T) {
	p := NewAnthropicProvider("anthropic", "", "key", nil)
	if p.baseURL != anthropicDefaultBaseURL {
		t.Errorf("baseURL = %q", p.baseURL)
	}
}
