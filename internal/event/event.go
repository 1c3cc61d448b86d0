// Package event defines the orchestration events emitted during a
// tool-calling run and their server-sent-events encoding.
package event

import (
	"encoding/json"
	"fmt"
)

// Type is the "type" discriminator carried by every serialized event.
type Type string

const (
	TypeStarted              Type = "started"
	TypeToolCallsDetected    Type = "tool_calls_detected"
	TypeToolStarted          Type = "tool_started"
	TypeToolCompleted        Type = "tool_completed"
	TypeToolError            Type = "tool_error"
	TypeFinalResult          Type = "final_result"
	TypeMaxIterationsReached Type = "max_iterations_reached"
	TypeError                Type = "error"
)

// Event is one of the concrete event structs in this package. The set is
// closed: only types declared here implement it.
type Event interface {
	Type() Type
	isEvent()
}

type Started struct {
	Message string
}

type ToolCallsDetected struct {
	Count     int
	Iteration int
}

// ToolStarted carries the call arguments as the model produced them.
// Input is always valid JSON: arguments that failed to parse are carried
// as a JSON string.
type ToolStarted struct {
	ToolName string
	Input    json.RawMessage
}

type ToolCompleted struct {
	ToolName string
	Output   string
}

type ToolError struct {
	ToolName string
	Error    string
}

type FinalResult struct {
	Message string
}

type MaxIterationsReached struct {
	Message string
}

type Error struct {
	Message string
}

func (Started) Type() Type              { return TypeStarted }
func (ToolCallsDetected) Type() Type    { return TypeToolCallsDetected }
func (ToolStarted) Type() Type          { return TypeToolStarted }
func (ToolCompleted) Type() Type        { return TypeToolCompleted }
func (ToolError) Type() Type            { return TypeToolError }
func (FinalResult) Type() Type          { return TypeFinalResult }
func (MaxIterationsReached) Type() Type { return TypeMaxIterationsReached }
func (Error) Type() Type                { return TypeError }

func (Started) isEvent()              {}
func (ToolCallsDetected) isEvent()    {}
func (ToolStarted) isEvent()          {}
func (ToolCompleted) isEvent()        {}
func (ToolError) isEvent()            {}
func (FinalResult) isEvent()          {}
func (MaxIterationsReached) isEvent() {}
func (Error) isEvent()                {}

// Terminal reports whether e ends a run.
func Terminal(e Event) bool {
	switch e.(type) {
	case FinalResult, MaxIterationsReached, Error:
		return true
	}
	return false
}

type messagePayload struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

type detectedPayload struct {
	Type      Type `json:"type"`
	Count     int  `json:"count"`
	Iteration int  `json:"iteration"`
}

type startedPayload struct {
	Type     Type            `json:"type"`
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input"`
}

type completedPayload struct {
	Type     Type   `json:"type"`
	ToolName string `json:"tool_name"`
	Output   string `json:"output"`
}

type errorPayload struct {
	Type     Type   `json:"type"`
	ToolName string `json:"tool_name"`
	Error    string `json:"error"`
}

// Marshal encodes e as the JSON object sent to stream consumers.
func Marshal(e Event) ([]byte, error) {
	var payload any
	switch ev := e.(type) {
	case Started:
		payload = messagePayload{Type: ev.Type(), Message: ev.Message}
	case ToolCallsDetected:
		payload = detectedPayload{Type: ev.Type(), Count: ev.Count, Iteration: ev.Iteration}
	case ToolStarted:
		input := ev.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		payload = startedPayload{Type: ev.Type(), ToolName: ev.ToolName, Input: input}
	case ToolCompleted:
		payload = completedPayload{Type: ev.Type(), ToolName: ev.ToolName, Output: ev.Output}
	case ToolError:
		payload = errorPayload{Type: ev.Type(), ToolName: ev.ToolName, Error: ev.Error}
	case FinalResult:
		payload = messagePayload{Type: ev.Type(), Message: ev.Message}
	case MaxIterationsReached:
		payload = messagePayload{Type: ev.Type(), Message: ev.Message}
	case Error:
		payload = messagePayload{Type: ev.Type(), Message: ev.Message}
	default:
		return nil, fmt.Errorf("event: unknown event %T", e)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s: %w", e.Type(), err)
	}
	return data, nil
}
