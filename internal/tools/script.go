package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/athenahq/athena/internal/lua"
)

// Script declares a tool implemented by a Lua file exposing run(args).
type Script struct {
	Name        string
	Description string
	File        string
	Parameters  map[string]any
}

// ScriptTools builds one dynamic tool per script.
func ScriptTools(scripts []Script) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(scripts))
	for _, s := range scripts {
		file := s.File
		d, err := NewDynamicTool(s.Name, s.Description, s.Parameters,
			func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args map[string]any
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
				}
				return lua.Run(ctx, file, args)
			})
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
