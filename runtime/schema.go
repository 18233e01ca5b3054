package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToolParameters reflects a Go struct into the JSON Schema carried by a
// Tool's Parameters field. Worker implementations written in Go use it to
// advertise tool inputs without hand-writing schema JSON.
//
// Example:
//
//	type compactArgs struct {
//	    KeepTurns int `json:"keep_turns" jsonschema:"minimum=1"`
//	}
//
//	params, err := runtime.ToolParameters(&compactArgs{})
//	tool := runtime.Tool{ID: "compact", Name: "Compact session", Parameters: params}
func ToolParameters(v any) (json.RawMessage, error) {
	reflector := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal tool schema: %w", err)
	}
	return data, nil
}

// MustToolParameters is ToolParameters panicking on error. Use for static
// tool tables where the schema is known to reflect cleanly.
func MustToolParameters(v any) json.RawMessage {
	params, err := ToolParameters(v)
	if err != nil {
		panic(fmt.Sprintf("runtime.MustToolParameters: %v", err))
	}
	return params
}
