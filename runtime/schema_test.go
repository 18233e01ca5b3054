package runtime

import (
	"encoding/json"
	"testing"
)

func TestToolParameters(t *testing.T) {
	type compactArgs struct {
		KeepTurns int    `json:"keep_turns"`
		Reason    string `json:"reason,omitempty"`
	}

	params, err := ToolParameters(&compactArgs{})
	if err != nil {
		t.Fatalf("ToolParameters() error = %v", err)
	}

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(params, &schema); err != nil {
		t.Fatalf("schema not valid JSON: %v", err)
	}

	if schema.Type != "object" {
		t.Errorf("schema type = %q", schema.Type)
	}
	if _, ok := schema.Properties["keep_turns"]; !ok {
		t.Errorf("keep_turns missing from properties: %v", schema.Properties)
	}
	if _, ok := schema.Properties["reason"]; !ok {
		t.Errorf("reason missing from properties: %v", schema.Properties)
	}

	found := false
	for _, r := range schema.Required {
		if r == "keep_turns" {
			found = true
		}
	}
	if !found {
		t.Errorf("keep_turns not required: %v", schema.Required)
	}
}

func TestMustToolParameters(t *testing.T) {
	type args struct {
		Name string `json:"name"`
	}

	params := MustToolParameters(&args{})
	tool := Tool{ID: "rename", Name: "Rename", Parameters: params}

	data, err := json.Marshal(tool)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("empty tool payload")
	}
}
