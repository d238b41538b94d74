package aibridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type scriptedAPI struct {
	results []*CreateResponseResult
	err     error
	calls   []CreateResponseRequest
}

func (s *scriptedAPI) CreateResponse(ctx context.Context, req CreateResponseRequest) (*CreateResponseResult, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) == 0 {
		return &CreateResponseResult{FinalText: "done"}, nil
	}
	res := s.results[0]
	s.results = s.results[1:]
	return res, nil
}

type recordingTool struct {
	name   string
	inputs []string
	out    string
	err    error
}

func (t *recordingTool) Name() string { return t.name }

func (t *recordingTool) Spec() ToolSpec {
	return ToolSpec{Type: "function", Name: t.name, Parameters: map[string]any{"type": "object"}}
}

func (t *recordingTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	t.inputs = append(t.inputs, string(input))
	return t.out, t.err
}

func TestLoopReturnsFinalText(t *testing.T) {
	api := &scriptedAPI{results: []*CreateResponseResult{{FinalText: "all set"}}}
	runner := NewLoopRunner(api, NewToolRegistry(), LoopRunnerOptions{})

	answer, err := runner.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if answer != "all set" {
		t.Fatalf("answer = %q", answer)
	}
	if len(api.calls) != 1 {
		t.Fatalf("api called %d times, want 1", len(api.calls))
	}
}

func TestLoopExecutesToolAndReplaysHistory(t *testing.T) {
	tool := &recordingTool{name: "create_cell", out: `{"cellId":"c1"}`}
	registry := NewToolRegistry()
	if err := registry.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}
	api := &scriptedAPI{results: []*CreateResponseResult{
		{ToolCalls: []ToolCall{{CallID: "call-1", Name: "create_cell", Arguments: json.RawMessage(`{"cell_type":"code"}`)}}},
		{FinalText: "created"},
	}}
	runner := NewLoopRunner(api, registry, LoopRunnerOptions{})

	answer, err := runner.Run(context.Background(), "add a cell")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if answer != "created" {
		t.Fatalf("answer = %q", answer)
	}
	if len(tool.inputs) != 1 || tool.inputs[0] != `{"cell_type":"code"}` {
		t.Fatalf("tool inputs = %v", tool.inputs)
	}

	// The second request must replay the user message, the function_call and
	// its output.
	second, ok := api.calls[1].Input.([]map[string]any)
	if !ok {
		t.Fatalf("second input type %T", api.calls[1].Input)
	}
	if len(second) != 3 {
		t.Fatalf("history length = %d, want 3", len(second))
	}
	if second[1]["type"] != "function_call" || second[2]["type"] != "function_call_output" {
		t.Fatalf("history shape wrong: %v", second)
	}
	if second[2]["output"] != `{"cellId":"c1"}` {
		t.Fatalf("tool output not replayed: %v", second[2])
	}
}

func TestLoopSurfacesToolErrorToModel(t *testing.T) {
	tool := &recordingTool{name: "modify_cell", err: errors.New("cell not found")}
	registry := NewToolRegistry()
	_ = registry.Register(tool)
	api := &scriptedAPI{results: []*CreateResponseResult{
		{ToolCalls: []ToolCall{{CallID: "call-1", Name: "modify_cell", Arguments: json.RawMessage(`{}`)}}},
		{FinalText: "recovered"},
	}}
	runner := NewLoopRunner(api, registry, LoopRunnerOptions{})

	if _, err := runner.Run(context.Background(), "edit"); err != nil {
		t.Fatalf("run: %v", err)
	}
	second := api.calls[1].Input.([]map[string]any)
	out, _ := second[2]["output"].(string)
	if !strings.Contains(out, "cell not found") {
		t.Fatalf("tool error not surfaced: %q", out)
	}
}

func TestLoopStopsAtMaxIterations(t *testing.T) {
	registry := NewToolRegistry()
	_ = registry.Register(&recordingTool{name: "spin", out: "{}"})
	api := &scriptedAPI{results: []*CreateResponseResult{
		{ToolCalls: []ToolCall{{CallID: "c1", Name: "spin", Arguments: json.RawMessage(`{}`)}}},
		{ToolCalls: []ToolCall{{CallID: "c2", Name: "spin", Arguments: json.RawMessage(`{}`)}}},
		{ToolCalls: []ToolCall{{CallID: "c3", Name: "spin", Arguments: json.RawMessage(`{}`)}}},
	}}
	runner := NewLoopRunner(api, registry, LoopRunnerOptions{MaxIterations: 2})

	if _, err := runner.Run(context.Background(), "loop forever"); err == nil {
		t.Fatalf("expected max iterations error")
	}
	if len(api.calls) != 2 {
		t.Fatalf("api called %d times, want 2", len(api.calls))
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.Register(&recordingTool{name: "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&recordingTool{name: "a"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRegistryUnknownToolReturnsErrorPayload(t *testing.T) {
	registry := NewToolRegistry()
	out := registry.Execute(context.Background(), "ghost", json.RawMessage(`{}`))
	if !strings.Contains(out, "unknown tool") {
		t.Fatalf("out = %q", out)
	}
}

func TestParseResponseResult(t *testing.T) {
	raw := []byte(`{
		"id": "resp-1",
		"output": [
			{"type": "function_call", "call_id": "call-1", "name": "list_cells", "arguments": "{}"},
			{"type": "message", "content": [{"type": "output_text", "text": "hi"}]}
		]
	}`)
	res, err := parseResponseResult(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.ID != "resp-1" || res.FinalText != "hi" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Name != "list_cells" || res.ToolCalls[0].CallID != "call-1" {
		t.Fatalf("tool calls wrong: %+v", res.ToolCalls)
	}
}
