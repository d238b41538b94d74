package aibridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type LoopRunnerOptions struct {
	Instructions  string
	MaxIterations int
}

// LoopRunner drives a tool-use conversation to completion. It re-sends the
// full conversation history (user message, function_call items and their
// outputs) on every request instead of relying on previous_response_id, so
// it works with proxies and providers that do not persist responses
// server-side.
type LoopRunner struct {
	client  ResponsesAPI
	tools   *ToolRegistry
	options LoopRunnerOptions
}

func NewLoopRunner(client ResponsesAPI, tools *ToolRegistry, options LoopRunnerOptions) *LoopRunner {
	if options.MaxIterations <= 0 {
		options.MaxIterations = 8
	}
	return &LoopRunner{client: client, tools: tools, options: options}
}

func (r *LoopRunner) Run(ctx context.Context, userPrompt string) (string, error) {
	if r == nil || r.client == nil {
		return "", errors.New("loop runner client is required")
	}
	history := []map[string]any{userMessageItem(userPrompt)}

	for i := 0; i < r.options.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		req := CreateResponseRequest{
			Instructions: r.options.Instructions,
			Input:        append([]map[string]any{}, history...),
		}
		if r.tools != nil {
			req.Tools = r.tools.Specs()
		}
		res, err := r.client.CreateResponse(ctx, req)
		if err != nil {
			return "", fmt.Errorf("responses request failed iteration=%d: %w", i+1, err)
		}
		if res.HasFinalText() {
			return res.FinalText, nil
		}
		if len(res.ToolCalls) == 0 {
			return "", fmt.Errorf("responses api returned no output_text and no tool_calls iteration=%d response_id=%q", i+1, strings.TrimSpace(res.ID))
		}
		for _, call := range res.ToolCalls {
			callID := strings.TrimSpace(call.CallID)
			if callID == "" {
				return "", fmt.Errorf("responses tool call missing call_id iteration=%d tool=%q", i+1, strings.TrimSpace(call.Name))
			}
			out := `{"error":"tool registry unavailable"}`
			if r.tools != nil {
				out = r.tools.Execute(ctx, call.Name, call.Arguments)
			}
			history = append(history, functionCallItem(call), functionCallOutputItem(callID, out))
		}
	}
	return "", fmt.Errorf("responses loop exceeded max iterations: %d", r.options.MaxIterations)
}

func userMessageItem(text string) map[string]any {
	return map[string]any{
		"type": "message",
		"role": "user",
		"content": []map[string]any{
			{"type": "input_text", "text": strings.TrimSpace(text)},
		},
	}
}

func functionCallItem(call ToolCall) map[string]any {
	arguments := strings.TrimSpace(string(call.Arguments))
	if arguments == "" {
		arguments = "{}"
	}
	return map[string]any{
		"type":      "function_call",
		"call_id":   strings.TrimSpace(call.CallID),
		"name":      strings.TrimSpace(call.Name),
		"arguments": arguments,
	}
}

func functionCallOutputItem(callID, output string) map[string]any {
	return map[string]any{
		"type":    "function_call_output",
		"call_id": callID,
		"output":  output,
	}
}
