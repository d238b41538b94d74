// Package aibridge drives notebook edits from an AI model. The model talks
// through the OpenAI responses API; every side effect it produces goes
// through the same event-commit tools a human client would use.
package aibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

type ToolSpec struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type Tool interface {
	Name() string
	Spec() ToolSpec
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

type ToolRegistry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{byName: map[string]Tool{}}
}

func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return errors.New("tool is nil")
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return errors.New("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.byName[name] = tool
	return nil
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[strings.TrimSpace(name)]
	return tool, ok
}

func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name].Spec())
	}
	return out
}

// Execute runs the named tool. Tool failures come back as a JSON error
// payload rather than a Go error so the model sees them and can recover.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input json.RawMessage) string {
	tool, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf(`{"error":%q}`, "unknown tool: "+strings.TrimSpace(name))
	}
	out, err := tool.Execute(ctx, input)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return out
}
