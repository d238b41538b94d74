package aibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cellflow/internal/notebook"
	"cellflow/internal/state"
)

// NotebookToolset binds the notebook tools to one notebook. Every mutation
// goes through the regular client so the model's edits are ordinary events
// on the shared log.
type NotebookToolset struct {
	Client *notebook.Client
	Waiter *notebook.Waiter
	Store  *state.Store
}

func (t *NotebookToolset) RegisterAll(registry *ToolRegistry) error {
	tools := []Tool{
		&listCellsTool{t},
		&createCellTool{t},
		&modifyCellTool{t},
		&executeCellTool{t},
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

type listCellsTool struct{ set *NotebookToolset }

func (t *listCellsTool) Name() string { return "list_cells" }

func (t *listCellsTool) Spec() ToolSpec {
	return ToolSpec{
		Type:        "function",
		Name:        t.Name(),
		Description: "List the notebook cells in document order with their id, type, source and execution state.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *listCellsTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	_ = ctx
	_ = input
	cells, err := t.set.Store.CellsInOrder()
	if err != nil {
		return "", err
	}
	type cellView struct {
		ID             string `json:"id"`
		CellType       string `json:"cellType"`
		Source         string `json:"source"`
		ExecutionState string `json:"executionState"`
	}
	views := make([]cellView, 0, len(cells))
	for _, cell := range cells {
		views = append(views, cellView{
			ID:             cell.ID,
			CellType:       cell.CellType,
			Source:         cell.Source,
			ExecutionState: cell.ExecutionState,
		})
	}
	raw, err := json.Marshal(views)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type createCellTool struct{ set *NotebookToolset }

func (t *createCellTool) Name() string { return "create_cell" }

func (t *createCellTool) Spec() ToolSpec {
	return ToolSpec{
		Type:        "function",
		Name:        t.Name(),
		Description: "Create a new cell, optionally after an existing cell, and set its source.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cell_type":     map[string]any{"type": "string", "enum": []string{"code", "markdown", "sql", "ai"}},
				"source":        map[string]any{"type": "string"},
				"after_cell_id": map[string]any{"type": "string", "description": "Insert after this cell; omit to append at the end."},
			},
			"required": []string{"cell_type", "source"},
		},
	}
}

func (t *createCellTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	req := struct {
		CellType    string `json:"cell_type"`
		Source      string `json:"source"`
		AfterCellID string `json:"after_cell_id"`
	}{}
	if err := json.Unmarshal(input, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.CellType) == "" {
		return "", errors.New("cell_type is required")
	}
	cellID, err := t.set.Client.CreateCell(ctx, req.CellType, req.AfterCellID)
	if err != nil {
		return "", err
	}
	if req.Source != "" {
		if err := t.set.Client.SetSource(ctx, cellID, req.Source); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf(`{"cellId":%q}`, cellID), nil
}

type modifyCellTool struct{ set *NotebookToolset }

func (t *modifyCellTool) Name() string { return "modify_cell" }

func (t *modifyCellTool) Spec() ToolSpec {
	return ToolSpec{
		Type:        "function",
		Name:        t.Name(),
		Description: "Replace the source of an existing cell.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cell_id": map[string]any{"type": "string"},
				"source":  map[string]any{"type": "string"},
			},
			"required": []string{"cell_id", "source"},
		},
	}
}

func (t *modifyCellTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	req := struct {
		CellID string `json:"cell_id"`
		Source string `json:"source"`
	}{}
	if err := json.Unmarshal(input, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.CellID) == "" {
		return "", errors.New("cell_id is required")
	}
	if err := t.set.Client.SetSource(ctx, req.CellID, req.Source); err != nil {
		return "", err
	}
	return `{"ok":true}`, nil
}

type executeCellTool struct{ set *NotebookToolset }

func (t *executeCellTool) Name() string { return "execute_cell" }

func (t *executeCellTool) Spec() ToolSpec {
	return ToolSpec{
		Type:        "function",
		Name:        t.Name(),
		Description: "Execute a cell and wait for it to finish, returning its outputs as text.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cell_id": map[string]any{"type": "string"},
			},
			"required": []string{"cell_id"},
		},
	}
}

func (t *executeCellTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	req := struct {
		CellID string `json:"cell_id"`
	}{}
	if err := json.Unmarshal(input, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.CellID) == "" {
		return "", errors.New("cell_id is required")
	}
	queueID, err := t.set.Client.RequestExecution(ctx, req.CellID)
	if err != nil {
		return "", err
	}
	entry, err := t.set.Waiter.WaitForCompletion(ctx, queueID)
	if err != nil {
		return "", err
	}
	outputs, err := t.set.Store.OutputsForCell(req.CellID)
	if err != nil {
		return "", err
	}
	result := struct {
		Status  string `json:"status"`
		Outputs string `json:"outputs"`
	}{Status: entry.Status, Outputs: renderOutputsAsText(outputs)}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// renderOutputsAsText flattens a cell's outputs into a plain-text transcript
// the model can read. Multimedia outputs fall back to their primary mime
// type when the data is not textual.
func renderOutputsAsText(outputs []state.Output) string {
	var b strings.Builder
	for _, output := range outputs {
		switch output.OutputType {
		case state.OutputTerminal, state.OutputMarkdown, state.OutputError:
			b.WriteString(output.Data)
		default:
			if output.MimeType == "text/plain" || strings.HasSuffix(output.MimeType, "/json") || output.MimeType == "text/html" || output.MimeType == "text/markdown" {
				b.WriteString(output.Data)
			} else if output.MimeType != "" {
				fmt.Fprintf(&b, "[%s output]", output.MimeType)
			}
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
