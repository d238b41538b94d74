package aibridge

import (
	"context"
	"errors"

	"cellflow/internal/runtime"
	"cellflow/internal/state"
)

// CellExecutor runs ai cells: the cell source is the prompt, the model's
// final answer lands as a markdown output. The tool loop may edit and
// execute other cells along the way; those show up as regular events.
type CellExecutor struct {
	Runner *LoopRunner
}

func (e *CellExecutor) Execute(ctx context.Context, cell state.Cell, emit *runtime.Emitter) error {
	if e == nil || e.Runner == nil {
		return errors.New("ai runner is not configured")
	}
	answer, err := e.Runner.Run(ctx, cell.Source)
	if err != nil {
		return err
	}
	_, err = emit.Markdown(ctx, answer)
	return err
}
