package runtime

import (
	"context"
	"strings"

	"cellflow/internal/events"
	"cellflow/internal/state"
)

// EchoExecutor is the built-in executor used by tests and by the demo
// runtime: it streams the cell source back line by line on stdout and
// finishes with a plain-text result. Real language kernels plug in behind
// the same Executor interface.
type EchoExecutor struct{}

func (EchoExecutor) Execute(ctx context.Context, cell state.Cell, emit *Emitter) error {
	lines := strings.SplitAfter(cell.Source, "\n")
	outputID := ""
	for _, line := range lines {
		if line == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if outputID == "" {
			id, err := emit.Terminal(ctx, events.StreamStdout, line)
			if err != nil {
				return err
			}
			outputID = id
			continue
		}
		if err := emit.AppendTerminal(ctx, outputID, events.StreamStdout, line); err != nil {
			return err
		}
	}
	_, err := emit.Result(ctx, map[string]events.MediaContainer{
		"text/plain": events.InlineText(strings.TrimRight(cell.Source, "\n")),
	})
	return err
}
