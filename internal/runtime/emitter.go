package runtime

import (
	"context"

	"github.com/google/uuid"

	"cellflow/internal/eventlog"
	"cellflow/internal/events"
)

// Emitter streams outputs for one execution. Producers never buffer whole
// results: terminal and markdown content goes out chunk by chunk as add +
// append events, and positions increase monotonically within the cell.
type Emitter struct {
	log            eventlog.Log
	cellID         string
	executionCount int
	position       float64
	actor          string
}

func NewEmitter(log eventlog.Log, cellID string, executionCount int, actor string) *Emitter {
	return &Emitter{log: log, cellID: cellID, executionCount: executionCount, actor: actor}
}

func (e *Emitter) next() float64 {
	e.position++
	return e.position
}

// ClearPrevious schedules deletion of the cell's old outputs. With wait the
// delete is deferred until this execution's first output lands, so the cell
// never flashes empty.
func (e *Emitter) ClearPrevious(ctx context.Context, wait bool) error {
	_, err := e.log.Commit(ctx, &events.CellOutputsCleared{
		CellID:    e.cellID,
		Wait:      wait,
		ClearedBy: e.actor,
	})
	return err
}

func (e *Emitter) Terminal(ctx context.Context, streamName, text string) (string, error) {
	id := uuid.NewString()
	_, err := e.log.Commit(ctx, &events.TerminalOutputAdded{
		ID:         id,
		CellID:     e.cellID,
		Content:    events.InlineText(text),
		StreamName: streamName,
		Position:   e.next(),
	})
	return id, err
}

func (e *Emitter) AppendTerminal(ctx context.Context, outputID, streamName, text string) error {
	_, err := e.log.Commit(ctx, &events.TerminalOutputAppended{
		OutputID:   outputID,
		CellID:     e.cellID,
		Content:    events.InlineText(text),
		StreamName: streamName,
	})
	return err
}

func (e *Emitter) Markdown(ctx context.Context, text string) (string, error) {
	id := uuid.NewString()
	_, err := e.log.Commit(ctx, &events.MarkdownOutputAdded{
		ID:       id,
		CellID:   e.cellID,
		Content:  events.InlineText(text),
		Position: e.next(),
	})
	return id, err
}

func (e *Emitter) AppendMarkdown(ctx context.Context, outputID, text string) error {
	_, err := e.log.Commit(ctx, &events.MarkdownOutputAppended{
		OutputID: outputID,
		Content:  events.InlineText(text),
	})
	return err
}

func (e *Emitter) Display(ctx context.Context, displayID string, reps map[string]events.MediaContainer) (string, error) {
	id := uuid.NewString()
	_, err := e.log.Commit(ctx, &events.MultimediaDisplayOutputAdded{
		ID:              id,
		CellID:          e.cellID,
		DisplayID:       displayID,
		Representations: reps,
		Position:        e.next(),
	})
	return id, err
}

func (e *Emitter) UpdateDisplay(ctx context.Context, displayID string, reps map[string]events.MediaContainer) error {
	_, err := e.log.Commit(ctx, &events.MultimediaDisplayOutputUpdated{
		DisplayID:       displayID,
		Representations: reps,
	})
	return err
}

func (e *Emitter) Result(ctx context.Context, reps map[string]events.MediaContainer) (string, error) {
	id := uuid.NewString()
	_, err := e.log.Commit(ctx, &events.MultimediaResultOutputAdded{
		ID:              id,
		CellID:          e.cellID,
		Representations: reps,
		ExecutionCount:  e.executionCount,
		Position:        e.next(),
	})
	return id, err
}

func (e *Emitter) Error(ctx context.Context, text string) (string, error) {
	id := uuid.NewString()
	_, err := e.log.Commit(ctx, &events.ErrorOutputAdded{
		ID:       id,
		CellID:   e.cellID,
		Content:  events.InlineText(text),
		Position: e.next(),
	})
	return id, err
}
