package state

import (
	"testing"

	"cellflow/internal/events"
)

func addTerminal(id, cellID, text string, position float64) *events.TerminalOutputAdded {
	return &events.TerminalOutputAdded{
		ID:         id,
		CellID:     cellID,
		Content:    events.InlineText(text),
		StreamName: events.StreamStdout,
		Position:   position,
	}
}

func TestAppendConcatenatesInOrder(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		addTerminal("out-1", "cell-1", "A", 1),
		&events.TerminalOutputAppended{OutputID: "out-1", CellID: "cell-1", Content: events.InlineText("B"), StreamName: events.StreamStdout},
		&events.TerminalOutputAppended{OutputID: "out-1", CellID: "cell-1", Content: events.InlineText("C"), StreamName: events.StreamStdout},
	)

	output, err := store.Output("out-1")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if output.Data != "ABC" {
		t.Fatalf("data = %q, want ABC", output.Data)
	}
}

func TestAppendIgnoresMissingTarget(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		&events.TerminalOutputAppended{OutputID: "ghost", CellID: "cell-1", Content: events.InlineText("X"), StreamName: events.StreamStdout},
	)
	outputs, _ := store.OutputsForCell("cell-1")
	if len(outputs) != 0 {
		t.Fatalf("append against missing output created rows: %+v", outputs)
	}
}

func TestDuplicateOutputAddIgnored(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		addTerminal("out-1", "cell-1", "first", 1),
		addTerminal("out-1", "cell-1", "second", 2),
	)
	output, err := store.Output("out-1")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if output.Data != "first" {
		t.Fatalf("duplicate add overwrote row: %q", output.Data)
	}
}

func TestClearWithoutWaitDeletesImmediately(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		addTerminal("out-1", "cell-1", "old", 1),
		&events.CellOutputsCleared{CellID: "cell-1", ClearedBy: "alice"},
	)
	outputs, _ := store.OutputsForCell("cell-1")
	if len(outputs) != 0 {
		t.Fatalf("outputs survived immediate clear: %+v", outputs)
	}
}

func TestClearWithWaitDefersUntilNextAdd(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		addTerminal("out-1", "cell-1", "old", 1),
		&events.CellOutputsCleared{CellID: "cell-1", Wait: true, ClearedBy: "runtime"},
	)

	// Old outputs stay visible while the clear is pending.
	outputs, _ := store.OutputsForCell("cell-1")
	if len(outputs) != 1 || outputs[0].ID != "out-1" {
		t.Fatalf("pending clear removed outputs early: %+v", outputs)
	}
	pending, _ := store.HasPendingClear("cell-1")
	if !pending {
		t.Fatalf("pending clear marker missing")
	}

	// The first add consumes the marker and replaces the old outputs.
	mustApply(t, mat, addTerminal("out-2", "cell-1", "new", 1))
	outputs, _ = store.OutputsForCell("cell-1")
	if len(outputs) != 1 || outputs[0].ID != "out-2" || outputs[0].Data != "new" {
		t.Fatalf("clear-with-wait not consumed by next add: %+v", outputs)
	}
	pending, _ = store.HasPendingClear("cell-1")
	if pending {
		t.Fatalf("pending clear marker not consumed")
	}
}

func TestClearWithWaitOnlyAffectsOwnCell(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		addTerminal("out-1", "cell-1", "one", 1),
		addTerminal("out-2", "cell-2", "two", 1),
		&events.CellOutputsCleared{CellID: "cell-1", Wait: true, ClearedBy: "runtime"},
		addTerminal("out-3", "cell-1", "fresh", 1),
	)
	otherOutputs, _ := store.OutputsForCell("cell-2")
	if len(otherOutputs) != 1 {
		t.Fatalf("clear leaked into another cell: %+v", otherOutputs)
	}
}

func TestDisplayUpdateReplacesAllInstancesInPlace(t *testing.T) {
	mat, store := newTestMaterializer(t)
	reps := map[string]events.MediaContainer{"text/plain": events.InlineText("v1")}
	mustApply(t, mat,
		&events.MultimediaDisplayOutputAdded{ID: "out-1", CellID: "cell-1", DisplayID: "disp-1", Representations: reps, Position: 1},
		&events.MultimediaDisplayOutputAdded{ID: "out-2", CellID: "cell-2", DisplayID: "disp-1", Representations: reps, Position: 1},
		&events.MultimediaDisplayOutputUpdated{
			DisplayID:       "disp-1",
			Representations: map[string]events.MediaContainer{"text/plain": events.InlineText("v2")},
		},
	)

	for _, id := range []string{"out-1", "out-2"} {
		output, err := store.Output(id)
		if err != nil {
			t.Fatalf("output %s: %v", id, err)
		}
		if output.Data != "v2" {
			t.Fatalf("output %s not updated in place: %q", id, output.Data)
		}
		if output.Position != 1 {
			t.Fatalf("output %s moved on update: position %v", id, output.Position)
		}
	}
}

func TestResultOutputRecordsExecutionCount(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat, &events.MultimediaResultOutputAdded{
		ID:     "out-1",
		CellID: "cell-1",
		Representations: map[string]events.MediaContainer{
			"text/plain": events.InlineText("42"),
		},
		ExecutionCount: 3,
		Position:       1,
	})
	output, err := store.Output("out-1")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if output.ExecutionCount != 3 || output.OutputType != OutputMultimediaResult {
		t.Fatalf("unexpected result row: %+v", output)
	}
}
