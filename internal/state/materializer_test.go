package state

import (
	"testing"

	"cellflow/internal/db"
	"cellflow/internal/events"
)

func newTestMaterializer(t *testing.T) (*Materializer, *Store) {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	store, err := NewStore(gdb)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	mat, err := NewMaterializer(store)
	if err != nil {
		t.Fatalf("new materializer: %v", err)
	}
	return mat, store
}

func mustApply(t *testing.T, mat *Materializer, evs ...events.Event) {
	t.Helper()
	for _, ev := range evs {
		if err := mat.Apply(ev); err != nil {
			t.Fatalf("apply %s: %v", ev.EventType(), err)
		}
	}
}

func executionScenario() []events.Event {
	return []events.Event{
		&events.NotebookInitialized{ID: "nb-1", Title: "demo", CreatedAt: 1000},
		&events.CellCreated{ID: "cell-1", CellType: "code", Position: "i", CreatedBy: "alice", CreatedAt: 1001},
		&events.CellSourceChanged{ID: "cell-1", Source: "print('hello')", ModifiedBy: "alice"},
		&events.RuntimeSessionStarted{
			SessionID:    "sess-1",
			RuntimeID:    "rt-1",
			RuntimeType:  "python",
			Capabilities: events.SessionCapabilities{CanExecuteCode: true},
			StartedAt:    1002,
		},
		&events.RuntimeSessionStatusChanged{SessionID: "sess-1", Status: events.SessionReady},
		&events.ExecutionRequested{QueueID: "q-1", CellID: "cell-1", ExecutionCount: 1, RequestedBy: "alice", RequestedAt: 1003},
		&events.ExecutionAssigned{QueueID: "q-1", RuntimeSessionID: "sess-1"},
		&events.ExecutionStarted{QueueID: "q-1", CellID: "cell-1", RuntimeSessionID: "sess-1", StartedAt: 1004},
		&events.TerminalOutputAdded{
			ID: "out-1", CellID: "cell-1",
			Content:    events.InlineText("hello\n"),
			StreamName: events.StreamStdout,
			Position:   1,
		},
		&events.ExecutionCompleted{QueueID: "q-1", CellID: "cell-1", Status: events.CompletionSuccess, CompletedAt: 1005, DurationMs: 2},
	}
}

func TestExecutionScenario(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat, executionScenario()...)

	cell, err := store.Cell("cell-1")
	if err != nil {
		t.Fatalf("cell: %v", err)
	}
	if cell.ExecutionState != CellCompleted {
		t.Fatalf("cell state = %q, want %q", cell.ExecutionState, CellCompleted)
	}
	if cell.ExecutionCount != 1 {
		t.Fatalf("execution count = %d, want 1", cell.ExecutionCount)
	}
	if cell.AssignedRuntimeSession != "" {
		t.Fatalf("assignment not released, got %q", cell.AssignedRuntimeSession)
	}

	entry, err := store.QueueEntry("q-1")
	if err != nil {
		t.Fatalf("queue entry: %v", err)
	}
	if entry.Status != QueueCompleted {
		t.Fatalf("queue status = %q, want %q", entry.Status, QueueCompleted)
	}
	if entry.StartedAt != 1004 || entry.CompletedAt != 1005 || entry.ExecutionDurationMs != 2 {
		t.Fatalf("timing columns wrong: %+v", entry)
	}

	outputs, err := store.OutputsForCell("cell-1")
	if err != nil {
		t.Fatalf("outputs: %v", err)
	}
	if len(outputs) != 1 || outputs[0].Data != "hello\n" {
		t.Fatalf("unexpected outputs %+v", outputs)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	mat, store := newTestMaterializer(t)
	sequence := executionScenario()
	mustApply(t, mat, sequence...)

	firstCells, _ := store.CellsInOrder()
	firstOutputs, _ := store.OutputsForCell("cell-1")
	firstEntry, _ := store.QueueEntry("q-1")

	// Replaying the full log from scratch against the same tables must
	// converge on the identical projection.
	mustApply(t, mat, sequence...)

	cells, _ := store.CellsInOrder()
	outputs, _ := store.OutputsForCell("cell-1")
	entry, _ := store.QueueEntry("q-1")

	if len(cells) != len(firstCells) {
		t.Fatalf("cell count changed on replay: %d != %d", len(cells), len(firstCells))
	}
	if len(outputs) != len(firstOutputs) {
		t.Fatalf("output count changed on replay: %d != %d", len(outputs), len(firstOutputs))
	}
	if entry != firstEntry {
		t.Fatalf("queue entry changed on replay:\n%+v\n%+v", entry, firstEntry)
	}
	if cells[0] != firstCells[0] {
		t.Fatalf("cell row changed on replay:\n%+v\n%+v", cells[0], firstCells[0])
	}
}

func TestTerminalQueueStateNeverRegresses(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat, executionScenario()...)

	// Late or duplicate lifecycle events arrive after completion.
	mustApply(t, mat,
		&events.ExecutionStarted{QueueID: "q-1", CellID: "cell-1", RuntimeSessionID: "sess-1", StartedAt: 2000},
		&events.ExecutionAssigned{QueueID: "q-1", RuntimeSessionID: "sess-2"},
		&events.ExecutionCancelled{QueueID: "q-1", CellID: "cell-1", CancelledBy: "bob", Reason: "late"},
	)

	entry, err := store.QueueEntry("q-1")
	if err != nil {
		t.Fatalf("queue entry: %v", err)
	}
	if entry.Status != QueueCompleted {
		t.Fatalf("terminal status regressed to %q", entry.Status)
	}
	if entry.CancelReason != "" {
		t.Fatalf("cancel reason set on completed entry: %q", entry.CancelReason)
	}
}

func TestAssignmentFirstCommitWins(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		&events.CellCreated{ID: "cell-1", CellType: "code", Position: "i", CreatedBy: "alice", CreatedAt: 1},
		&events.ExecutionRequested{QueueID: "q-1", CellID: "cell-1", ExecutionCount: 1, RequestedBy: "alice", RequestedAt: 2},
		&events.ExecutionAssigned{QueueID: "q-1", RuntimeSessionID: "sess-a"},
		&events.ExecutionAssigned{QueueID: "q-1", RuntimeSessionID: "sess-b"},
	)

	entry, err := store.QueueEntry("q-1")
	if err != nil {
		t.Fatalf("queue entry: %v", err)
	}
	if entry.AssignedRuntimeSession != "sess-a" {
		t.Fatalf("assignment = %q, want sess-a", entry.AssignedRuntimeSession)
	}
	if entry.Status != QueueAssigned {
		t.Fatalf("status = %q, want %q", entry.Status, QueueAssigned)
	}
}

func TestCancellationBeforeAssignment(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		&events.CellCreated{ID: "cell-1", CellType: "code", Position: "i", CreatedBy: "alice", CreatedAt: 1},
		&events.ExecutionRequested{QueueID: "q-1", CellID: "cell-1", ExecutionCount: 1, RequestedBy: "alice", RequestedAt: 2},
		&events.ExecutionCancelled{QueueID: "q-1", CellID: "cell-1", CancelledBy: "alice", Reason: "changed my mind"},
		&events.ExecutionAssigned{QueueID: "q-1", RuntimeSessionID: "sess-a"},
	)

	entry, err := store.QueueEntry("q-1")
	if err != nil {
		t.Fatalf("queue entry: %v", err)
	}
	if entry.Status != QueueCancelled {
		t.Fatalf("status = %q, want %q", entry.Status, QueueCancelled)
	}
	cell, _ := store.Cell("cell-1")
	if cell.ExecutionState != CellIdle {
		t.Fatalf("cell state = %q, want %q", cell.ExecutionState, CellIdle)
	}
}

func TestFailedCompletionMarksCellError(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		&events.CellCreated{ID: "cell-1", CellType: "code", Position: "i", CreatedBy: "alice", CreatedAt: 1},
		&events.ExecutionRequested{QueueID: "q-1", CellID: "cell-1", ExecutionCount: 1, RequestedBy: "alice", RequestedAt: 2},
		&events.ExecutionAssigned{QueueID: "q-1", RuntimeSessionID: "sess-a"},
		&events.ExecutionStarted{QueueID: "q-1", CellID: "cell-1", RuntimeSessionID: "sess-a", StartedAt: 3},
		&events.ExecutionCompleted{QueueID: "q-1", CellID: "cell-1", Status: events.CompletionError, CompletedAt: 4, DurationMs: 1},
	)

	entry, _ := store.QueueEntry("q-1")
	if entry.Status != QueueFailed {
		t.Fatalf("status = %q, want %q", entry.Status, QueueFailed)
	}
	cell, _ := store.Cell("cell-1")
	if cell.ExecutionState != CellError {
		t.Fatalf("cell state = %q, want %q", cell.ExecutionState, CellError)
	}
}

func TestCellDeletedRemovesOutputsAndMarkers(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		&events.CellCreated{ID: "cell-1", CellType: "code", Position: "i", CreatedBy: "alice", CreatedAt: 1},
		&events.TerminalOutputAdded{ID: "out-1", CellID: "cell-1", Content: events.InlineText("x"), StreamName: events.StreamStdout, Position: 1},
		&events.CellOutputsCleared{CellID: "cell-1", Wait: true, ClearedBy: "alice"},
		&events.CellDeleted{ID: "cell-1", DeletedBy: "alice"},
	)

	cells, _ := store.CellsInOrder()
	if len(cells) != 0 {
		t.Fatalf("cell not deleted: %+v", cells)
	}
	outputs, _ := store.OutputsForCell("cell-1")
	if len(outputs) != 0 {
		t.Fatalf("outputs not deleted: %+v", outputs)
	}
	pending, _ := store.HasPendingClear("cell-1")
	if pending {
		t.Fatalf("pending clear marker survived deletion")
	}
}

func TestSessionDisplacement(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		&events.RuntimeSessionStarted{SessionID: "sess-1", RuntimeID: "rt-1", RuntimeType: "python", StartedAt: 1},
		&events.RuntimeSessionStatusChanged{SessionID: "sess-1", Status: events.SessionReady},
		&events.RuntimeSessionStarted{SessionID: "sess-2", RuntimeID: "rt-1", RuntimeType: "python", StartedAt: 2},
	)

	old, err := store.Session("sess-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if old.IsActive || old.Status != events.SessionTerminated || old.TerminationReason != events.TerminationDisplaced {
		t.Fatalf("displaced session wrong: %+v", old)
	}

	current, _, err := store.ActiveSession()
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if current.SessionID != "sess-2" {
		t.Fatalf("active session = %q, want sess-2", current.SessionID)
	}
}

func TestTerminatedSessionIgnoresLateStatus(t *testing.T) {
	mat, store := newTestMaterializer(t)
	mustApply(t, mat,
		&events.RuntimeSessionStarted{SessionID: "sess-1", RuntimeID: "rt-1", RuntimeType: "python", StartedAt: 1},
		&events.RuntimeSessionTerminated{SessionID: "sess-1", Reason: events.TerminationShutdown},
		&events.RuntimeSessionStatusChanged{SessionID: "sess-1", Status: events.SessionReady},
		&events.RuntimeSessionTerminated{SessionID: "sess-1", Reason: events.TerminationError},
	)

	sess, err := store.Session("sess-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.Status != events.SessionTerminated {
		t.Fatalf("status = %q, want terminated", sess.Status)
	}
	if sess.TerminationReason != events.TerminationShutdown {
		t.Fatalf("termination reason = %q, want first reason to win", sess.TerminationReason)
	}
}
