package notebook

import (
	"context"
	"errors"
	"testing"
	"time"

	"cellflow/internal/events"
	"cellflow/internal/state"
)

func TestWaitForCompletionReturnsTerminalEntry(t *testing.T) {
	client, log, store := newTestClient(t)
	ctx := context.Background()

	cellID, _ := client.CreateCell(ctx, events.CellTypeCode, "")
	queueID, err := client.RequestExecution(ctx, cellID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	waiter, err := NewWaiter(log, store)
	if err != nil {
		t.Fatalf("new waiter: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = log.Commit(context.Background(), &events.ExecutionAssigned{QueueID: queueID, RuntimeSessionID: "sess-1"})
		_, _ = log.Commit(context.Background(), &events.ExecutionCompleted{QueueID: queueID, CellID: cellID, Status: events.CompletionSuccess, CompletedAt: 10, DurationMs: 1})
	}()

	entry, err := waiter.WaitForCompletion(ctx, queueID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if entry.Status != state.QueueCompleted {
		t.Fatalf("status = %q, want completed", entry.Status)
	}
}

func TestWaitForCompletionAlreadyTerminal(t *testing.T) {
	client, log, store := newTestClient(t)
	ctx := context.Background()

	cellID, _ := client.CreateCell(ctx, events.CellTypeCode, "")
	queueID, _ := client.RequestExecution(ctx, cellID)
	if err := client.CancelExecution(ctx, queueID, "done before wait"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	waiter, _ := NewWaiter(log, store)
	entry, err := waiter.WaitForCompletion(ctx, queueID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if entry.Status != state.QueueCancelled {
		t.Fatalf("status = %q, want cancelled", entry.Status)
	}
}

func TestWaitForCompletionTimesOut(t *testing.T) {
	client, log, store := newTestClient(t)
	ctx := context.Background()

	cellID, _ := client.CreateCell(ctx, events.CellTypeCode, "")
	queueID, _ := client.RequestExecution(ctx, cellID)

	waiter, _ := NewWaiter(log, store)
	waiter.PollInterval = 10 * time.Millisecond
	waiter.Timeout = 100 * time.Millisecond

	_, err := waiter.WaitForCompletion(ctx, queueID)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
}

func TestWaitForCompletionHonorsContext(t *testing.T) {
	client, log, store := newTestClient(t)

	cellID, _ := client.CreateCell(context.Background(), events.CellTypeCode, "")
	queueID, _ := client.RequestExecution(context.Background(), cellID)

	waiter, _ := NewWaiter(log, store)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := waiter.WaitForCompletion(ctx, queueID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
