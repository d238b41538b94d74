package notebook

import (
	"context"
	"errors"
	"time"

	"cellflow/internal/eventlog"
	"cellflow/internal/events"
	"cellflow/internal/state"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultWaitTimeout  = 30 * time.Second
)

// ErrWaitTimeout is returned when an execution does not reach a terminal
// state within the waiter's timeout. It is local to the waiting caller: the
// execution itself is untouched and may still complete later.
var ErrWaitTimeout = errors.New("timed out waiting for execution to complete")

// Waiter blocks until a queue entry reaches a terminal state. Completion is
// signalled through a log subscription keyed by queue id; a poll ticker
// backs it up so a wait started against an already-terminal entry (or a
// missed notification) still resolves within one interval.
type Waiter struct {
	log          eventlog.Log
	store        *state.Store
	PollInterval time.Duration
	Timeout      time.Duration
}

func NewWaiter(log eventlog.Log, store *state.Store) (*Waiter, error) {
	if log == nil || store == nil {
		return nil, errors.New("log and store are required")
	}
	return &Waiter{
		log:          log,
		store:        store,
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultWaitTimeout,
	}, nil
}

func (w *Waiter) WaitForCompletion(ctx context.Context, queueID string) (state.ExecutionQueueEntry, error) {
	notify := make(chan struct{}, 1)
	cancel, err := w.log.Attach(func(c eventlog.Committed) {
		switch c.Envelope.EventType {
		case events.TypeExecutionCompleted, events.TypeExecutionCancelled:
		default:
			return
		}
		ev, err := events.Unwrap(c.Envelope)
		if err != nil {
			return
		}
		id := ""
		switch e := ev.(type) {
		case *events.ExecutionCompleted:
			id = e.QueueID
		case *events.ExecutionCancelled:
			id = e.QueueID
		}
		if id == queueID {
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return state.ExecutionQueueEntry{}, err
	}
	defer cancel()

	deadline := time.NewTimer(w.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		entry, err := w.store.QueueEntry(queueID)
		if err == nil && terminal(entry.Status) {
			return entry, nil
		}
		select {
		case <-ctx.Done():
			return state.ExecutionQueueEntry{}, ctx.Err()
		case <-deadline.C:
			return state.ExecutionQueueEntry{}, ErrWaitTimeout
		case <-notify:
		case <-ticker.C:
		}
	}
}

func terminal(status string) bool {
	switch status {
	case state.QueueCompleted, state.QueueFailed, state.QueueCancelled:
		return true
	}
	return false
}
