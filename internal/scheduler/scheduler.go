// Package scheduler assigns pending executions to capable runtime sessions.
// It never talks to workers: an assignment is just an ExecutionAssigned event
// committed to the log. Concurrent schedulers may race on the same entry;
// the first assignment to reach the log wins and the materializer drops the
// rest, so losing a race is normal operation, not an error.
package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"cellflow/internal/eventlog"
	"cellflow/internal/events"
	"cellflow/internal/state"
)

type Scheduler struct {
	log    eventlog.Log
	store  *state.Store
	logger *slog.Logger
	wake   chan struct{}
}

func New(log eventlog.Log, store *state.Store, logger *slog.Logger) (*Scheduler, error) {
	if log == nil || store == nil {
		return nil, errors.New("log and store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		log:    log,
		store:  store,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}, nil
}

// Run watches the log and assigns pending work until ctx is cancelled.
// Log callbacks only nudge the loop; all commits happen on the loop's own
// goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	cancel, err := s.log.Attach(func(c eventlog.Committed) {
		switch c.Envelope.EventType {
		case events.TypeExecutionRequested,
			events.TypeExecutionCompleted,
			events.TypeExecutionCancelled,
			events.TypeRuntimeSessionStarted,
			events.TypeRuntimeSessionStatusChanged:
			s.nudge()
		}
	})
	if err != nil {
		return err
	}
	defer cancel()

	s.nudge()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			s.assignPending(ctx)
		}
	}
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) assignPending(ctx context.Context) {
	entries, err := s.store.PendingEntries()
	if err != nil {
		s.logger.Error("list pending entries failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	sessions, err := s.store.ReadySessions()
	if err != nil {
		s.logger.Error("list ready sessions failed", "error", err)
		return
	}
	for _, entry := range entries {
		cell, err := s.store.Cell(entry.CellID)
		if err != nil {
			// Cell deleted after the request; leave the entry for
			// cancellation by its requester.
			continue
		}
		session, ok := pickSession(sessions, cell.CellType)
		if !ok {
			continue
		}
		if _, err := s.log.Commit(ctx, &events.ExecutionAssigned{
			QueueID:          entry.ID,
			RuntimeSessionID: session.SessionID,
		}); err != nil {
			s.logger.Error("commit assignment failed", "queueId", entry.ID, "error", err)
			continue
		}
		s.logger.Info("execution assigned", "queueId", entry.ID, "cellId", entry.CellID, "sessionId", session.SessionID)
	}
}

func pickSession(sessions []state.RuntimeSession, cellType string) (state.RuntimeSession, bool) {
	for _, session := range sessions {
		if SessionCanExecute(session, cellType) {
			return session, true
		}
	}
	return state.RuntimeSession{}, false
}

// SessionCanExecute reports whether a session's capabilities cover a cell
// type. Markdown and raw cells are never executable.
func SessionCanExecute(session state.RuntimeSession, cellType string) bool {
	switch cellType {
	case events.CellTypeCode:
		return session.CanExecuteCode
	case events.CellTypeSQL:
		return session.CanExecuteSQL
	case events.CellTypeAI:
		return session.CanExecuteAI
	default:
		return false
	}
}

// ConfirmAssignment is the worker-side self-check after an assignment race:
// it reports whether the materialized entry really is assigned to sessionID.
// A worker that loses the race must abort without starting the execution.
func ConfirmAssignment(store *state.Store, queueID, sessionID string) (bool, error) {
	entry, err := store.QueueEntry(queueID)
	if err != nil {
		return false, err
	}
	return entry.Status == state.QueueAssigned && entry.AssignedRuntimeSession == sessionID, nil
}
