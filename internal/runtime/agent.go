// Package runtime implements the worker agent: one process lifetime of a
// runtime session. The agent registers itself on the log, oscillates between
// ready and busy while draining assigned executions, and streams outputs as
// it goes. It discovers its own assignments by materializing the same log as
// everyone else.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cellflow/internal/eventlog"
	"cellflow/internal/events"
	"cellflow/internal/scheduler"
	"cellflow/internal/state"
)

// Executor runs one cell and streams output through the emitter. A non-nil
// error marks the execution failed; the agent reports it as an error output
// plus a failed completion.
type Executor interface {
	Execute(ctx context.Context, cell state.Cell, emit *Emitter) error
}

type Options struct {
	Log          eventlog.Log
	Store        *state.Store
	Logger       *slog.Logger
	RuntimeID    string
	RuntimeType  string
	Capabilities events.SessionCapabilities
	AiModels     []string
	Executor     Executor
}

type Agent struct {
	opts      Options
	logger    *slog.Logger
	sessionID string
	wake      chan struct{}
}

func NewAgent(opts Options) (*Agent, error) {
	if opts.Log == nil || opts.Store == nil || opts.Executor == nil {
		return nil, errors.New("log, store and executor are required")
	}
	if opts.RuntimeID == "" {
		return nil, errors.New("runtime id is required")
	}
	if opts.RuntimeType == "" {
		opts.RuntimeType = "generic"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		opts:   opts,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}, nil
}

// SessionID returns the current session id; empty before the first Run.
func (a *Agent) SessionID() string { return a.sessionID }

// Run registers a fresh session and serves assignments until ctx is
// cancelled, then terminates the session with reason shutdown.
func (a *Agent) Run(ctx context.Context) error {
	a.sessionID = uuid.NewString()
	log := a.opts.Log

	cancel, err := log.Attach(func(c eventlog.Committed) {
		switch c.Envelope.EventType {
		case events.TypeExecutionAssigned, events.TypeExecutionCancelled:
			a.nudge()
		}
	})
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := log.Commit(ctx, &events.RuntimeSessionStarted{
		SessionID:         a.sessionID,
		RuntimeID:         a.opts.RuntimeID,
		RuntimeType:       a.opts.RuntimeType,
		Capabilities:      a.opts.Capabilities,
		AvailableAiModels: a.opts.AiModels,
		StartedAt:         time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	if err := a.setStatus(ctx, events.SessionReady); err != nil {
		return err
	}
	a.logger.Info("runtime session started", "sessionId", a.sessionID, "runtimeId", a.opts.RuntimeID)

	a.nudge()
	for {
		select {
		case <-ctx.Done():
			a.terminate(events.TerminationShutdown)
			return nil
		case <-a.wake:
			if err := a.drainAssigned(ctx); err != nil {
				if ctx.Err() != nil {
					a.terminate(events.TerminationShutdown)
					return nil
				}
				a.logger.Error("drain assigned failed", "error", err)
			}
		}
	}
}

// Restart announces a voluntary restart for the current session. The next
// Run registers a new session id under the same runtime id.
func (a *Agent) Restart(ctx context.Context) error {
	if a.sessionID == "" {
		return errors.New("no session to restart")
	}
	if _, err := a.opts.Log.Commit(ctx, &events.RuntimeSessionStatusChanged{
		SessionID: a.sessionID,
		Status:    events.SessionRestarting,
	}); err != nil {
		return err
	}
	_, err := a.opts.Log.Commit(ctx, &events.RuntimeSessionTerminated{
		SessionID: a.sessionID,
		Reason:    events.TerminationRestart,
	})
	a.sessionID = ""
	return err
}

func (a *Agent) nudge() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Agent) setStatus(ctx context.Context, status string) error {
	_, err := a.opts.Log.Commit(ctx, &events.RuntimeSessionStatusChanged{
		SessionID: a.sessionID,
		Status:    status,
	})
	return err
}

// terminate runs on shutdown with its own deadline; the run ctx is already
// cancelled by then.
func (a *Agent) terminate(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := a.opts.Log.Commit(ctx, &events.RuntimeSessionTerminated{
		SessionID: a.sessionID,
		Reason:    reason,
	}); err != nil {
		a.logger.Warn("session termination commit failed", "error", err)
	}
}

func (a *Agent) drainAssigned(ctx context.Context) error {
	for {
		entries, err := a.opts.Store.AssignedEntries(a.sessionID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			if err := a.executeEntry(ctx, entry); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) executeEntry(ctx context.Context, entry state.ExecutionQueueEntry) error {
	// Assignment races resolve by first commit wins; re-check the
	// materialized state and walk away if another session won.
	ok, err := scheduler.ConfirmAssignment(a.opts.Store, entry.ID, a.sessionID)
	if err != nil || !ok {
		return err
	}
	cell, err := a.opts.Store.Cell(entry.CellID)
	if err != nil {
		return nil
	}

	if err := a.setStatus(ctx, events.SessionBusy); err != nil {
		return err
	}
	started := time.Now()
	if _, err := a.opts.Log.Commit(ctx, &events.ExecutionStarted{
		QueueID:          entry.ID,
		CellID:           entry.CellID,
		RuntimeSessionID: a.sessionID,
		StartedAt:        started.UnixMilli(),
	}); err != nil {
		return err
	}

	emitter := NewEmitter(a.opts.Log, entry.CellID, entry.ExecutionCount, a.sessionID)
	if err := emitter.ClearPrevious(ctx, true); err != nil {
		return err
	}

	status := events.CompletionSuccess
	if execErr := a.opts.Executor.Execute(ctx, cell, emitter); execErr != nil {
		status = events.CompletionError
		if _, err := emitter.Error(ctx, fmt.Sprintf("execution failed: %v", execErr)); err != nil {
			return err
		}
	}

	if _, err := a.opts.Log.Commit(ctx, &events.ExecutionCompleted{
		QueueID:     entry.ID,
		CellID:      entry.CellID,
		Status:      status,
		CompletedAt: time.Now().UnixMilli(),
		DurationMs:  time.Since(started).Milliseconds(),
	}); err != nil {
		return err
	}
	a.logger.Info("execution finished", "queueId", entry.ID, "cellId", entry.CellID, "status", status, "durationMs", time.Since(started).Milliseconds())
	return a.setStatus(ctx, events.SessionReady)
}
