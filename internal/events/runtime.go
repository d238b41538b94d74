package events

import (
	"fmt"
	"strings"
)

// Runtime session statuses. busy/ready oscillate during normal operation;
// restarting precedes a fresh RuntimeSessionStarted under a new session id
// but the same stable runtime id.
const (
	SessionStarting   = "starting"
	SessionReady      = "ready"
	SessionBusy       = "busy"
	SessionRestarting = "restarting"
	SessionTerminated = "terminated"
)

// Termination reasons.
const (
	TerminationShutdown  = "shutdown"
	TerminationRestart   = "restart"
	TerminationError     = "error"
	TerminationTimeout   = "timeout"
	TerminationDisplaced = "displaced"
)

type SessionCapabilities struct {
	CanExecuteCode bool `json:"canExecuteCode"`
	CanExecuteSQL  bool `json:"canExecuteSql"`
	CanExecuteAI   bool `json:"canExecuteAi"`
}

type RuntimeSessionStarted struct {
	SessionID         string              `json:"sessionId"`
	RuntimeID         string              `json:"runtimeId"`
	RuntimeType       string              `json:"runtimeType"`
	Capabilities      SessionCapabilities `json:"capabilities"`
	AvailableAiModels []string            `json:"availableAiModels,omitempty"`
	StartedAt         int64               `json:"startedAt"`
}

func (RuntimeSessionStarted) EventType() string { return TypeRuntimeSessionStarted }

func (e RuntimeSessionStarted) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("sessionId is required")
	}
	if strings.TrimSpace(e.RuntimeID) == "" {
		return fmt.Errorf("runtimeId is required")
	}
	return nil
}

type RuntimeSessionStatusChanged struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

func (RuntimeSessionStatusChanged) EventType() string { return TypeRuntimeSessionStatusChanged }

func (e RuntimeSessionStatusChanged) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("sessionId is required")
	}
	switch e.Status {
	case SessionStarting, SessionReady, SessionBusy, SessionRestarting:
	default:
		return fmt.Errorf("unknown session status %q", e.Status)
	}
	return nil
}

type RuntimeSessionTerminated struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

func (RuntimeSessionTerminated) EventType() string { return TypeRuntimeSessionTerminated }

func (e RuntimeSessionTerminated) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("sessionId is required")
	}
	switch e.Reason {
	case TerminationShutdown, TerminationRestart, TerminationError, TerminationTimeout, TerminationDisplaced:
	default:
		return fmt.Errorf("unknown termination reason %q", e.Reason)
	}
	return nil
}
