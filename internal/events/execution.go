package events

import (
	"fmt"
	"strings"
)

// Terminal outcomes reported by ExecutionCompleted.
const (
	CompletionSuccess   = "success"
	CompletionError     = "error"
	CompletionCancelled = "cancelled"
)

type ExecutionRequested struct {
	QueueID        string `json:"queueId"`
	CellID         string `json:"cellId"`
	ExecutionCount int    `json:"executionCount"`
	RequestedBy    string `json:"requestedBy"`
	RequestedAt    int64  `json:"requestedAt"`
}

func (ExecutionRequested) EventType() string { return TypeExecutionRequested }

func (e ExecutionRequested) Validate() error {
	if strings.TrimSpace(e.QueueID) == "" {
		return fmt.Errorf("queueId is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	if e.ExecutionCount < 1 {
		return fmt.Errorf("executionCount must be positive")
	}
	return nil
}

type ExecutionAssigned struct {
	QueueID          string `json:"queueId"`
	RuntimeSessionID string `json:"runtimeSessionId"`
}

func (ExecutionAssigned) EventType() string { return TypeExecutionAssigned }

func (e ExecutionAssigned) Validate() error {
	if strings.TrimSpace(e.QueueID) == "" {
		return fmt.Errorf("queueId is required")
	}
	if strings.TrimSpace(e.RuntimeSessionID) == "" {
		return fmt.Errorf("runtimeSessionId is required")
	}
	return nil
}

type ExecutionStarted struct {
	QueueID          string `json:"queueId"`
	CellID           string `json:"cellId"`
	RuntimeSessionID string `json:"runtimeSessionId"`
	StartedAt        int64  `json:"startedAt"`
}

func (ExecutionStarted) EventType() string { return TypeExecutionStarted }

func (e ExecutionStarted) Validate() error {
	if strings.TrimSpace(e.QueueID) == "" {
		return fmt.Errorf("queueId is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	if strings.TrimSpace(e.RuntimeSessionID) == "" {
		return fmt.Errorf("runtimeSessionId is required")
	}
	return nil
}

type ExecutionCompleted struct {
	QueueID     string `json:"queueId"`
	CellID      string `json:"cellId"`
	Status      string `json:"status"`
	CompletedAt int64  `json:"completedAt"`
	DurationMs  int64  `json:"durationMs"`
}

func (ExecutionCompleted) EventType() string { return TypeExecutionCompleted }

func (e ExecutionCompleted) Validate() error {
	if strings.TrimSpace(e.QueueID) == "" {
		return fmt.Errorf("queueId is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	switch e.Status {
	case CompletionSuccess, CompletionError, CompletionCancelled:
	default:
		return fmt.Errorf("unknown completion status %q", e.Status)
	}
	return nil
}

type ExecutionCancelled struct {
	QueueID     string `json:"queueId"`
	CellID      string `json:"cellId"`
	CancelledBy string `json:"cancelledBy"`
	Reason      string `json:"reason"`
}

func (ExecutionCancelled) EventType() string { return TypeExecutionCancelled }

func (e ExecutionCancelled) Validate() error {
	if strings.TrimSpace(e.QueueID) == "" {
		return fmt.Errorf("queueId is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	if strings.TrimSpace(e.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}
