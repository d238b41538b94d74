// Package events defines the closed set of domain events that make up the
// notebook log, plus the JSON envelope used on the wire and in storage.
// Every actor (editing client, runtime worker, AI loop) coordinates purely by
// committing these events; nothing mutates materialized state directly.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Event is one member of the closed union. Payload fields carry every value a
// materializer needs: ids and timestamps are generated by the producer and
// travel inside the event, never minted during replay.
type Event interface {
	EventType() string
	Validate() error
}

// Envelope is the stored/wire form of a committed event.
type Envelope struct {
	EventID    string          `json:"eventId"`
	NotebookID string          `json:"notebookId"`
	EventType  string          `json:"eventType"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap validates ev and wraps it in a fresh envelope for notebookID.
func Wrap(notebookID string, ev Event) (Envelope, error) {
	if strings.TrimSpace(notebookID) == "" {
		return Envelope{}, fmt.Errorf("notebook id is required")
	}
	if ev == nil {
		return Envelope{}, fmt.Errorf("event is nil")
	}
	if err := ev.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("invalid %s event: %w", ev.EventType(), err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:    uuid.NewString(),
		NotebookID: notebookID,
		EventType:  ev.EventType(),
		Payload:    payload,
	}, nil
}

// Unwrap decodes the envelope payload back into its typed event. Unknown
// event types and payloads that fail validation are rejected here, at the
// log boundary, so materializers only ever see well-formed events.
func Unwrap(env Envelope) (Event, error) {
	factory, ok := registry[env.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", env.EventType)
	}
	ev := factory()
	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", env.EventType, err)
	}
	return ev, nil
}

var registry = map[string]func() Event{
	TypeNotebookInitialized:            func() Event { return &NotebookInitialized{} },
	TypeNotebookTitleChanged:           func() Event { return &NotebookTitleChanged{} },
	TypeCellCreated:                    func() Event { return &CellCreated{} },
	TypeCellSourceChanged:              func() Event { return &CellSourceChanged{} },
	TypeCellMoved:                      func() Event { return &CellMoved{} },
	TypeCellDeleted:                    func() Event { return &CellDeleted{} },
	TypeCellAiSettingsChanged:          func() Event { return &CellAiSettingsChanged{} },
	TypeCellSqlSettingsChanged:         func() Event { return &CellSqlSettingsChanged{} },
	TypeExecutionRequested:             func() Event { return &ExecutionRequested{} },
	TypeExecutionAssigned:              func() Event { return &ExecutionAssigned{} },
	TypeExecutionStarted:               func() Event { return &ExecutionStarted{} },
	TypeExecutionCompleted:             func() Event { return &ExecutionCompleted{} },
	TypeExecutionCancelled:             func() Event { return &ExecutionCancelled{} },
	TypeTerminalOutputAdded:            func() Event { return &TerminalOutputAdded{} },
	TypeTerminalOutputAppended:         func() Event { return &TerminalOutputAppended{} },
	TypeMarkdownOutputAdded:            func() Event { return &MarkdownOutputAdded{} },
	TypeMarkdownOutputAppended:         func() Event { return &MarkdownOutputAppended{} },
	TypeMultimediaDisplayOutputAdded:   func() Event { return &MultimediaDisplayOutputAdded{} },
	TypeMultimediaDisplayOutputUpdated: func() Event { return &MultimediaDisplayOutputUpdated{} },
	TypeMultimediaResultOutputAdded:    func() Event { return &MultimediaResultOutputAdded{} },
	TypeErrorOutputAdded:               func() Event { return &ErrorOutputAdded{} },
	TypeCellOutputsCleared:             func() Event { return &CellOutputsCleared{} },
	TypeRuntimeSessionStarted:          func() Event { return &RuntimeSessionStarted{} },
	TypeRuntimeSessionStatusChanged:    func() Event { return &RuntimeSessionStatusChanged{} },
	TypeRuntimeSessionTerminated:       func() Event { return &RuntimeSessionTerminated{} },
}

// Types returns every registered event type name, for diagnostics.
func Types() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

const (
	TypeNotebookInitialized            = "NotebookInitialized"
	TypeNotebookTitleChanged           = "NotebookTitleChanged"
	TypeCellCreated                    = "CellCreated"
	TypeCellSourceChanged              = "CellSourceChanged"
	TypeCellMoved                      = "CellMoved"
	TypeCellDeleted                    = "CellDeleted"
	TypeCellAiSettingsChanged          = "CellAiSettingsChanged"
	TypeCellSqlSettingsChanged         = "CellSqlSettingsChanged"
	TypeExecutionRequested             = "ExecutionRequested"
	TypeExecutionAssigned              = "ExecutionAssigned"
	TypeExecutionStarted               = "ExecutionStarted"
	TypeExecutionCompleted             = "ExecutionCompleted"
	TypeExecutionCancelled             = "ExecutionCancelled"
	TypeTerminalOutputAdded            = "TerminalOutputAdded"
	TypeTerminalOutputAppended         = "TerminalOutputAppended"
	TypeMarkdownOutputAdded            = "MarkdownOutputAdded"
	TypeMarkdownOutputAppended         = "MarkdownOutputAppended"
	TypeMultimediaDisplayOutputAdded   = "MultimediaDisplayOutputAdded"
	TypeMultimediaDisplayOutputUpdated = "MultimediaDisplayOutputUpdated"
	TypeMultimediaResultOutputAdded    = "MultimediaResultOutputAdded"
	TypeErrorOutputAdded               = "ErrorOutputAdded"
	TypeCellOutputsCleared             = "CellOutputsCleared"
	TypeRuntimeSessionStarted          = "RuntimeSessionStarted"
	TypeRuntimeSessionStatusChanged    = "RuntimeSessionStatusChanged"
	TypeRuntimeSessionTerminated       = "RuntimeSessionTerminated"
)
