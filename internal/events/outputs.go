package events

import (
	"fmt"
	"strings"
)

// Stream names for terminal output.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

type TerminalOutputAdded struct {
	ID         string         `json:"id"`
	CellID     string         `json:"cellId"`
	Content    MediaContainer `json:"content"`
	StreamName string         `json:"streamName"`
	Position   float64        `json:"position"`
}

func (TerminalOutputAdded) EventType() string { return TypeTerminalOutputAdded }

func (e TerminalOutputAdded) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	if err := e.Content.validate(); err != nil {
		return err
	}
	switch e.StreamName {
	case StreamStdout, StreamStderr:
	default:
		return fmt.Errorf("unknown stream %q", e.StreamName)
	}
	return nil
}

type TerminalOutputAppended struct {
	OutputID   string         `json:"outputId"`
	CellID     string         `json:"cellId"`
	Content    MediaContainer `json:"content"`
	StreamName string         `json:"streamName"`
}

func (TerminalOutputAppended) EventType() string { return TypeTerminalOutputAppended }

func (e TerminalOutputAppended) Validate() error {
	if strings.TrimSpace(e.OutputID) == "" {
		return fmt.Errorf("outputId is required")
	}
	return e.Content.validate()
}

type MarkdownOutputAdded struct {
	ID       string         `json:"id"`
	CellID   string         `json:"cellId"`
	Content  MediaContainer `json:"content"`
	Position float64        `json:"position"`
}

func (MarkdownOutputAdded) EventType() string { return TypeMarkdownOutputAdded }

func (e MarkdownOutputAdded) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	return e.Content.validate()
}

type MarkdownOutputAppended struct {
	OutputID string         `json:"outputId"`
	Content  MediaContainer `json:"content"`
}

func (MarkdownOutputAppended) EventType() string { return TypeMarkdownOutputAppended }

func (e MarkdownOutputAppended) Validate() error {
	if strings.TrimSpace(e.OutputID) == "" {
		return fmt.Errorf("outputId is required")
	}
	return e.Content.validate()
}

type MultimediaDisplayOutputAdded struct {
	ID              string                    `json:"id"`
	CellID          string                    `json:"cellId"`
	DisplayID       string                    `json:"displayId,omitempty"`
	Representations map[string]MediaContainer `json:"representations"`
	Position        float64                   `json:"position"`
}

func (MultimediaDisplayOutputAdded) EventType() string { return TypeMultimediaDisplayOutputAdded }

func (e MultimediaDisplayOutputAdded) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	return validateRepresentations(e.Representations)
}

// MultimediaDisplayOutputUpdated replaces the representations of every output
// sharing the display id, wherever it appears in the notebook. This is the
// "update a previously displayed object" idiom; it is not an append.
type MultimediaDisplayOutputUpdated struct {
	DisplayID       string                    `json:"displayId"`
	Representations map[string]MediaContainer `json:"representations"`
}

func (MultimediaDisplayOutputUpdated) EventType() string { return TypeMultimediaDisplayOutputUpdated }

func (e MultimediaDisplayOutputUpdated) Validate() error {
	if strings.TrimSpace(e.DisplayID) == "" {
		return fmt.Errorf("displayId is required")
	}
	return validateRepresentations(e.Representations)
}

type MultimediaResultOutputAdded struct {
	ID              string                    `json:"id"`
	CellID          string                    `json:"cellId"`
	Representations map[string]MediaContainer `json:"representations"`
	ExecutionCount  int                       `json:"executionCount"`
	Position        float64                   `json:"position"`
}

func (MultimediaResultOutputAdded) EventType() string { return TypeMultimediaResultOutputAdded }

func (e MultimediaResultOutputAdded) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	return validateRepresentations(e.Representations)
}

type ErrorOutputAdded struct {
	ID       string         `json:"id"`
	CellID   string         `json:"cellId"`
	Content  MediaContainer `json:"content"`
	Position float64        `json:"position"`
}

func (ErrorOutputAdded) EventType() string { return TypeErrorOutputAdded }

func (e ErrorOutputAdded) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	return e.Content.validate()
}

type CellOutputsCleared struct {
	CellID    string `json:"cellId"`
	Wait      bool   `json:"wait"`
	ClearedBy string `json:"clearedBy"`
}

func (CellOutputsCleared) EventType() string { return TypeCellOutputsCleared }

func (e CellOutputsCleared) Validate() error {
	if strings.TrimSpace(e.CellID) == "" {
		return fmt.Errorf("cellId is required")
	}
	return nil
}
