package events

import (
	"fmt"
	"strings"
)

// Cell types understood by the materializer and the scheduler's capability
// matching.
const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
	CellTypeRaw      = "raw"
	CellTypeSQL      = "sql"
	CellTypeAI       = "ai"
)

func validCellType(cellType string) bool {
	switch cellType {
	case CellTypeCode, CellTypeMarkdown, CellTypeRaw, CellTypeSQL, CellTypeAI:
		return true
	}
	return false
}

type NotebookInitialized struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	OwnerID   string `json:"ownerId"`
	IsPublic  bool   `json:"isPublic"`
	CreatedAt int64  `json:"createdAt"`
}

func (NotebookInitialized) EventType() string { return TypeNotebookInitialized }

func (e NotebookInitialized) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

type NotebookTitleChanged struct {
	Title     string `json:"title"`
	ChangedBy string `json:"changedBy"`
}

func (NotebookTitleChanged) EventType() string { return TypeNotebookTitleChanged }

func (e NotebookTitleChanged) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

type CellCreated struct {
	ID        string `json:"id"`
	CellType  string `json:"cellType"`
	Position  string `json:"position"`
	CreatedBy string `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"`
}

func (CellCreated) EventType() string { return TypeCellCreated }

func (e CellCreated) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if !validCellType(e.CellType) {
		return fmt.Errorf("unknown cell type %q", e.CellType)
	}
	if e.Position == "" {
		return fmt.Errorf("position is required")
	}
	return nil
}

type CellSourceChanged struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	ModifiedBy string `json:"modifiedBy"`
}

func (CellSourceChanged) EventType() string { return TypeCellSourceChanged }

func (e CellSourceChanged) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

type CellMoved struct {
	ID       string `json:"id"`
	Position string `json:"position"`
	MovedBy  string `json:"movedBy"`
}

func (CellMoved) EventType() string { return TypeCellMoved }

func (e CellMoved) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if e.Position == "" {
		return fmt.Errorf("position is required")
	}
	return nil
}

type CellDeleted struct {
	ID        string `json:"id"`
	DeletedBy string `json:"deletedBy"`
}

func (CellDeleted) EventType() string { return TypeCellDeleted }

func (e CellDeleted) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

type CellAiSettingsChanged struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	SourceVisible *bool  `json:"sourceVisible,omitempty"`
	OutputVisible *bool  `json:"outputVisible,omitempty"`
	ChangedBy     string `json:"changedBy"`
}

func (CellAiSettingsChanged) EventType() string { return TypeCellAiSettingsChanged }

func (e CellAiSettingsChanged) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

type CellSqlSettingsChanged struct {
	ID             string `json:"id"`
	Connection     string `json:"connection"`
	ResultVariable string `json:"resultVariable"`
	ChangedBy      string `json:"changedBy"`
}

func (CellSqlSettingsChanged) EventType() string { return TypeCellSqlSettingsChanged }

func (e CellSqlSettingsChanged) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}
