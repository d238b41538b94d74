package state

// Cell execution states. Transitions happen only through queue events.
const (
	CellIdle      = "idle"
	CellQueued    = "queued"
	CellRunning   = "running"
	CellCompleted = "completed"
	CellError     = "error"
)

// Queue entry states, strictly forward:
// pending -> assigned -> executing -> completed|failed|cancelled.
const (
	QueuePending   = "pending"
	QueueAssigned  = "assigned"
	QueueExecuting = "executing"
	QueueCompleted = "completed"
	QueueFailed    = "failed"
	QueueCancelled = "cancelled"
)

// Output row types.
const (
	OutputTerminal          = "terminal"
	OutputMarkdown          = "markdown"
	OutputError             = "error"
	OutputMultimediaDisplay = "multimedia_display"
	OutputMultimediaResult  = "multimedia_result"
)

type Notebook struct {
	ID        string `gorm:"column:id;primaryKey"`
	Title     string `gorm:"column:title;not null;default:''"`
	OwnerID   string `gorm:"column:owner_id;not null;default:''"`
	IsPublic  bool   `gorm:"column:is_public;not null;default:false"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
}

func (Notebook) TableName() string { return "notebooks" }

type Cell struct {
	ID                     string `gorm:"column:id;primaryKey"`
	CellType               string `gorm:"column:cell_type;not null;default:'code'"`
	Source                 string `gorm:"column:source;not null;default:''"`
	Position               string `gorm:"column:position;not null;index"`
	ExecutionCount         int    `gorm:"column:execution_count;not null;default:0"`
	ExecutionState         string `gorm:"column:execution_state;not null;default:'idle'"`
	AssignedRuntimeSession string `gorm:"column:assigned_runtime_session;not null;default:''"`
	AiProvider             string `gorm:"column:ai_provider;not null;default:''"`
	AiModel                string `gorm:"column:ai_model;not null;default:''"`
	SqlConnection          string `gorm:"column:sql_connection;not null;default:''"`
	SqlResultVariable      string `gorm:"column:sql_result_variable;not null;default:''"`
	SourceVisible          bool   `gorm:"column:source_visible;not null;default:true"`
	OutputVisible          bool   `gorm:"column:output_visible;not null;default:true"`
	CreatedBy              string `gorm:"column:created_by;not null;default:''"`
	CreatedAt              int64  `gorm:"column:created_at;not null;default:0"`
}

func (Cell) TableName() string { return "cells" }

// Output carries the denormalized primary representation (data, mime_type,
// artifact_id, metadata) for cheap scalar reads alongside the full
// representations map for consumers that want a different format. The primary
// columns are recomputed on every mutation that touches representations.
type Output struct {
	ID                  string  `gorm:"column:id;primaryKey"`
	CellID              string  `gorm:"column:cell_id;not null;index"`
	OutputType          string  `gorm:"column:output_type;not null"`
	Position            float64 `gorm:"column:position;not null;default:0"`
	Data                string  `gorm:"column:data;not null;default:''"`
	ArtifactID          string  `gorm:"column:artifact_id;not null;default:''"`
	MimeType            string  `gorm:"column:mime_type;not null;default:''"`
	MetadataJSON        string  `gorm:"column:metadata_json;not null;default:''"`
	RepresentationsJSON string  `gorm:"column:representations_json;not null;default:''"`
	DisplayID           string  `gorm:"column:display_id;not null;default:'';index"`
	StreamName          string  `gorm:"column:stream_name;not null;default:''"`
	ExecutionCount      int     `gorm:"column:execution_count;not null;default:0"`
}

func (Output) TableName() string { return "outputs" }

// PendingClear marks a cell whose outputs must be deleted right before the
// next output write, so the old content never visibly disappears first.
type PendingClear struct {
	CellID    string `gorm:"column:cell_id;primaryKey"`
	ClearedBy string `gorm:"column:cleared_by;not null;default:''"`
}

func (PendingClear) TableName() string { return "pending_clears" }

type RuntimeSession struct {
	SessionID             string `gorm:"column:session_id;primaryKey"`
	RuntimeID             string `gorm:"column:runtime_id;not null;index"`
	RuntimeType           string `gorm:"column:runtime_type;not null;default:''"`
	Status                string `gorm:"column:status;not null;default:'starting'"`
	IsActive              bool   `gorm:"column:is_active;not null;default:false"`
	CanExecuteCode        bool   `gorm:"column:can_execute_code;not null;default:false"`
	CanExecuteSQL         bool   `gorm:"column:can_execute_sql;not null;default:false"`
	CanExecuteAI          bool   `gorm:"column:can_execute_ai;not null;default:false"`
	AvailableAiModelsJSON string `gorm:"column:available_ai_models_json;not null;default:''"`
	StartedAt             int64  `gorm:"column:started_at;not null;default:0"`
	TerminationReason     string `gorm:"column:termination_reason;not null;default:''"`
}

func (RuntimeSession) TableName() string { return "runtime_sessions" }

type ExecutionQueueEntry struct {
	ID                     string `gorm:"column:id;primaryKey"`
	CellID                 string `gorm:"column:cell_id;not null;index"`
	ExecutionCount         int    `gorm:"column:execution_count;not null;default:0"`
	RequestedBy            string `gorm:"column:requested_by;not null;default:''"`
	Status                 string `gorm:"column:status;not null;default:'pending'"`
	AssignedRuntimeSession string `gorm:"column:assigned_runtime_session;not null;default:''"`
	RequestedAt            int64  `gorm:"column:requested_at;not null;default:0"`
	StartedAt              int64  `gorm:"column:started_at;not null;default:0"`
	CompletedAt            int64  `gorm:"column:completed_at;not null;default:0"`
	ExecutionDurationMs    int64  `gorm:"column:execution_duration_ms;not null;default:0"`
	CancelReason           string `gorm:"column:cancel_reason;not null;default:''"`
}

func (ExecutionQueueEntry) TableName() string { return "execution_queue" }
