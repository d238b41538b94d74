package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cellflow/internal/events"
)

// Materializer folds committed events into the projection, one transaction
// per event, in strict log order. Every case is a pure function of
// (event, current state): ids and timestamps come from the payload, so
// independent replicas converge to identical tables. A mutation whose target
// row is missing is a no-op, not an error; a concurrent delete or clear may
// have won the race.
type Materializer struct {
	store *Store
}

func NewMaterializer(store *Store) (*Materializer, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Materializer{store: store}, nil
}

func (m *Materializer) Apply(ev events.Event) error {
	if ev == nil {
		return errors.New("event is nil")
	}
	return m.store.gdb.Transaction(func(tx *gorm.DB) error {
		return apply(tx, ev)
	})
}

// queueRank orders queue states so only forward transitions are applied.
// Duplicate or late events aimed at an equal or earlier state are ignored.
var queueRank = map[string]int{
	QueuePending:   0,
	QueueAssigned:  1,
	QueueExecuting: 2,
	QueueCompleted: 3,
	QueueFailed:    3,
	QueueCancelled: 3,
}

func apply(tx *gorm.DB, ev events.Event) error {
	switch e := ev.(type) {
	case *events.NotebookInitialized:
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Notebook{
			ID:        e.ID,
			Title:     e.Title,
			OwnerID:   e.OwnerID,
			IsPublic:  e.IsPublic,
			CreatedAt: e.CreatedAt,
		}).Error

	case *events.NotebookTitleChanged:
		return tx.Model(&Notebook{}).Where("1 = 1").Update("title", e.Title).Error

	case *events.CellCreated:
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Cell{
			ID:             e.ID,
			CellType:       e.CellType,
			Position:       e.Position,
			ExecutionState: CellIdle,
			SourceVisible:  true,
			OutputVisible:  true,
			CreatedBy:      e.CreatedBy,
			CreatedAt:      e.CreatedAt,
		}).Error

	case *events.CellSourceChanged:
		return tx.Model(&Cell{}).Where("id = ?", e.ID).Update("source", e.Source).Error

	case *events.CellMoved:
		return tx.Model(&Cell{}).Where("id = ?", e.ID).Update("position", e.Position).Error

	case *events.CellDeleted:
		if err := tx.Where("cell_id = ?", e.ID).Delete(&Output{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cell_id = ?", e.ID).Delete(&PendingClear{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", e.ID).Delete(&Cell{}).Error

	case *events.CellAiSettingsChanged:
		updates := map[string]any{
			"ai_provider": e.Provider,
			"ai_model":    e.Model,
		}
		if e.SourceVisible != nil {
			updates["source_visible"] = *e.SourceVisible
		}
		if e.OutputVisible != nil {
			updates["output_visible"] = *e.OutputVisible
		}
		return tx.Model(&Cell{}).Where("id = ?", e.ID).Updates(updates).Error

	case *events.CellSqlSettingsChanged:
		return tx.Model(&Cell{}).Where("id = ?", e.ID).Updates(map[string]any{
			"sql_connection":      e.Connection,
			"sql_result_variable": e.ResultVariable,
		}).Error

	case *events.ExecutionRequested:
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ExecutionQueueEntry{
			ID:             e.QueueID,
			CellID:         e.CellID,
			ExecutionCount: e.ExecutionCount,
			RequestedBy:    e.RequestedBy,
			Status:         QueuePending,
			RequestedAt:    e.RequestedAt,
		}).Error; err != nil {
			return err
		}
		// Cell state and count move with the same event so queue and cell
		// never disagree.
		return tx.Model(&Cell{}).Where("id = ?", e.CellID).Updates(map[string]any{
			"execution_state":          CellQueued,
			"execution_count":          e.ExecutionCount,
			"assigned_runtime_session": "",
		}).Error

	case *events.ExecutionAssigned:
		entry, ok, err := queueEntry(tx, e.QueueID)
		if err != nil || !ok {
			return err
		}
		// First assignment to reach the log wins; anything later is ignored.
		if entry.Status != QueuePending {
			return nil
		}
		if err := tx.Model(&ExecutionQueueEntry{}).Where("id = ?", e.QueueID).Updates(map[string]any{
			"status":                   QueueAssigned,
			"assigned_runtime_session": e.RuntimeSessionID,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&Cell{}).Where("id = ?", entry.CellID).
			Update("assigned_runtime_session", e.RuntimeSessionID).Error

	case *events.ExecutionStarted:
		entry, ok, err := queueEntry(tx, e.QueueID)
		if err != nil || !ok {
			return err
		}
		if queueRank[entry.Status] >= queueRank[QueueExecuting] {
			return nil
		}
		if err := tx.Model(&ExecutionQueueEntry{}).Where("id = ?", e.QueueID).Updates(map[string]any{
			"status":                   QueueExecuting,
			"assigned_runtime_session": e.RuntimeSessionID,
			"started_at":               e.StartedAt,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&Cell{}).Where("id = ?", e.CellID).Updates(map[string]any{
			"execution_state":          CellRunning,
			"assigned_runtime_session": e.RuntimeSessionID,
		}).Error

	case *events.ExecutionCompleted:
		entry, ok, err := queueEntry(tx, e.QueueID)
		if err != nil || !ok {
			return err
		}
		if queueRank[entry.Status] >= queueRank[QueueCompleted] {
			return nil
		}
		queueStatus, cellState := completionStates(e.Status)
		if err := tx.Model(&ExecutionQueueEntry{}).Where("id = ?", e.QueueID).Updates(map[string]any{
			"status":                queueStatus,
			"completed_at":          e.CompletedAt,
			"execution_duration_ms": e.DurationMs,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&Cell{}).Where("id = ?", e.CellID).Updates(map[string]any{
			"execution_state":          cellState,
			"assigned_runtime_session": "",
		}).Error

	case *events.ExecutionCancelled:
		entry, ok, err := queueEntry(tx, e.QueueID)
		if err != nil || !ok {
			return err
		}
		if queueRank[entry.Status] >= queueRank[QueueCancelled] {
			return nil
		}
		if err := tx.Model(&ExecutionQueueEntry{}).Where("id = ?", e.QueueID).Updates(map[string]any{
			"status":        QueueCancelled,
			"cancel_reason": e.Reason,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&Cell{}).Where("id = ?", e.CellID).Updates(map[string]any{
			"execution_state":          CellIdle,
			"assigned_runtime_session": "",
		}).Error

	case *events.TerminalOutputAdded:
		return applyTerminalOutputAdded(tx, e)
	case *events.TerminalOutputAppended:
		return applyInlineAppend(tx, e.OutputID, e.Content)
	case *events.MarkdownOutputAdded:
		return applyMarkdownOutputAdded(tx, e)
	case *events.MarkdownOutputAppended:
		return applyInlineAppend(tx, e.OutputID, e.Content)
	case *events.MultimediaDisplayOutputAdded:
		return applyDisplayOutputAdded(tx, e)
	case *events.MultimediaDisplayOutputUpdated:
		return applyDisplayOutputUpdated(tx, e)
	case *events.MultimediaResultOutputAdded:
		return applyResultOutputAdded(tx, e)
	case *events.ErrorOutputAdded:
		return applyErrorOutputAdded(tx, e)
	case *events.CellOutputsCleared:
		return applyOutputsCleared(tx, e)

	case *events.RuntimeSessionStarted:
		// Most-recent-wins: a newly started session displaces any session
		// still marked active. See DESIGN.md for the invariant decision.
		if err := tx.Model(&RuntimeSession{}).
			Where("is_active = ? AND session_id <> ?", true, e.SessionID).
			Updates(map[string]any{
				"is_active":          false,
				"status":             events.SessionTerminated,
				"termination_reason": events.TerminationDisplaced,
			}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&RuntimeSession{
			SessionID:             e.SessionID,
			RuntimeID:             e.RuntimeID,
			RuntimeType:           e.RuntimeType,
			Status:                events.SessionStarting,
			IsActive:              true,
			CanExecuteCode:        e.Capabilities.CanExecuteCode,
			CanExecuteSQL:         e.Capabilities.CanExecuteSQL,
			CanExecuteAI:          e.Capabilities.CanExecuteAI,
			AvailableAiModelsJSON: encodeStrings(e.AvailableAiModels),
			StartedAt:             e.StartedAt,
		}).Error

	case *events.RuntimeSessionStatusChanged:
		// Terminated sessions stay terminated; late status changes for them
		// are dropped.
		return tx.Model(&RuntimeSession{}).
			Where("session_id = ? AND status <> ?", e.SessionID, events.SessionTerminated).
			Update("status", e.Status).Error

	case *events.RuntimeSessionTerminated:
		// Retained for audit, never deleted. First termination reason wins.
		return tx.Model(&RuntimeSession{}).
			Where("session_id = ? AND status <> ?", e.SessionID, events.SessionTerminated).
			Updates(map[string]any{
				"status":             events.SessionTerminated,
				"is_active":          false,
				"termination_reason": e.Reason,
			}).Error

	default:
		return fmt.Errorf("no materializer for event type %s", ev.EventType())
	}
}

func completionStates(completion string) (queueStatus, cellState string) {
	switch completion {
	case events.CompletionError:
		return QueueFailed, CellError
	case events.CompletionCancelled:
		return QueueCancelled, CellIdle
	default:
		return QueueCompleted, CellCompleted
	}
}

func queueEntry(tx *gorm.DB, id string) (ExecutionQueueEntry, bool, error) {
	var entry ExecutionQueueEntry
	err := tx.Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ExecutionQueueEntry{}, false, nil
	}
	if err != nil {
		return ExecutionQueueEntry{}, false, err
	}
	return entry, true, nil
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(raw)
}
