// Package state materializes the notebook event log into a relational
// projection. The materializer is the only writer; everything else reads
// through Store queries.
package state

import (
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"cellflow/internal/db/migration"
	"cellflow/internal/events"
)

type Store struct {
	gdb *gorm.DB
}

func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	if err := SyncSchema(gdb); err != nil {
		return nil, err
	}
	return &Store{gdb: gdb}, nil
}

func (s *Store) DB() *gorm.DB { return s.gdb }

// SyncSchema creates/updates tables and indexes from models. Table structure
// changes do not use versioned migrations.
func SyncSchema(gdb *gorm.DB) error {
	if gdb == nil {
		return errors.New("db is required")
	}
	if err := gdb.AutoMigrate(
		&Notebook{},
		&Cell{},
		&Output{},
		&PendingClear{},
		&RuntimeSession{},
		&ExecutionQueueEntry{},
	); err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_cells_position_id ON cells(position, id);`,
		`CREATE INDEX IF NOT EXISTS idx_outputs_cell_position ON outputs(cell_id, position, id);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_status_requested ON execution_queue(status, requested_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_active_status ON runtime_sessions(is_active, status);`,
	} {
		if err := gdb.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// MigrateUp syncs schema then runs registered data migrations.
func MigrateUp(gdb *gorm.DB) error {
	if err := SyncSchema(gdb); err != nil {
		return err
	}
	return migration.RunAll(gdb)
}

func (s *Store) Notebook() (Notebook, error) {
	var nb Notebook
	err := s.gdb.Order("id").First(&nb).Error
	return nb, err
}

func (s *Store) Cell(id string) (Cell, error) {
	var cell Cell
	err := s.gdb.Where("id = ?", id).First(&cell).Error
	return cell, err
}

// CellsInOrder returns all cells ordered by their fractional position key,
// ties broken by id.
func (s *Store) CellsInOrder() ([]Cell, error) {
	var cells []Cell
	err := s.gdb.Order("position, id").Find(&cells).Error
	return cells, err
}

func (s *Store) OutputsForCell(cellID string) ([]Output, error) {
	var outputs []Output
	err := s.gdb.Where("cell_id = ?", cellID).Order("position, id").Find(&outputs).Error
	return outputs, err
}

func (s *Store) Output(id string) (Output, error) {
	var out Output
	err := s.gdb.Where("id = ?", id).First(&out).Error
	return out, err
}

func (s *Store) HasPendingClear(cellID string) (bool, error) {
	var n int64
	err := s.gdb.Model(&PendingClear{}).Where("cell_id = ?", cellID).Count(&n).Error
	return n > 0, err
}

func (s *Store) QueueEntry(id string) (ExecutionQueueEntry, error) {
	var entry ExecutionQueueEntry
	err := s.gdb.Where("id = ?", id).First(&entry).Error
	return entry, err
}

// PendingEntries returns unassigned queue entries oldest-first.
func (s *Store) PendingEntries() ([]ExecutionQueueEntry, error) {
	var entries []ExecutionQueueEntry
	err := s.gdb.Where("status = ?", QueuePending).Order("requested_at, id").Find(&entries).Error
	return entries, err
}

// AssignedEntries returns entries assigned to the given session that have not
// started executing yet.
func (s *Store) AssignedEntries(sessionID string) ([]ExecutionQueueEntry, error) {
	var entries []ExecutionQueueEntry
	err := s.gdb.
		Where("status = ? AND assigned_runtime_session = ?", QueueAssigned, sessionID).
		Order("requested_at, id").
		Find(&entries).Error
	return entries, err
}

func (s *Store) Session(sessionID string) (RuntimeSession, error) {
	var sess RuntimeSession
	err := s.gdb.Where("session_id = ?", sessionID).First(&sess).Error
	return sess, err
}

// ReadySessions returns live sessions currently able to take work.
func (s *Store) ReadySessions() ([]RuntimeSession, error) {
	var sessions []RuntimeSession
	err := s.gdb.
		Where("is_active = ? AND status = ?", true, events.SessionReady).
		Order("started_at, session_id").
		Find(&sessions).Error
	return sessions, err
}

// ActiveSession returns the single non-terminated active session, if any.
// Under the most-recent-wins policy there is at most one.
func (s *Store) ActiveSession() (RuntimeSession, bool, error) {
	var sessions []RuntimeSession
	err := s.gdb.
		Where("is_active = ?", true).
		Order("started_at DESC, session_id DESC").
		Limit(1).
		Find(&sessions).Error
	if err != nil || len(sessions) == 0 {
		return RuntimeSession{}, false, err
	}
	return sessions[0], true, nil
}

// AiModels decodes the advertised model list of a session row.
func (sess RuntimeSession) AiModels() []string {
	if sess.AvailableAiModelsJSON == "" {
		return nil
	}
	var models []string
	if err := json.Unmarshal([]byte(sess.AvailableAiModelsJSON), &models); err != nil {
		return nil
	}
	return models
}
