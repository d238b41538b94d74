// Package notebook exposes the editing-client operations: every mutation is
// an event commit against the shared log, and every read goes through the
// materialized store. There is no other channel.
package notebook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"cellflow/internal/eventlog"
	"cellflow/internal/events"
	"cellflow/internal/fracindex"
	"cellflow/internal/state"
)

type Client struct {
	log   eventlog.Log
	store *state.Store
	actor string
	now   func() time.Time
}

func NewClient(log eventlog.Log, store *state.Store, actor string) (*Client, error) {
	if log == nil || store == nil {
		return nil, errors.New("log and store are required")
	}
	if actor == "" {
		actor = "anonymous"
	}
	return &Client{log: log, store: store, actor: actor, now: time.Now}, nil
}

// Init creates the notebook record for this log. Committing twice is
// harmless; the materializer keeps the first.
func (c *Client) Init(ctx context.Context, title, ownerID string, isPublic bool) error {
	_, err := c.log.Commit(ctx, &events.NotebookInitialized{
		ID:        c.log.NotebookID(),
		Title:     title,
		OwnerID:   ownerID,
		IsPublic:  isPublic,
		CreatedAt: c.now().UnixMilli(),
	})
	return err
}

func (c *Client) SetTitle(ctx context.Context, title string) error {
	_, err := c.log.Commit(ctx, &events.NotebookTitleChanged{
		Title:     title,
		ChangedBy: c.actor,
	})
	return err
}

// CreateCell inserts a cell after afterCellID, or at the end when it is
// empty. The position key is generated between the neighbors' keys so no
// other cell moves.
func (c *Client) CreateCell(ctx context.Context, cellType, afterCellID string) (string, error) {
	position, err := c.positionAfter(afterCellID)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = c.log.Commit(ctx, &events.CellCreated{
		ID:        id,
		CellType:  cellType,
		Position:  position,
		CreatedBy: c.actor,
		CreatedAt: c.now().UnixMilli(),
	})
	return id, err
}

func (c *Client) SetSource(ctx context.Context, cellID, source string) error {
	_, err := c.log.Commit(ctx, &events.CellSourceChanged{
		ID:         cellID,
		Source:     source,
		ModifiedBy: c.actor,
	})
	return err
}

func (c *Client) MoveCell(ctx context.Context, cellID, afterCellID string) error {
	position, err := c.positionAfter(afterCellID)
	if err != nil {
		return err
	}
	_, err = c.log.Commit(ctx, &events.CellMoved{
		ID:       cellID,
		Position: position,
		MovedBy:  c.actor,
	})
	return err
}

func (c *Client) DeleteCell(ctx context.Context, cellID string) error {
	_, err := c.log.Commit(ctx, &events.CellDeleted{
		ID:        cellID,
		DeletedBy: c.actor,
	})
	return err
}

func (c *Client) SetAiSettings(ctx context.Context, cellID, provider, model string) error {
	_, err := c.log.Commit(ctx, &events.CellAiSettingsChanged{
		ID:        cellID,
		Provider:  provider,
		Model:     model,
		ChangedBy: c.actor,
	})
	return err
}

func (c *Client) SetSqlSettings(ctx context.Context, cellID, connection, resultVariable string) error {
	_, err := c.log.Commit(ctx, &events.CellSqlSettingsChanged{
		ID:             cellID,
		Connection:     connection,
		ResultVariable: resultVariable,
		ChangedBy:      c.actor,
	})
	return err
}

func (c *Client) ClearOutputs(ctx context.Context, cellID string, wait bool) error {
	_, err := c.log.Commit(ctx, &events.CellOutputsCleared{
		CellID:    cellID,
		Wait:      wait,
		ClearedBy: c.actor,
	})
	return err
}

// RequestExecution queues the cell. The execution count is bumped in the
// same event that creates the queue entry, so cell and queue state cannot
// disagree.
func (c *Client) RequestExecution(ctx context.Context, cellID string) (string, error) {
	cell, err := c.store.Cell(cellID)
	if err != nil {
		return "", err
	}
	queueID := uuid.NewString()
	_, err = c.log.Commit(ctx, &events.ExecutionRequested{
		QueueID:        queueID,
		CellID:         cellID,
		ExecutionCount: cell.ExecutionCount + 1,
		RequestedBy:    c.actor,
		RequestedAt:    c.now().UnixMilli(),
	})
	return queueID, err
}

func (c *Client) CancelExecution(ctx context.Context, queueID, reason string) error {
	entry, err := c.store.QueueEntry(queueID)
	if err != nil {
		return err
	}
	_, err = c.log.Commit(ctx, &events.ExecutionCancelled{
		QueueID:     queueID,
		CellID:      entry.CellID,
		CancelledBy: c.actor,
		Reason:      reason,
	})
	return err
}

// positionAfter computes a fracindex key directly after afterCellID, or
// after the last cell when afterCellID is empty.
func (c *Client) positionAfter(afterCellID string) (string, error) {
	cells, err := c.store.CellsInOrder()
	if err != nil {
		return "", err
	}
	if len(cells) == 0 {
		return fracindex.First(), nil
	}
	if afterCellID == "" {
		return fracindex.After(cells[len(cells)-1].Position)
	}
	for i, cell := range cells {
		if cell.ID != afterCellID {
			continue
		}
		right := ""
		if i+1 < len(cells) {
			right = cells[i+1].Position
		}
		return fracindex.Between(cell.Position, right)
	}
	return "", errors.New("cell to insert after not found")
}
