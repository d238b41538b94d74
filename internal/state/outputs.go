package state

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cellflow/internal/events"
)

// Output materialization. Adds are additive by construction: they always
// insert a fresh row. Appends concatenate inline content onto an existing
// row and silently ignore a missing target. A pending clear marker, if
// present, is consumed by the first add for that cell: old outputs and the
// marker are deleted in the same transaction that inserts the new row, so
// readers never observe the cell empty in between.

func applyTerminalOutputAdded(tx *gorm.DB, e *events.TerminalOutputAdded) error {
	text, _ := e.Content.Text()
	return insertOutput(tx, Output{
		ID:         e.ID,
		CellID:     e.CellID,
		OutputType: OutputTerminal,
		Position:   e.Position,
		Data:       text,
		ArtifactID: e.Content.ArtifactID,
		MimeType:   "text/plain",
		StreamName: e.StreamName,
	})
}

func applyMarkdownOutputAdded(tx *gorm.DB, e *events.MarkdownOutputAdded) error {
	text, _ := e.Content.Text()
	return insertOutput(tx, Output{
		ID:         e.ID,
		CellID:     e.CellID,
		OutputType: OutputMarkdown,
		Position:   e.Position,
		Data:       text,
		ArtifactID: e.Content.ArtifactID,
		MimeType:   "text/markdown",
	})
}

func applyDisplayOutputAdded(tx *gorm.DB, e *events.MultimediaDisplayOutputAdded) error {
	p := selectPrimary(e.Representations)
	return insertOutput(tx, Output{
		ID:                  e.ID,
		CellID:              e.CellID,
		OutputType:          OutputMultimediaDisplay,
		Position:            e.Position,
		Data:                p.Data,
		ArtifactID:          p.ArtifactID,
		MimeType:            p.MimeType,
		MetadataJSON:        p.MetadataJSON,
		RepresentationsJSON: encodeRepresentations(e.Representations),
		DisplayID:           e.DisplayID,
	})
}

// applyDisplayOutputUpdated replaces content in place on every output row
// sharing the display id. The primary columns are recomputed together with
// the representations so the two never drift apart.
func applyDisplayOutputUpdated(tx *gorm.DB, e *events.MultimediaDisplayOutputUpdated) error {
	p := selectPrimary(e.Representations)
	return tx.Model(&Output{}).Where("display_id = ?", e.DisplayID).Updates(map[string]any{
		"data":                 p.Data,
		"artifact_id":          p.ArtifactID,
		"mime_type":            p.MimeType,
		"metadata_json":        p.MetadataJSON,
		"representations_json": encodeRepresentations(e.Representations),
	}).Error
}

func applyResultOutputAdded(tx *gorm.DB, e *events.MultimediaResultOutputAdded) error {
	p := selectPrimary(e.Representations)
	return insertOutput(tx, Output{
		ID:                  e.ID,
		CellID:              e.CellID,
		OutputType:          OutputMultimediaResult,
		Position:            e.Position,
		Data:                p.Data,
		ArtifactID:          p.ArtifactID,
		MimeType:            p.MimeType,
		MetadataJSON:        p.MetadataJSON,
		RepresentationsJSON: encodeRepresentations(e.Representations),
		ExecutionCount:      e.ExecutionCount,
	})
}

func applyErrorOutputAdded(tx *gorm.DB, e *events.ErrorOutputAdded) error {
	text, _ := e.Content.Text()
	return insertOutput(tx, Output{
		ID:         e.ID,
		CellID:     e.CellID,
		OutputType: OutputError,
		Position:   e.Position,
		Data:       text,
		ArtifactID: e.Content.ArtifactID,
		MimeType:   "text/plain",
	})
}

func applyOutputsCleared(tx *gorm.DB, e *events.CellOutputsCleared) error {
	if e.Wait {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cell_id"}},
			DoUpdates: clause.Assignments(map[string]any{"cleared_by": e.ClearedBy}),
		}).Create(&PendingClear{CellID: e.CellID, ClearedBy: e.ClearedBy}).Error
	}
	if err := tx.Where("cell_id = ?", e.CellID).Delete(&Output{}).Error; err != nil {
		return err
	}
	return tx.Where("cell_id = ?", e.CellID).Delete(&PendingClear{}).Error
}

func insertOutput(tx *gorm.DB, row Output) error {
	if err := consumePendingClear(tx, row.CellID); err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func consumePendingClear(tx *gorm.DB, cellID string) error {
	res := tx.Where("cell_id = ?", cellID).Delete(&PendingClear{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return tx.Where("cell_id = ?", cellID).Delete(&Output{}).Error
}

// applyInlineAppend concatenates inline content onto an existing output's
// data column. Artifact containers carry no inline text and are ignored, as
// is a missing target row.
func applyInlineAppend(tx *gorm.DB, outputID string, content events.MediaContainer) error {
	text, ok := content.Text()
	if !ok || text == "" {
		return nil
	}
	return tx.Model(&Output{}).Where("id = ?", outputID).
		Update("data", gorm.Expr("data || ?", text)).Error
}
