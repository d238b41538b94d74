package state

import (
	"cellflow/internal/db/migration"
)

func init() {
	// Older databases predate the denormalized primary columns on
	// multimedia outputs; recompute them from the stored representations.
	migration.Register("recompute_output_primary_columns", func(m *migration.Migration) error {
		var outputs []Output
		if err := m.DB.Where("representations_json <> '' AND mime_type = ''").Find(&outputs).Error; err != nil {
			return err
		}
		for _, output := range outputs {
			reps := output.Representations()
			if len(reps) == 0 {
				m.Log("skipping output with bad representations: ", output.ID)
				continue
			}
			p := selectPrimary(reps)
			updates := map[string]interface{}{
				"mime_type":     p.MimeType,
				"data":          p.Data,
				"artifact_id":   p.ArtifactID,
				"metadata_json": p.MetadataJSON,
			}
			if err := m.DB.Model(&Output{}).Where("id = ?", output.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
