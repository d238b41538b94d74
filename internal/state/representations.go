package state

import (
	"encoding/json"
	"sort"

	"cellflow/internal/events"
)

// primaryPreference is the fixed order used to pick the single primary
// (mimeType, data) pair out of a multi-format output: interactive/structured
// JSON formats first, then HTML, then images, then text. The first
// representation present wins.
var primaryPreference = []string{
	"application/vnd.plotly.v1+json",
	"application/vnd.vegalite.v5+json",
	"application/vnd.vegalite.v4+json",
	"application/vnd.vega.v5+json",
	"application/geo+json",
	"application/vdom.v1+json",
	"application/json",
	"text/html",
	"image/svg+xml",
	"image/png",
	"image/jpeg",
	"text/markdown",
	"text/latex",
	"text/plain",
}

type primary struct {
	MimeType     string
	Data         string
	ArtifactID   string
	MetadataJSON string
}

// selectPrimary denormalizes one representation onto scalar columns. When no
// preferred mime type is present it falls back to the lexicographically first
// one so replicas agree.
func selectPrimary(reps map[string]events.MediaContainer) primary {
	if len(reps) == 0 {
		return primary{}
	}
	mime := ""
	for _, candidate := range primaryPreference {
		if _, ok := reps[candidate]; ok {
			mime = candidate
			break
		}
	}
	if mime == "" {
		keys := make([]string, 0, len(reps))
		for k := range reps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		mime = keys[0]
	}
	container := reps[mime]
	p := primary{MimeType: mime}
	if text, ok := container.Text(); ok {
		p.Data = text
	}
	p.ArtifactID = container.ArtifactID
	if len(container.Metadata) > 0 {
		raw, err := json.Marshal(container.Metadata)
		if err == nil {
			p.MetadataJSON = string(raw)
		}
	}
	return p
}

func encodeRepresentations(reps map[string]events.MediaContainer) string {
	if len(reps) == 0 {
		return ""
	}
	raw, err := json.Marshal(reps)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Representations decodes the stored representation map of an output row.
func (o Output) Representations() map[string]events.MediaContainer {
	if o.RepresentationsJSON == "" {
		return nil
	}
	var reps map[string]events.MediaContainer
	if err := json.Unmarshal([]byte(o.RepresentationsJSON), &reps); err != nil {
		return nil
	}
	return reps
}
