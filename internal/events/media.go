package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MediaInline   = "inline"
	MediaArtifact = "artifact"
)

// MediaContainer is either inline content embedded in the event or a
// reference to an artifact stored out of band. Large or binary payloads go
// through the artifact path so they never bloat the log.
type MediaContainer struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	ArtifactID string          `json:"artifactId,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

func InlineText(text string) MediaContainer {
	raw, _ := json.Marshal(text)
	return MediaContainer{Type: MediaInline, Data: raw}
}

func InlineJSON(v any) (MediaContainer, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return MediaContainer{}, err
	}
	return MediaContainer{Type: MediaInline, Data: raw}, nil
}

func Artifact(artifactID string) MediaContainer {
	return MediaContainer{Type: MediaArtifact, ArtifactID: artifactID}
}

// Text renders inline content as a string: JSON strings are unquoted, any
// other inline JSON is returned verbatim. Artifact containers have no text.
func (c MediaContainer) Text() (string, bool) {
	if c.Type != MediaInline || len(c.Data) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(c.Data, &s); err == nil {
		return s, true
	}
	return string(c.Data), true
}

func (c MediaContainer) validate() error {
	switch c.Type {
	case MediaInline:
		if len(c.Data) == 0 {
			return fmt.Errorf("inline container requires data")
		}
	case MediaArtifact:
		if strings.TrimSpace(c.ArtifactID) == "" {
			return fmt.Errorf("artifact container requires artifactId")
		}
	default:
		return fmt.Errorf("unknown container type %q", c.Type)
	}
	return nil
}

func validateRepresentations(reps map[string]MediaContainer) error {
	if len(reps) == 0 {
		return fmt.Errorf("at least one representation is required")
	}
	for mime, container := range reps {
		if strings.TrimSpace(mime) == "" {
			return fmt.Errorf("representation mime type is required")
		}
		if err := container.validate(); err != nil {
			return fmt.Errorf("representation %s: %w", mime, err)
		}
	}
	return nil
}
