package transcribe

import (
	"context"
	"fmt"
	"strings"
)

// ModelSize selects a speech model, from fastest/least accurate to
// slowest/most accurate.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// ModelSizes lists every accepted size in accuracy order.
var ModelSizes = []ModelSize{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge}

// ParseModelSize accepts any of ModelSizes, case-insensitively.
func ParseModelSize(s string) (ModelSize, error) {
	m := ModelSize(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ModelSizes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown model size %q (want one of tiny, base, small, medium, large)", s)
}

// Segment is a timed span of recognized speech.
type Segment struct {
	ID       int     `json:"id"`
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
	Text     string  `json:"text"`
	Speaker  string  `json:"speaker,omitempty"` // filled by diarization
}

// Result is the full output of one transcription. It is persisted as
// transcript_full.json; Text alone goes to transcript.txt.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Backend  string    `json:"backend"`
	Model    string    `json:"model"`
	Segments []Segment `json:"segments"`
}

// Backend is a loaded speech model. Implementations are constructed once by
// Load and reused for every call until Close.
type Backend interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
	Name() string
	Close() error
}

// joinSegments rebuilds the full text for backends that only return spans.
func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
