package diarize

import (
	"context"
	"strconv"

	"github.com/zudsniper/transcribe-align/internal/transcribe"
)

// DefaultGap is the pause, in seconds, that hands the turn to the other
// speaker.
const DefaultGap = 1.5

// Silence alternates between two speakers whenever the pause between
// consecutive segments exceeds Gap. Segments that already carry a speaker
// are left untouched.
type Silence struct {
	Gap float64 // zero means DefaultGap
}

func (s Silence) AssignSpeakers(ctx context.Context, r *transcribe.Result) error {
	if r == nil || len(r.Segments) == 0 {
		return nil
	}
	for _, seg := range r.Segments {
		if seg.Speaker != "" {
			return nil
		}
	}
	gap := s.Gap
	if gap <= 0 {
		gap = DefaultGap
	}

	speaker := 1
	for i := range r.Segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && r.Segments[i].StartSec-r.Segments[i-1].EndSec > gap {
			speaker = 3 - speaker
		}
		r.Segments[i].Speaker = "Speaker " + strconv.Itoa(speaker)
	}
	return nil
}
