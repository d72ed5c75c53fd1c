package fetch

import (
	"github.com/schollz/progressbar/v3"
)

// Progress receives every chunk written to disk.
type Progress interface {
	Write(p []byte) (int, error)
	Finish() error
}

// ProgressFactory builds a Progress for one download. total is 0 when the
// server did not declare a length.
type ProgressFactory func(total int64, label string) Progress

// BarProgress renders a byte progress bar on stderr, or a spinner when the
// total is unknown.
func BarProgress(total int64, label string) Progress {
	if total <= 0 {
		total = -1
	}
	return progressbar.DefaultBytes(total, label)
}

// NoProgress discards progress updates.
func NoProgress(int64, string) Progress { return discard{} }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Finish() error               { return nil }
