package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zudsniper/transcribe-align/internal/apperr"
)

// FFmpeg converts audio with an ffmpeg binary.
type FFmpeg struct {
	Bin string // default: "ffmpeg"
}

func (f FFmpeg) bin() string {
	if f.Bin == "" {
		return "ffmpeg"
	}
	return f.Bin
}

// ToWAV writes a mono 16 kHz WAV of in to out, replacing out if present.
// The result is written to a sibling temp file first so an interrupted run
// never leaves a truncated out behind.
func (f FFmpeg) ToWAV(ctx context.Context, in, out string) error {
	if _, err := exec.LookPath(f.bin()); err != nil {
		return apperr.ErrToolUnavailable(f.bin(), err)
	}
	tmp := strings.TrimSuffix(out, filepath.Ext(out)) + ".part.wav"

	// ffmpeg -y -i input -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, f.bin(),
		"-y", "-loglevel", "error", "-i", in,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		tmp,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return apperr.ErrToolFailed(f.bin(), "convert", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return apperr.ErrFilesystem("rename converted audio", out, err)
	}
	return nil
}
