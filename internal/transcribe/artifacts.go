package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zudsniper/transcribe-align/internal/apperr"
)

const (
	TextFile = "transcript.txt"
	JSONFile = "transcript_full.json"
)

// WriteArtifacts persists r as transcript_full.json and its Text as
// transcript.txt. The JSON is written first so a readable transcript.txt
// always has a structured twin.
func WriteArtifacts(dir string, r *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.ErrFilesystem("create transcript directory", dir, err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	jsonPath := filepath.Join(dir, JSONFile)
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
		return apperr.ErrFilesystem("write structured transcript", jsonPath, err)
	}

	textPath := filepath.Join(dir, TextFile)
	if err := os.WriteFile(textPath, []byte(r.Text), 0o644); err != nil {
		return apperr.ErrFilesystem("write transcript text", textPath, err)
	}
	return nil
}

// ReadResult loads a transcript_full.json written by WriteArtifacts.
func ReadResult(dir string) (*Result, error) {
	p := filepath.Join(dir, JSONFile)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, apperr.ErrFilesystem("read structured transcript", p, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return &r, nil
}
