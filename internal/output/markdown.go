package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/transcribe"
)

// MarkdownFile is written next to transcript.txt when requested.
const MarkdownFile = "transcript.md"

type Metadata struct {
	Title     string
	Source    string
	Generated time.Time
}

// RenderMarkdown lays out r as a readable document: a short header, then one
// paragraph per segment with its time range and speaker when known.
func RenderMarkdown(meta Metadata, r *transcribe.Result) string {
	var b strings.Builder
	title := meta.Title
	if title == "" {
		title = "Transcript"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if meta.Source != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", meta.Source)
	}
	if r.Backend != "" {
		fmt.Fprintf(&b, "- Backend: `%s`\n", r.Backend)
	}
	if r.Model != "" {
		fmt.Fprintf(&b, "- Model: `%s`\n", r.Model)
	}
	if r.Language != "" {
		fmt.Fprintf(&b, "- Language: %s\n", r.Language)
	}
	if r.Duration > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", secToTS(r.Duration))
	}
	if !meta.Generated.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.Generated.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n---\n\n")

	if len(r.Segments) == 0 {
		if t := strings.TrimSpace(r.Text); t != "" {
			b.WriteString(t + "\n")
		}
		return b.String()
	}
	for _, s := range r.Segments {
		ts := ""
		if s.EndSec > 0 {
			ts = fmt.Sprintf("[%s-%s] ", secToTS(s.StartSec), secToTS(s.EndSec))
		}
		spk := ""
		if s.Speaker != "" {
			spk = "**" + s.Speaker + ":** "
		}
		fmt.Fprintf(&b, "%s%s%s\n\n", ts, spk, strings.TrimSpace(s.Text))
	}
	return b.String()
}

// WriteMarkdown renders r into dir/transcript.md.
func WriteMarkdown(dir string, meta Metadata, r *transcribe.Result) (string, error) {
	p := filepath.Join(dir, MarkdownFile)
	if err := os.WriteFile(p, []byte(RenderMarkdown(meta, r)), 0o644); err != nil {
		return "", apperr.ErrFilesystem("write markdown transcript", p, err)
	}
	return p, nil
}

func secToTS(sec float64) string {
	d := time.Duration(sec*1000) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
