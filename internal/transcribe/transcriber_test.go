package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/zudsniper/transcribe-align/internal/apperr"
)

type stubBackend struct {
	result Result
	err    error
	calls  int
	closed bool
}

func (s *stubBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}

type speakerStub struct{ label string }

func (l speakerStub) AssignSpeakers(ctx context.Context, r *Result) error {
	for i := range r.Segments {
		r.Segments[i].Speaker = l.label
	}
	return nil
}

func writeAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "audio.mp3")
	if err := os.WriteFile(p, []byte("ID3fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTranscribe_WritesMatchingArtifacts(t *testing.T) {
	be := &stubBackend{result: Result{
		Text:     "hello world. second line",
		Language: "en",
		Segments: []Segment{
			{ID: 0, StartSec: 0, EndSec: 1.5, Text: "hello world."},
			{ID: 1, StartSec: 1.5, EndSec: 3, Text: "second line"},
		},
	}}
	tr := New(be, ModelBase, nil, zaptest.NewLogger(t))
	out := filepath.Join(t.TempDir(), "out")

	res, err := tr.Transcribe(context.Background(), writeAudio(t), out)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Backend != "stub" || res.Model != "base" {
		t.Fatalf("backend/model = %q/%q", res.Backend, res.Model)
	}

	txt, err := os.ReadFile(filepath.Join(out, TextFile))
	if err != nil {
		t.Fatal(err)
	}
	var full Result
	data, err := os.ReadFile(filepath.Join(out, JSONFile))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &full); err != nil {
		t.Fatal(err)
	}
	if string(txt) != full.Text {
		t.Fatalf("transcript.txt %q differs from JSON text %q", txt, full.Text)
	}
	if len(full.Segments) != 2 || full.Segments[1].EndSec != 3 {
		t.Fatalf("segments not persisted: %+v", full.Segments)
	}
}

func TestTranscribe_FillsTextFromSegments(t *testing.T) {
	be := &stubBackend{result: Result{Segments: []Segment{{Text: " one "}, {Text: ""}, {Text: "two"}}}}
	tr := New(be, ModelSmall, nil, nil)

	res, err := tr.Transcribe(context.Background(), writeAudio(t), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "one two" {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestTranscribe_EmptyResultStillWritesFiles(t *testing.T) {
	tr := New(&stubBackend{}, ModelTiny, nil, nil)
	out := t.TempDir()

	res, err := tr.Transcribe(context.Background(), writeAudio(t), out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Segments == nil {
		t.Fatal("Segments should be an empty list, not null")
	}
	data, err := os.ReadFile(filepath.Join(out, TextFile))
	if err != nil || len(data) != 0 {
		t.Fatalf("transcript.txt = %q, %v", data, err)
	}
}

func TestTranscribe_MissingInput(t *testing.T) {
	be := &stubBackend{}
	tr := New(be, ModelBase, nil, nil)
	out := filepath.Join(t.TempDir(), "out")

	_, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), out)
	if apperr.CodeOf(err) != apperr.CodeInference {
		t.Fatalf("code = %v, err = %v", apperr.CodeOf(err), err)
	}
	if be.calls != 0 {
		t.Fatal("backend should not run without input")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("no artifacts expected")
	}
}

func TestTranscribe_BackendFailure(t *testing.T) {
	boom := errors.New("decoder exploded")
	tr := New(&stubBackend{err: boom}, ModelBase, nil, nil)
	out := filepath.Join(t.TempDir(), "out")

	_, err := tr.Transcribe(context.Background(), writeAudio(t), out)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if apperr.CodeOf(err) != apperr.CodeInference {
		t.Fatalf("code = %v", apperr.CodeOf(err))
	}
	if _, err := os.Stat(filepath.Join(out, TextFile)); !os.IsNotExist(err) {
		t.Fatal("failed transcription must not leave transcript.txt")
	}
}

func TestTranscribe_OverwritesAndReusesBackend(t *testing.T) {
	be := &stubBackend{result: Result{Text: "first"}}
	tr := New(be, ModelBase, nil, nil)
	out := t.TempDir()
	audio := writeAudio(t)

	if _, err := tr.Transcribe(context.Background(), audio, out); err != nil {
		t.Fatal(err)
	}
	be.result = Result{Text: "second"}
	if _, err := tr.Transcribe(context.Background(), audio, out); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(filepath.Join(out, TextFile))
	if string(got) != "second" {
		t.Fatalf("transcript.txt = %q", got)
	}
	if be.calls != 2 {
		t.Fatalf("calls = %d", be.calls)
	}
	tr.Close()
	if !be.closed {
		t.Fatal("Close should release the backend")
	}
}

func TestTranscribe_LabelerRuns(t *testing.T) {
	be := &stubBackend{result: Result{Segments: []Segment{{Text: "a"}, {Text: "b"}}}}
	tr := New(be, ModelBase, speakerStub{label: "Speaker 1"}, nil)
	out := t.TempDir()

	if _, err := tr.Transcribe(context.Background(), writeAudio(t), out); err != nil {
		t.Fatal(err)
	}
	r, err := ReadResult(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range r.Segments {
		if s.Speaker != "Speaker 1" {
			t.Fatalf("speaker = %q", s.Speaker)
		}
	}
}

func TestLoad_RejectsUnknownBackendAndSize(t *testing.T) {
	ctx := context.Background()
	if _, err := Load(ctx, Options{Backend: "carrier-pigeon"}); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("unknown backend: %v", err)
	}
	if _, err := Load(ctx, Options{Backend: BackendOpenAI, Model: "huge"}); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("unknown size: %v", err)
	}
	tr, err := Load(ctx, Options{Backend: BackendLocal, Model: ModelSmall, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Backend() != "local-whisper" {
		t.Fatalf("backend = %q", tr.Backend())
	}
}

func TestParseModelSize(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want ModelSize
		ok   bool
	}{
		{"tiny", ModelTiny, true},
		{" Large ", ModelLarge, true},
		{"medium", ModelMedium, true},
		{"large-v3", "", false},
		{"", "", false},
	} {
		got, err := ParseModelSize(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseModelSize(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestLoad_RequiresBackendCredentials(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		opts Options
		want string
	}{
		{"openai", Options{Backend: BackendOpenAI}, "OPENAI_API_KEY"},
		{"default backend", Options{}, "OPENAI_API_KEY"},
		{"assemblyai", Options{Backend: BackendAssemblyAI}, "ASSEMBLYAI_API_KEY"},
		{"cloudflare token", Options{Backend: BackendCloudflare, Cloudflare: CloudflareOptions{AccountID: "acct"}}, "CF_API_TOKEN"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(ctx, tc.opts)
			if apperr.CodeOf(err) != apperr.CodeInvalidArgument || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}

	tr, err := Load(ctx, Options{Backend: BackendCloudflare, Cloudflare: CloudflareOptions{AccountID: "a", APIToken: "t"}})
	if err != nil {
		t.Fatalf("complete credentials: %v", err)
	}
	tr.Close()
}
