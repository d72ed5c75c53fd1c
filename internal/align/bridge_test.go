package align

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/fetch"
)

type fakeAudio struct {
	probes, fetches int
	probeErr        error
	name            string
}

func (f *fakeAudio) Probe(ctx context.Context, url string) (fetch.ProbeResult, error) {
	f.probes++
	return fetch.ProbeResult{StatusCode: 200}, f.probeErr
}

func (f *fakeAudio) Fetch(ctx context.Context, url, destDir string) (string, error) {
	f.fetches++
	name := f.name
	if name == "" {
		name = "recording.mp3"
	}
	p := filepath.Join(destDir, name)
	return p, os.WriteFile(p, []byte("audio"), 0o644)
}

type fakeTranscripts struct {
	calls int
	text  string
	err   error
}

func (f *fakeTranscripts) Transcript(ctx context.Context, audioPath string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeAligner struct {
	versionErr, validateErr, alignErr error
	writeTextGrid                     bool
	calls                             []string
}

func (f *fakeAligner) Version(ctx context.Context) (string, error) {
	f.calls = append(f.calls, "version")
	return "3.1.0", f.versionErr
}

func (f *fakeAligner) Validate(ctx context.Context, corpusDir, dictionary string) error {
	f.calls = append(f.calls, "validate "+dictionary)
	return f.validateErr
}

func (f *fakeAligner) Align(ctx context.Context, corpusDir, dictionary, acousticModel, outDir string) error {
	f.calls = append(f.calls, "align "+acousticModel)
	if f.alignErr != nil {
		return f.alignErr
	}
	if f.writeTextGrid {
		entries, _ := filepath.Glob(filepath.Join(corpusDir, "*.txt"))
		for _, e := range entries {
			base := filepath.Base(e[:len(e)-len(".txt")])
			os.WriteFile(filepath.Join(outDir, base+".TextGrid"), []byte("File type = \"ooTextFile\""), 0o644)
		}
	}
	return nil
}

func newRequest(t *testing.T) Request {
	root := t.TempDir()
	return Request{
		URL:        "https://example.com/recording.mp3",
		BaseName:   "test",
		CorpusDir:  filepath.Join(root, "mfa_corpus"),
		AlignedDir: filepath.Join(root, "mfa_aligned"),
	}
}

func TestFormatLine(t *testing.T) {
	for _, tc := range []struct{ text, base, want string }{
		{"  hello   world\n", "test", "test hello world"},
		{"one", "b", "b one"},
		{"\tmany\n\nlines  here ", "x", "x many lines here"},
		{"", "empty", "empty "},
	} {
		if got := FormatLine(tc.text, tc.base); got != tc.want {
			t.Errorf("FormatLine(%q, %q) = %q, want %q", tc.text, tc.base, got, tc.want)
		}
	}
}

func TestBridge_RunCreatesCorpusAndAligns(t *testing.T) {
	audio := &fakeAudio{}
	ts := &fakeTranscripts{text: "  hello   world\n"}
	al := &fakeAligner{writeTextGrid: true}
	b := &Bridge{Aligner: al, Audio: audio, Transcripts: ts, Logger: zaptest.NewLogger(t)}
	req := newRequest(t)

	res, err := b.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AudioPath != filepath.Join(req.CorpusDir, "test.mp3") {
		t.Fatalf("audio path = %q", res.AudioPath)
	}
	if _, err := os.Stat(res.AudioPath); err != nil {
		t.Fatalf("corpus audio missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(req.CorpusDir, "recording.mp3")); !os.IsNotExist(err) {
		t.Fatal("downloaded file should have been renamed")
	}
	line, _ := os.ReadFile(res.TranscriptPath)
	if string(line) != "test hello world" {
		t.Fatalf("corpus transcript = %q", line)
	}
	if _, err := os.Stat(res.TextGridPath); err != nil {
		t.Fatalf("TextGrid missing: %v", err)
	}
	want := []string{"version", "validate english_us_mfa", "align english_mfa"}
	if len(al.calls) != len(want) {
		t.Fatalf("calls = %v", al.calls)
	}
	for i := range want {
		if al.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", al.calls, want)
		}
	}
}

func TestBridge_SecondRunSkipsFetchAndTranscribe(t *testing.T) {
	audio := &fakeAudio{}
	ts := &fakeTranscripts{text: "hello world"}
	b := &Bridge{Aligner: &fakeAligner{writeTextGrid: true}, Audio: audio, Transcripts: ts}
	req := newRequest(t)

	if _, err := b.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	res, err := b.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if audio.fetches != 1 || audio.probes != 1 || ts.calls != 1 {
		t.Fatalf("fetches=%d probes=%d transcribes=%d", audio.fetches, audio.probes, ts.calls)
	}
	if res.Downloaded || res.Transcribed || res.Line != "test hello world" {
		t.Fatalf("second run result = %+v", res)
	}
}

func TestBridge_VersionFailureAbortsEarly(t *testing.T) {
	audio := &fakeAudio{}
	req := newRequest(t)
	b := &Bridge{Aligner: &fakeAligner{versionErr: errors.New("exec: \"mfa\": not found")}, Audio: audio}

	_, err := b.Run(context.Background(), req)
	if apperr.CodeOf(err) != apperr.CodeExternalTool {
		t.Fatalf("err = %v", err)
	}
	if audio.probes != 0 {
		t.Fatal("nothing should run after a failed version check")
	}
	if _, err := os.Stat(req.CorpusDir); !os.IsNotExist(err) {
		t.Fatal("corpus dir should not be created")
	}
}

func TestBridge_ValidateFailureSkipsAlign(t *testing.T) {
	al := &fakeAligner{validateErr: &CommandError{Argv: []string{"mfa", "validate"}, ExitCode: 1}}
	b := &Bridge{Aligner: al, Audio: &fakeAudio{}, Transcripts: &fakeTranscripts{text: "hi"}}

	_, err := b.Run(context.Background(), newRequest(t))
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 1 {
		t.Fatalf("err = %v", err)
	}
	if al.calls[len(al.calls)-1] != "validate english_us_mfa" {
		t.Fatalf("align ran after failed validate: %v", al.calls)
	}
}

func TestBridge_MissingTextGridIsFailure(t *testing.T) {
	b := &Bridge{Aligner: &fakeAligner{}, Audio: &fakeAudio{}, Transcripts: &fakeTranscripts{text: "hi"}}
	_, err := b.Run(context.Background(), newRequest(t))
	if apperr.CodeOf(err) != apperr.CodeExternalTool {
		t.Fatalf("err = %v", err)
	}
}

func TestBridge_ProbeFailureStopsDownload(t *testing.T) {
	audio := &fakeAudio{probeErr: apperr.ErrUnexpectedStatus("https://example.com/recording.mp3", 403)}
	b := &Bridge{Aligner: &fakeAligner{}, Audio: audio}

	_, err := b.Run(context.Background(), newRequest(t))
	if apperr.CodeOf(err) != apperr.CodeTransport || audio.fetches != 0 {
		t.Fatalf("err = %v, fetches = %d", err, audio.fetches)
	}
}

func TestBridge_FallbackOnlyWhenConfigured(t *testing.T) {
	failing := &fakeTranscripts{err: errors.New("model unavailable")}

	req := newRequest(t)
	b := &Bridge{Aligner: &fakeAligner{writeTextGrid: true}, Audio: &fakeAudio{}, Transcripts: failing}
	if _, err := b.Run(context.Background(), req); apperr.CodeOf(err) != apperr.CodeInference {
		t.Fatalf("without fallback err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(req.CorpusDir, "test.txt")); !os.IsNotExist(err) {
		t.Fatal("no corpus transcript without fallback")
	}

	req.FallbackText = "This is a test transcript for the Montreal Forced Aligner."
	res, err := b.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !res.UsedFallback || res.Line != "test This is a test transcript for the Montreal Forced Aligner." {
		t.Fatalf("result = %+v", res)
	}
}

type recordingConverter struct{ in, out string }

func (c *recordingConverter) ToWAV(ctx context.Context, in, out string) error {
	c.in, c.out = in, out
	return os.WriteFile(out, []byte("RIFF"), 0o644)
}

func TestBridge_ConvertsToWAV(t *testing.T) {
	conv := &recordingConverter{}
	req := newRequest(t)
	req.Ext = ".wav"
	b := &Bridge{Aligner: &fakeAligner{writeTextGrid: true}, Audio: &fakeAudio{}, Transcripts: &fakeTranscripts{text: "hi"}, Converter: conv}

	res, err := b.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if conv.out != res.AudioPath || filepath.Ext(conv.in) != ".mp3" {
		t.Fatalf("converter got %q -> %q", conv.in, conv.out)
	}
	if _, err := os.Stat(conv.in); !os.IsNotExist(err) {
		t.Fatal("original download should be removed after conversion")
	}
}

func TestBridge_RejectsBadBaseName(t *testing.T) {
	req := newRequest(t)
	req.BaseName = "../escape"
	b := &Bridge{Aligner: &fakeAligner{}}
	if _, err := b.Run(context.Background(), req); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("err = %v", err)
	}
}

type failingConverter struct{}

func (failingConverter) ToWAV(ctx context.Context, in, out string) error {
	return apperr.ErrToolFailed("ffmpeg", "convert", errors.New("invalid data found when processing input"))
}

func TestBridge_WAVWithoutConverterFails(t *testing.T) {
	req := newRequest(t)
	req.Ext = "wav"
	al := &fakeAligner{writeTextGrid: true}
	b := &Bridge{Aligner: al, Audio: &fakeAudio{}, Transcripts: &fakeTranscripts{text: "hi"}}

	_, err := b.Run(context.Background(), req)
	if apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(req.CorpusDir)
	if len(entries) != 0 {
		t.Fatalf("corpus should stay empty, has %d entries", len(entries))
	}
	if len(al.calls) != 1 {
		t.Fatalf("aligner calls = %v", al.calls)
	}
}

func TestBridge_FailedConversionRemovesDownload(t *testing.T) {
	req := newRequest(t)
	req.Ext = "wav"
	b := &Bridge{Aligner: &fakeAligner{}, Audio: &fakeAudio{}, Converter: failingConverter{}}

	if _, err := b.Run(context.Background(), req); apperr.CodeOf(err) != apperr.CodeExternalTool {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(req.CorpusDir, "recording.mp3")); !os.IsNotExist(err) {
		t.Fatal("downloaded original left in the corpus")
	}
}

func TestBridge_ValidateReportsAlignerStdout(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	bin := filepath.Join(t.TempDir(), "mfa")
	script := `#!/bin/sh
case "$1" in
  version) echo 3.1.0 ;;
  validate) echo "ERROR: 3 OOV words in corpus"; exit 1 ;;
  *) exit 0 ;;
esac
`
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	b := &Bridge{
		Aligner:     MFA{Bin: bin},
		Audio:       &fakeAudio{},
		Transcripts: &fakeTranscripts{text: "hello world"},
		Logger:      zaptest.NewLogger(t),
	}

	_, err := b.Run(context.Background(), newRequest(t))
	if apperr.CodeOf(err) != apperr.CodeExternalTool {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "3 OOV words in corpus") {
		t.Fatalf("error should carry the aligner's stdout: %v", err)
	}
}

func TestRequest_CorpusFiles(t *testing.T) {
	audio, txt := Request{CorpusDir: "corpus", BaseName: "talk", Ext: ".WAV"}.CorpusFiles()
	if audio != filepath.Join("corpus", "talk.WAV") || txt != filepath.Join("corpus", "talk.txt") {
		t.Fatalf("CorpusFiles = %q, %q", audio, txt)
	}
	if audio, _ := (Request{CorpusDir: "c", BaseName: "b"}).CorpusFiles(); audio != filepath.Join("c", "b.mp3") {
		t.Fatalf("default ext: %q", audio)
	}
}
