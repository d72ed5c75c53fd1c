package align

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/fetch"
	"github.com/zudsniper/transcribe-align/internal/logging"
)

// AudioSource materializes the remote audio. *fetch.Fetcher satisfies it.
type AudioSource interface {
	Probe(ctx context.Context, url string) (fetch.ProbeResult, error)
	Fetch(ctx context.Context, url, destDir string) (string, error)
}

// TranscriptSource produces the text spoken in audioPath.
type TranscriptSource interface {
	Transcript(ctx context.Context, audioPath string) (string, error)
}

// TranscriptFunc adapts a function to TranscriptSource.
type TranscriptFunc func(ctx context.Context, audioPath string) (string, error)

func (f TranscriptFunc) Transcript(ctx context.Context, audioPath string) (string, error) {
	return f(ctx, audioPath)
}

// Converter rewrites audio into the WAV form the aligner prefers.
// media.FFmpeg satisfies it.
type Converter interface {
	ToWAV(ctx context.Context, in, out string) error
}

// Request describes one corpus entry to align.
type Request struct {
	URL           string
	BaseName      string
	CorpusDir     string
	AlignedDir    string
	Dictionary    string // default: "english_us_mfa"
	AcousticModel string // default: "english_mfa"
	Ext           string // corpus audio extension without dot; default: "mp3"

	// FallbackText replaces the transcript when transcription fails. Empty
	// disables the fallback and the failure aborts the run.
	FallbackText string
}

// Result reports where the corpus pair and alignment ended up.
type Result struct {
	AudioPath      string
	TranscriptPath string
	TextGridPath   string
	Line           string
	Downloaded     bool
	Transcribed    bool
	UsedFallback   bool
}

// Bridge prepares an aligner corpus and runs validate then align over it.
type Bridge struct {
	Aligner     Aligner
	Audio       AudioSource
	Transcripts TranscriptSource
	Converter   Converter // required when Ext is "wav" and the download is not
	Logger      *zap.Logger
}

// Run executes the alignment steps in order and stops at the first failure.
// Corpus files that already exist are reused as-is.
func (b *Bridge) Run(ctx context.Context, req Request) (*Result, error) {
	log := logging.OrNop(b.Logger).With(zap.String("base", req.BaseName))
	req = withDefaults(req)
	if req.BaseName == "" || strings.ContainsAny(req.BaseName, `/\`) {
		return nil, apperr.ErrInvalidArgument(fmt.Sprintf("invalid corpus base name %q", req.BaseName))
	}

	version, err := b.Aligner.Version(ctx)
	if err != nil {
		return nil, apperr.ErrToolUnavailable("mfa", err)
	}
	log.Info("aligner available", zap.String("version", version))

	for _, dir := range []string{req.CorpusDir, req.AlignedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.ErrFilesystem("create directory", dir, err)
		}
	}

	audioPath, transcriptPath := req.CorpusFiles()
	res := &Result{
		AudioPath:      audioPath,
		TranscriptPath: transcriptPath,
		TextGridPath:   filepath.Join(req.AlignedDir, req.BaseName+".TextGrid"),
	}

	if err := b.ensureAudio(ctx, log, req, res); err != nil {
		return nil, err
	}
	if err := b.ensureTranscript(ctx, log, req, res); err != nil {
		return nil, err
	}

	words := strings.Fields(res.Line)
	log.Info("corpus transcript",
		zap.Int("length", len(res.Line)),
		zap.Int("words", len(words)),
		zap.String("first_words", strings.Join(preview(res.Line, 5), " ")),
	)

	log.Info("validating corpus", zap.String("corpus", req.CorpusDir), zap.String("dictionary", req.Dictionary))
	if err := b.Aligner.Validate(ctx, req.CorpusDir, req.Dictionary); err != nil {
		return nil, apperr.ErrToolFailed("mfa", "validate", err)
	}

	log.Info("aligning corpus", zap.String("acoustic_model", req.AcousticModel), zap.String("out", req.AlignedDir))
	if err := b.Aligner.Align(ctx, req.CorpusDir, req.Dictionary, req.AcousticModel, req.AlignedDir); err != nil {
		return nil, apperr.ErrToolFailed("mfa", "align", err)
	}

	if _, err := os.Stat(res.TextGridPath); err != nil {
		return nil, apperr.ErrToolFailed("mfa", "align",
			fmt.Errorf("alignment file not found: %w", err)).WithDetail("path", res.TextGridPath)
	}
	log.Info("alignment file created", zap.String("path", res.TextGridPath))
	return res, nil
}

// CorpusFiles returns the audio and transcript paths Run reads or creates
// for req.
func (r Request) CorpusFiles() (audio, transcript string) {
	r = withDefaults(r)
	return filepath.Join(r.CorpusDir, r.BaseName+"."+r.Ext),
		filepath.Join(r.CorpusDir, r.BaseName+".txt")
}

func withDefaults(req Request) Request {
	if req.Dictionary == "" {
		req.Dictionary = "english_us_mfa"
	}
	if req.AcousticModel == "" {
		req.AcousticModel = "english_mfa"
	}
	req.Ext = strings.TrimPrefix(req.Ext, ".")
	if req.Ext == "" {
		req.Ext = "mp3"
	}
	return req
}

func (b *Bridge) ensureAudio(ctx context.Context, log *zap.Logger, req Request, res *Result) error {
	if fi, err := os.Stat(res.AudioPath); err == nil {
		log.Info("corpus audio already exists",
			zap.String("path", res.AudioPath),
			zap.String("size", humanize.IBytes(uint64(fi.Size()))),
		)
		return nil
	}
	if b.Audio == nil {
		return apperr.ErrInvalidArgument("no audio source configured and corpus audio is missing")
	}

	if _, err := b.Audio.Probe(ctx, req.URL); err != nil {
		return err
	}
	log.Info("audio source reachable", zap.String("url", req.URL))

	downloaded, err := b.Audio.Fetch(ctx, req.URL, req.CorpusDir)
	if err != nil {
		return err
	}
	res.Downloaded = true

	srcExt := strings.TrimPrefix(strings.ToLower(filepath.Ext(downloaded)), ".")
	if req.Ext == "wav" && srcExt != "wav" {
		if b.Converter == nil {
			discard(log, downloaded)
			return apperr.ErrInvalidArgument(fmt.Sprintf("corpus wants wav but %s is %s and no converter is configured", filepath.Base(downloaded), srcExt))
		}
		log.Info("converting corpus audio to wav", zap.String("from", downloaded))
		if err := b.Converter.ToWAV(ctx, downloaded, res.AudioPath); err != nil {
			discard(log, downloaded)
			return err
		}
		discard(log, downloaded)
		return nil
	}

	if downloaded != res.AudioPath {
		if err := os.Rename(downloaded, res.AudioPath); err != nil {
			return apperr.ErrFilesystem("rename audio", res.AudioPath, err)
		}
		log.Info("renamed audio to corpus convention", zap.String("path", res.AudioPath))
	}
	return nil
}

// discard removes a download that will not become the corpus audio.
func discard(log *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("could not remove downloaded original", zap.String("path", path), zap.Error(err))
	}
}

func (b *Bridge) ensureTranscript(ctx context.Context, log *zap.Logger, req Request, res *Result) error {
	if data, err := os.ReadFile(res.TranscriptPath); err == nil {
		res.Line = strings.TrimSpace(string(data))
		log.Info("corpus transcript already exists", zap.String("path", res.TranscriptPath))
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return apperr.ErrFilesystem("read corpus transcript", res.TranscriptPath, err)
	}

	var text string
	var err error
	if b.Transcripts == nil {
		err = errors.New("no transcript source configured")
	} else {
		text, err = b.Transcripts.Transcript(ctx, res.AudioPath)
	}
	switch {
	case err == nil:
		res.Transcribed = true
	case req.FallbackText != "" && ctx.Err() == nil:
		log.Warn("transcription failed, using fallback transcript", zap.Error(err))
		text = req.FallbackText
		res.UsedFallback = true
	case apperr.CodeOf(err) == apperr.CodeUnknown:
		return apperr.ErrTranscriptionFailed("corpus", err)
	default:
		return err
	}

	res.Line = FormatLine(text, req.BaseName)
	if err := os.WriteFile(res.TranscriptPath, []byte(res.Line), 0o644); err != nil {
		return apperr.ErrFilesystem("write corpus transcript", res.TranscriptPath, err)
	}
	log.Info("wrote corpus transcript", zap.String("path", res.TranscriptPath))
	return nil
}
