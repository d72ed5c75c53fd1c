// Package pipeline chains download, transcription and optional alignment
// into one sequential run.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/zudsniper/transcribe-align/internal/align"
	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/fetch"
	"github.com/zudsniper/transcribe-align/internal/logging"
	"github.com/zudsniper/transcribe-align/internal/output"
	"github.com/zudsniper/transcribe-align/internal/transcribe"
)

type Downloader interface {
	Fetch(ctx context.Context, url, destDir string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, destDir string) (*transcribe.Result, error)
}

type Request struct {
	URL       string
	OutputDir string
	Markdown  bool
	// Align, when set, runs the aligner over the downloaded audio and the
	// fresh transcript. Its URL field is ignored.
	Align *align.Request
}

type Result struct {
	AudioPath  string
	Transcript *transcribe.Result
	Markdown   string
	Alignment  *align.Result
	// Reused is set when the corpus pair already existed and the download
	// and transcription were skipped.
	Reused bool
}

type Pipeline struct {
	Fetcher     Downloader
	Transcriber Transcriber
	Aligner     align.Aligner
	Converter   align.Converter
	Logger      *zap.Logger
}

// Run stops at the first failing stage; later stages never see partial
// input. With Align set and both corpus files present, the download and
// transcription are skipped and the existing pair is aligned again.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	log := logging.OrNop(p.Logger)
	started := time.Now()

	if req.Align != nil {
		audio, txt := req.Align.CorpusFiles()
		if fileExists(audio) && fileExists(txt) {
			log.Info("corpus pair exists, skipping download and transcription",
				zap.String("audio", audio), zap.String("transcript", txt))
			out, err := p.alignExisting(ctx, log, req, audio)
			if err != nil {
				return nil, err
			}
			log.Info("pipeline finished", zap.Duration("took", time.Since(started)))
			return out, nil
		}
	}

	audioPath, err := p.Fetcher.Fetch(ctx, req.URL, req.OutputDir)
	if err != nil {
		return nil, err
	}

	tr, err := p.Transcriber.Transcribe(ctx, audioPath, req.OutputDir)
	if err != nil {
		return nil, err
	}
	out := &Result{AudioPath: audioPath, Transcript: tr}

	if req.Markdown {
		md, err := writeMarkdown(req, audioPath, tr)
		if err != nil {
			return nil, err
		}
		out.Markdown = md
	}

	if req.Align != nil {
		if p.Aligner == nil {
			return nil, apperr.ErrInvalidArgument("alignment requested but no aligner configured")
		}
		bridge := &align.Bridge{
			Aligner: p.Aligner,
			Audio:   localCopy{path: audioPath},
			Transcripts: align.TranscriptFunc(func(context.Context, string) (string, error) {
				return tr.Text, nil
			}),
			Converter: p.Converter,
			Logger:    log,
		}
		areq := *req.Align
		areq.URL = audioPath
		ar, err := bridge.Run(ctx, areq)
		if err != nil {
			return nil, err
		}
		out.Alignment = ar
	}

	log.Info("pipeline finished", zap.Duration("took", time.Since(started)))
	return out, nil
}

// alignExisting aligns a corpus pair left by an earlier run. The transcript
// artifacts in OutputDir are reported when they can still be read.
func (p *Pipeline) alignExisting(ctx context.Context, log *zap.Logger, req Request, audio string) (*Result, error) {
	if p.Aligner == nil {
		return nil, apperr.ErrInvalidArgument("alignment requested but no aligner configured")
	}
	out := &Result{AudioPath: audio, Reused: true}
	if tr, err := transcribe.ReadResult(req.OutputDir); err == nil {
		out.Transcript = tr
	} else {
		log.Debug("no earlier transcript artifacts", zap.String("dir", req.OutputDir), zap.Error(err))
	}
	if req.Markdown && out.Transcript != nil {
		md, err := writeMarkdown(req, audio, out.Transcript)
		if err != nil {
			return nil, err
		}
		out.Markdown = md
	}

	bridge := &align.Bridge{Aligner: p.Aligner, Converter: p.Converter, Logger: log}
	areq := *req.Align
	areq.URL = audio
	ar, err := bridge.Run(ctx, areq)
	if err != nil {
		return nil, err
	}
	out.Alignment = ar
	return out, nil
}

func writeMarkdown(req Request, audioPath string, tr *transcribe.Result) (string, error) {
	return output.WriteMarkdown(req.OutputDir, output.Metadata{
		Title:     filepath.Base(audioPath),
		Source:    req.URL,
		Generated: time.Now(),
	}, tr)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// localCopy serves the already downloaded file to the bridge so the corpus
// is filled without a second download.
type localCopy struct {
	path string
}

func (l localCopy) Probe(ctx context.Context, _ string) (fetch.ProbeResult, error) {
	fi, err := os.Stat(l.path)
	if err != nil {
		return fetch.ProbeResult{}, apperr.ErrFilesystem("stat downloaded audio", l.path, err)
	}
	return fetch.ProbeResult{StatusCode: http.StatusOK, ContentLength: fi.Size()}, nil
}

func (l localCopy) Fetch(ctx context.Context, _ string, destDir string) (string, error) {
	dst := filepath.Join(destDir, filepath.Base(l.path))
	if filepath.Clean(dst) == filepath.Clean(l.path) {
		return dst, nil
	}
	if err := copyFile(l.path, dst); err != nil {
		return "", apperr.ErrFilesystem("copy audio into corpus", dst, err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
