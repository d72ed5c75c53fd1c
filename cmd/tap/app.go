package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/zudsniper/transcribe-align/internal/align"
	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/config"
	"github.com/zudsniper/transcribe-align/internal/diarize"
	"github.com/zudsniper/transcribe-align/internal/fetch"
	"github.com/zudsniper/transcribe-align/internal/media"
	"github.com/zudsniper/transcribe-align/internal/pipeline"
	"github.com/zudsniper/transcribe-align/internal/transcribe"
)

// app wires the configured components for one command. The model is loaded
// on first use so align runs over an existing corpus never load it.
type app struct {
	cfg  *config.Config
	opts options
	log  *zap.Logger

	tr *transcribe.Transcriber
}

func (a *app) close() {
	if a.tr != nil {
		if err := a.tr.Close(); err != nil {
			a.log.Warn("closing model", zap.Error(err))
		}
	}
}

func (a *app) fetcher() (*fetch.Fetcher, error) {
	opts := []fetch.Option{fetch.WithLogger(a.log)}
	if a.opts.noProgress {
		opts = append(opts, fetch.WithProgress(fetch.NoProgress))
	}
	if strings.HasPrefix(strings.ToLower(a.opts.url), "s3://") {
		store, err := fetch.NewMinIOStore(fetch.S3Config{
			Endpoint:        a.cfg.StorageEndpoint,
			AccessKeyID:     a.cfg.StorageAccessKey,
			SecretAccessKey: a.cfg.StorageSecretKey,
			Region:          a.cfg.StorageRegion,
			UseSSL:          a.cfg.StorageUseSSL,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, fetch.WithObjectStore(store))
	}
	return fetch.New(opts...), nil
}

func (a *app) transcriber(ctx context.Context) (*transcribe.Transcriber, error) {
	if a.tr != nil {
		return a.tr, nil
	}
	labeler, err := diarize.New(a.cfg.Diarization)
	if err != nil {
		return nil, err
	}
	tr, err := transcribe.Load(ctx, transcribe.Options{
		Backend:  a.cfg.Backend,
		Model:    transcribe.ModelSize(a.cfg.Model),
		Language: a.cfg.Language,
		OpenAI: transcribe.OpenAIOptions{
			APIKey:  a.cfg.OpenAIAPIKey,
			BaseURL: a.cfg.OpenAIBaseURL,
			Model:   a.cfg.OpenAIModel,
		},
		LocalURL: a.cfg.LocalWhisperURL,
		FasterWhisper: transcribe.FasterWhisperOptions{
			Python: a.cfg.Python,
			Device: a.cfg.FasterWhisperDevice,
		},
		AssemblyAI: transcribe.AssemblyAIOptions{APIKey: a.cfg.AssemblyAIAPIKey},
		Cloudflare: transcribe.CloudflareOptions{
			AccountID: a.cfg.CFAccountID,
			APIToken:  a.cfg.CFAPIToken,
			Model:     a.cfg.CFModel,
		},
		Labeler: labeler,
		Logger:  a.log,
	})
	if err != nil {
		return nil, err
	}
	a.tr = tr
	return tr, nil
}

func (a *app) aligner() align.MFA {
	m := align.MFA{Bin: a.cfg.MFABin}
	if a.opts.mfaClean {
		m.ExtraAlignArgs = []string{"--clean"}
	}
	return m
}

func (a *app) alignRequest() align.Request {
	return align.Request{
		URL:           a.opts.url,
		BaseName:      a.opts.base,
		CorpusDir:     a.cfg.CorpusDir,
		AlignedDir:    a.cfg.AlignedDir,
		Dictionary:    a.cfg.MFADictionary,
		AcousticModel: a.cfg.MFAAcousticModel,
		Ext:           a.opts.ext,
		FallbackText:  a.opts.fallback,
	}
}

func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	f, err := a.fetcher()
	if err != nil {
		return nil, err
	}
	tr, err := a.transcriber(ctx)
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		Fetcher:     f,
		Transcriber: tr,
		Aligner:     a.aligner(),
		Converter:   media.FFmpeg{Bin: a.cfg.FFmpegBin},
		Logger:      a.log,
	}, nil
}

func (a *app) transcribe(ctx context.Context) error {
	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, pipeline.Request{URL: a.opts.url, OutputDir: a.cfg.OutputDir, Markdown: a.opts.markdown})
	if err != nil {
		return err
	}
	a.log.Info("transcript written",
		zap.String("dir", a.cfg.OutputDir),
		zap.String("backend", a.tr.Backend()),
		zap.Int("segments", len(res.Transcript.Segments)),
	)
	return nil
}

func (a *app) run(ctx context.Context) error {
	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	req := a.alignRequest()
	res, err := p.Run(ctx, pipeline.Request{
		URL:       a.opts.url,
		OutputDir: a.cfg.OutputDir,
		Markdown:  a.opts.markdown,
		Align:     &req,
	})
	if err != nil {
		return err
	}
	a.log.Info("aligned",
		zap.String("textgrid", res.Alignment.TextGridPath),
		zap.Bool("reused_corpus", res.Reused),
	)
	return nil
}

func (a *app) align(ctx context.Context) error {
	f, err := a.fetcher()
	if err != nil {
		return err
	}
	b := &align.Bridge{
		Aligner: a.aligner(),
		Audio:   f,
		Transcripts: align.TranscriptFunc(func(ctx context.Context, audioPath string) (string, error) {
			tr, err := a.transcriber(ctx)
			if err != nil {
				return "", err
			}
			res, err := tr.Transcribe(ctx, audioPath, a.cfg.OutputDir)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		}),
		Converter: media.FFmpeg{Bin: a.cfg.FFmpegBin},
		Logger:    a.log,
	}
	res, err := b.Run(ctx, a.alignRequest())
	if err != nil {
		return err
	}
	if res.UsedFallback {
		a.log.Warn("alignment used the fallback transcript")
	}
	a.log.Info("aligned", zap.String("textgrid", res.TextGridPath))
	return nil
}

// check exercises every stage up to transcription once and reports what it
// saw. A transcript with no words fails the check.
func (a *app) check(ctx context.Context) error {
	f, err := a.fetcher()
	if err != nil {
		return err
	}
	probe, err := f.Probe(ctx, a.opts.url)
	if err != nil {
		return err
	}
	a.log.Info("source reachable",
		zap.Int("status", probe.StatusCode),
		zap.String("size", humanize.IBytes(uint64(max(probe.ContentLength, 0)))),
	)

	audio, err := f.Fetch(ctx, a.opts.url, a.cfg.OutputDir)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(audio); err == nil {
		a.log.Info("downloaded", zap.String("path", audio), zap.String("size", humanize.IBytes(uint64(fi.Size()))))
	}

	tr, err := a.transcriber(ctx)
	if err != nil {
		return err
	}
	res, err := tr.Transcribe(ctx, audio, a.cfg.OutputDir)
	if err != nil {
		return err
	}
	if strings.TrimSpace(res.Text) == "" {
		return apperr.ErrTranscriptionFailed(tr.Backend(), errors.New("transcript is empty"))
	}
	words := strings.Fields(res.Text)
	if len(words) > 10 {
		words = words[:10]
	}
	a.log.Info("check passed",
		zap.String("backend", res.Backend),
		zap.Int("segments", len(res.Segments)),
		zap.String("preview", strings.Join(words, " ")),
	)
	return nil
}
