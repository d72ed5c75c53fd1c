package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/config"
	"github.com/zudsniper/transcribe-align/internal/logging"
)

const usage = `usage: tap <command> [flags]

commands:
  transcribe  download a recording and write transcript.txt / transcript_full.json
  align       prepare an aligner corpus entry and run mfa validate + align
  run         transcribe, then align the same recording
  check       probe, download and transcribe once as an environment smoke test

run "tap <command> -h" for flags`

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// options are the per-invocation flags that have no config counterpart.
type options struct {
	url        string
	base       string
	ext        string
	fallback   string
	markdown   bool
	noProgress bool
	mfaClean   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func runMain(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprintln(stderr, usage)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}
	cmd := args[0]
	switch cmd {
	case "transcribe", "align", "run", "check":
	default:
		fmt.Fprintf(stderr, "tap: unknown command %q\n\n%s\n", cmd, usage)
		return exitUsage
	}

	if err := config.LoadDefaultEnv(); err != nil {
		fmt.Fprintf(stderr, "tap: %v\n", err)
		return exitUsage
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "tap: %v\n", err)
		return exitUsage
	}

	var opts options
	fs := flag.NewFlagSet("tap "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, cmd, cfg, &opts)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.url == "" {
		fmt.Fprintf(stderr, "tap %s: missing -url\n", cmd)
		fs.Usage()
		return exitUsage
	}
	if (cmd == "align" || cmd == "run") && opts.base == "" {
		fmt.Fprintf(stderr, "tap %s: missing -base\n", cmd)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "tap: %v\n", err)
		return exitUsage
	}

	log, err := logging.New(logging.Options{Verbose: cfg.Verbose, JSON: cfg.LogJSON, Out: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "tap: build logger: %v\n", err)
		return exitFailure
	}
	defer log.Sync()
	log = log.With(zap.String("run_id", uuid.NewString()), zap.String("command", cmd))

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	a := &app{cfg: cfg, opts: opts, log: log}
	defer a.close()

	switch cmd {
	case "transcribe":
		err = a.transcribe(ctx)
	case "align":
		err = a.align(ctx)
	case "run":
		err = a.run(ctx)
	case "check":
		err = a.check(ctx)
	}
	if err != nil {
		code := apperr.CodeOf(err)
		log.Error(cmd+" failed", zap.String("code", code.String()), zap.Error(err))
		if code == apperr.CodeInvalidArgument {
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}

func bindFlags(fs *flag.FlagSet, cmd string, cfg *config.Config, o *options) {
	fs.StringVar(&o.url, "url", "", "audio URL (http, https or s3://bucket/key)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall deadline for the run")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")
	fs.BoolVar(&o.noProgress, "no-progress", false, "hide the download progress bar")

	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "transcription backend: openai|local|faster-whisper|assemblyai|cloudflare")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "model size: tiny|base|small|medium|large")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "spoken language code; empty lets the model detect it")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "directory for the download and transcript files")
	fs.StringVar(&cfg.Diarization, "diarization", cfg.Diarization, "speaker labels: none|silence")
	if cmd == "transcribe" || cmd == "run" {
		fs.BoolVar(&o.markdown, "markdown", false, "also write transcript.md")
	}
	if cmd == "align" || cmd == "run" {
		fs.StringVar(&o.base, "base", "", "corpus base name shared by the audio, transcript and TextGrid")
		fs.StringVar(&o.ext, "ext", "mp3", "corpus audio extension; wav converts with ffmpeg")
		fs.StringVar(&cfg.CorpusDir, "corpus", cfg.CorpusDir, "aligner corpus directory")
		fs.StringVar(&cfg.AlignedDir, "aligned", cfg.AlignedDir, "aligner output directory")
		fs.StringVar(&cfg.MFADictionary, "dict", cfg.MFADictionary, "pronunciation dictionary name or path")
		fs.StringVar(&cfg.MFAAcousticModel, "acoustic", cfg.MFAAcousticModel, "acoustic model name or path")
		fs.StringVar(&cfg.MFABin, "mfa", cfg.MFABin, "mfa executable")
		fs.BoolVar(&o.mfaClean, "clean", false, "pass --clean to mfa align")
		fs.StringVar(&o.fallback, "fallback-transcript", "", "text to use when transcription fails (testing only)")
	}
}
