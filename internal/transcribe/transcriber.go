package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/logging"
)

// Backend names accepted by Load.
const (
	BackendOpenAI        = "openai"
	BackendLocal         = "local"
	BackendFasterWhisper = "faster-whisper"
	BackendAssemblyAI    = "assemblyai"
	BackendCloudflare    = "cloudflare"
)

// Options selects and configures the backend built by Load.
type Options struct {
	Backend  string
	Model    ModelSize
	Language string

	OpenAI        OpenAIOptions
	LocalURL      string
	FasterWhisper FasterWhisperOptions
	AssemblyAI    AssemblyAIOptions
	Cloudflare    CloudflareOptions

	// Labeler, when set, assigns speakers before the result is persisted.
	Labeler Labeler
	Logger  *zap.Logger
}

// Labeler assigns speaker labels to segments in place.
type Labeler interface {
	AssignSpeakers(ctx context.Context, r *Result) error
}

// Transcriber owns one loaded Backend for its whole lifetime.
type Transcriber struct {
	backend Backend
	size    ModelSize
	labeler Labeler
	log     *zap.Logger
}

// Load builds the backend named in opts. Loading cost is paid here, once;
// reuse the returned Transcriber for every file.
func Load(ctx context.Context, opts Options) (*Transcriber, error) {
	log := logging.OrNop(opts.Logger)
	size := opts.Model
	if size == "" {
		size = ModelBase
	}
	if _, err := ParseModelSize(string(size)); err != nil {
		return nil, apperr.ErrInvalidArgument(err.Error())
	}

	if err := checkCredentials(opts); err != nil {
		return nil, err
	}

	var (
		be  Backend
		err error
	)
	started := time.Now()
	switch strings.ToLower(opts.Backend) {
	case BackendOpenAI, "":
		be = NewOpenAIBackend(opts.OpenAI, opts.Language)
	case BackendLocal:
		be = NewLocalBackend(opts.LocalURL, size, opts.Language)
	case BackendFasterWhisper:
		be, err = StartFasterWhisper(ctx, size, opts.Language, opts.FasterWhisper)
	case BackendAssemblyAI:
		be = NewAssemblyAIBackend(opts.AssemblyAI, size, opts.Language)
	case BackendCloudflare:
		be = NewCloudflareBackend(opts.Cloudflare)
	default:
		return nil, apperr.ErrInvalidArgument(fmt.Sprintf("unknown backend %q", opts.Backend))
	}
	if err != nil {
		return nil, apperr.ErrTranscriptionFailed(opts.Backend, fmt.Errorf("load model: %w", err))
	}

	log.Info("speech model loaded",
		zap.String("backend", be.Name()),
		zap.String("model_size", string(size)),
		zap.Duration("took", time.Since(started)),
	)
	return &Transcriber{backend: be, size: size, labeler: opts.Labeler, log: log}, nil
}

// checkCredentials reports the settings a hosted backend cannot start
// without.
func checkCredentials(opts Options) error {
	var missing []string
	switch strings.ToLower(opts.Backend) {
	case BackendOpenAI, "":
		if opts.OpenAI.APIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case BackendAssemblyAI:
		if opts.AssemblyAI.APIKey == "" {
			missing = append(missing, "ASSEMBLYAI_API_KEY")
		}
	case BackendCloudflare:
		if opts.Cloudflare.AccountID == "" {
			missing = append(missing, "CF_ACCOUNT_ID")
		}
		if opts.Cloudflare.APIToken == "" {
			missing = append(missing, "CF_API_TOKEN")
		}
	}
	if len(missing) > 0 {
		return apperr.ErrInvalidArgument(fmt.Sprintf("backend %s needs %s", opts.Backend, strings.Join(missing, ", ")))
	}
	return nil
}

// New wraps an already constructed backend.
func New(be Backend, size ModelSize, labeler Labeler, log *zap.Logger) *Transcriber {
	return &Transcriber{backend: be, size: size, labeler: labeler, log: logging.OrNop(log)}
}

// Transcribe runs inference on audioPath and writes transcript.txt and
// transcript_full.json into destDir, replacing earlier content. A non-nil
// error means no valid result was produced.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, destDir string) (*Result, error) {
	fi, err := os.Stat(audioPath)
	if err != nil {
		return nil, apperr.ErrTranscriptionFailed(t.backend.Name(), fmt.Errorf("read input: %w", err))
	}
	if fi.IsDir() {
		return nil, apperr.ErrTranscriptionFailed(t.backend.Name(), fmt.Errorf("input %s is a directory", audioPath))
	}

	t.log.Info("transcribing", zap.String("audio", audioPath), zap.String("backend", t.backend.Name()))
	started := time.Now()

	res, err := t.backend.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, apperr.ErrTranscriptionFailed(t.backend.Name(), err)
	}
	if res.Text == "" {
		res.Text = joinSegments(res.Segments)
	}
	if res.Segments == nil {
		res.Segments = []Segment{}
	}
	res.Backend = t.backend.Name()
	if res.Model == "" {
		res.Model = string(t.size)
	}

	if t.labeler != nil {
		if err := t.labeler.AssignSpeakers(ctx, &res); err != nil {
			t.log.Warn("speaker labeling skipped", zap.Error(err))
		}
	}

	if err := WriteArtifacts(destDir, &res); err != nil {
		return nil, err
	}

	t.log.Info("transcription done",
		zap.Int("segments", len(res.Segments)),
		zap.Int("chars", len(res.Text)),
		zap.Duration("took", time.Since(started)),
	)
	return &res, nil
}

// Backend returns the loaded backend's name.
func (t *Transcriber) Backend() string { return t.backend.Name() }

// Close releases the loaded model.
func (t *Transcriber) Close() error { return t.backend.Close() }
