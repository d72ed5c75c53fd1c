package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is applied to every variable; most fields also accept the bare
// name (OPENAI_API_KEY, MFA_BIN, ...) as a fallback.
const Prefix = "TAP"

// Config is the run configuration. CLI flags override it field by field.
type Config struct {
	Backend     string        `envconfig:"BACKEND" default:"openai" validate:"oneof=openai local faster-whisper assemblyai cloudflare"`
	Model       string        `envconfig:"MODEL" default:"base" validate:"oneof=tiny base small medium large"`
	Language    string        `envconfig:"SPEECH_LANGUAGE"`
	Diarization string        `envconfig:"DIARIZATION" default:"none" validate:"oneof=none silence"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"2h" validate:"gt=0"`

	OutputDir  string `envconfig:"OUTPUT_DIR" default:"output" validate:"required"`
	CorpusDir  string `envconfig:"CORPUS_DIR" default:"output/test/mfa_corpus" validate:"required"`
	AlignedDir string `envconfig:"ALIGNED_DIR" default:"output/test/mfa_aligned" validate:"required"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"whisper-1"`

	LocalWhisperURL string `envconfig:"LOCAL_WHISPER_URL" default:"http://localhost:8178/v1" validate:"omitempty,url"`

	Python              string `envconfig:"PYTHON" default:"python3"`
	FasterWhisperDevice string `envconfig:"FASTER_WHISPER_DEVICE" default:"auto" validate:"oneof=auto cpu cuda"`

	AssemblyAIAPIKey string `envconfig:"ASSEMBLYAI_API_KEY"`

	CFAccountID string `envconfig:"CF_ACCOUNT_ID"`
	CFAPIToken  string `envconfig:"CF_API_TOKEN"`
	CFModel     string `envconfig:"CF_MODEL" default:"@cf/openai/whisper"`

	StorageEndpoint  string `envconfig:"STORAGE_ENDPOINT" default:"s3.amazonaws.com"`
	StorageAccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `envconfig:"STORAGE_SECRET_KEY"`
	StorageRegion    string `envconfig:"STORAGE_REGION"`
	StorageUseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"true"`

	MFABin           string `envconfig:"MFA_BIN" default:"mfa" validate:"required"`
	MFADictionary    string `envconfig:"MFA_DICTIONARY" default:"english_us_mfa" validate:"required"`
	MFAAcousticModel string `envconfig:"MFA_ACOUSTIC_MODEL" default:"english_mfa" validate:"required"`
	FFmpegBin        string `envconfig:"FFMPEG_BIN" default:"ffmpeg"`

	LogJSON bool `envconfig:"LOG_JSON"`
	Verbose bool `envconfig:"VERBOSE"`
}

// LoadDefaultEnv loads env files from TAP_ENV, ~/.tap.env and ./.env, when
// present. Variables already set in the process are never overridden, so
// earlier files win over later ones.
func LoadDefaultEnv() error {
	var paths []string
	if p := strings.TrimSpace(os.Getenv("TAP_ENV")); p != "" {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".tap.env"))
	}
	paths = append(paths, ".env")

	for _, p := range paths {
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load decodes the environment into a Config. It does not validate; call
// Validate after flags have been applied.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks enums and required paths. Backend credentials are checked
// when the backend is built, so commands that never load a model run without
// them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
