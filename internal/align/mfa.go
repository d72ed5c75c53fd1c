package align

import (
	"context"
	"strings"
)

// Aligner is the forced-alignment tool as seen by the bridge.
type Aligner interface {
	Version(ctx context.Context) (string, error)
	Validate(ctx context.Context, corpusDir, dictionary string) error
	Align(ctx context.Context, corpusDir, dictionary, acousticModel, outDir string) error
}

// MFA drives the Montreal Forced Aligner command line.
type MFA struct {
	Bin    string // default: "mfa"
	Runner Runner // default: ExecRunner
	// ExtraAlignArgs are appended verbatim after the positional arguments
	// of "mfa align", e.g. "--clean".
	ExtraAlignArgs []string
}

func (m MFA) bin() string {
	if m.Bin == "" {
		return "mfa"
	}
	return m.Bin
}

func (m MFA) runner() Runner {
	if m.Runner == nil {
		return ExecRunner{}
	}
	return m.Runner
}

// Version runs "mfa version" and returns its trimmed output.
func (m MFA) Version(ctx context.Context) (string, error) {
	out, err := m.runner().Run(ctx, m.bin(), "version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

func (m MFA) Validate(ctx context.Context, corpusDir, dictionary string) error {
	_, err := m.runner().Run(ctx, m.bin(), "validate", corpusDir, dictionary)
	return err
}

func (m MFA) Align(ctx context.Context, corpusDir, dictionary, acousticModel, outDir string) error {
	args := append([]string{"align", corpusDir, dictionary, acousticModel, outDir}, m.ExtraAlignArgs...)
	_, err := m.runner().Run(ctx, m.bin(), args...)
	return err
}
