package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	backoff "github.com/cenkalti/backoff/v4"
)

// AssemblyAIOptions configures the hosted AssemblyAI backend.
type AssemblyAIOptions struct {
	APIKey string
	// PollInterval is the first wait between status checks; zero means 2s.
	PollInterval time.Duration
}

type assemblyAIBackend struct {
	client   *aai.Client
	model    aai.SpeechModel
	language string
	poll     time.Duration
}

var errStillProcessing = errors.New("transcript still processing")

// NewAssemblyAIBackend uploads local audio and polls until the transcript
// completes. Small sizes use the nano speech model, the rest use best.
func NewAssemblyAIBackend(opts AssemblyAIOptions, size ModelSize, language string) Backend {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &assemblyAIBackend{
		client:   aai.NewClient(opts.APIKey),
		model:    assemblyAIModel(size),
		language: language,
		poll:     poll,
	}
}

func assemblyAIModel(size ModelSize) aai.SpeechModel {
	switch size {
	case ModelTiny, ModelBase:
		return aai.SpeechModel("nano")
	default:
		return aai.SpeechModel("best")
	}
}

func (a *assemblyAIBackend) Name() string { return "assemblyai" }

func (a *assemblyAIBackend) Close() error { return nil }

func (a *assemblyAIBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	uploadURL, err := a.client.Upload(ctx, f)
	if err != nil {
		return Result{}, fmt.Errorf("failed to upload to AssemblyAI: %w", err)
	}

	params := &aai.TranscriptOptionalParams{SpeechModel: a.model}
	if a.language != "" {
		params.LanguageCode = aai.TranscriptLanguageCode(a.language)
	} else {
		params.LanguageDetection = aai.Bool(true)
	}
	submitted, err := a.client.Transcripts.SubmitFromURL(ctx, uploadURL, params)
	if err != nil {
		return Result{}, fmt.Errorf("submit transcript: %w", err)
	}
	if submitted.ID == nil {
		return Result{}, errors.New("AssemblyAI returned no transcript id")
	}
	id := *submitted.ID

	var final aai.Transcript
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.poll
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // ctx bounds the wait

	check := func() error {
		t, err := a.client.Transcripts.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch t.Status {
		case aai.TranscriptStatusCompleted:
			final = t
			return nil
		case aai.TranscriptStatusError:
			msg := "AssemblyAI transcription failed"
			if t.Error != nil {
				msg = fmt.Sprintf("AssemblyAI error: %s", *t.Error)
			}
			return backoff.Permanent(errors.New(msg))
		default:
			return errStillProcessing
		}
	}
	if err := backoff.Retry(check, backoff.WithContext(bo, ctx)); err != nil {
		return Result{}, err
	}

	res := wordsToResult(final.Words)
	if text := strings.TrimSpace(deref(final.Text)); text != "" {
		res.Text = text
	}
	res.Language = string(final.LanguageCode)
	res.Model = string(a.model)
	return res, nil
}

// wordsToResult groups AssemblyAI words (millisecond offsets) into
// sentence segments, closing a segment on terminal punctuation.
func wordsToResult(words []aai.TranscriptWord) Result {
	var res Result
	var cur []string
	var start, end float64
	flush := func() {
		if len(cur) == 0 {
			return
		}
		res.Segments = append(res.Segments, Segment{
			ID:       len(res.Segments),
			StartSec: start,
			EndSec:   end,
			Text:     strings.Join(cur, " "),
		})
		cur = nil
	}
	for _, w := range words {
		text := strings.TrimSpace(deref(w.Text))
		if text == "" {
			continue
		}
		if len(cur) == 0 {
			start = msToSec(w.Start)
		}
		cur = append(cur, text)
		end = msToSec(w.End)
		if strings.ContainsAny(text[len(text)-1:], ".?!") {
			flush()
		}
	}
	flush()
	res.Duration = end
	res.Text = joinSegments(res.Segments)
	return res
}

func msToSec(ms *int64) float64 {
	if ms == nil {
		return 0
	}
	return float64(*ms) / 1000
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
