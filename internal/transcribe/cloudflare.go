package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// CloudflareOptions configures Workers AI.
type CloudflareOptions struct {
	AccountID string
	APIToken  string
	Model     string // default: "@cf/openai/whisper"
	BaseURL   string // default: "https://api.cloudflare.com/client/v4"
}

// Cloudflare Workers AI backend.
// POST {base}/accounts/{account_id}/ai/run/{model} with the raw audio bytes
// and a bearer API token.
type cloudflareBackend struct {
	opts CloudflareOptions
	hc   *http.Client
}

func NewCloudflareBackend(opts CloudflareOptions) Backend {
	if opts.Model == "" {
		opts.Model = "@cf/openai/whisper"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.cloudflare.com/client/v4"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &cloudflareBackend{opts: opts, hc: &http.Client{Timeout: 60 * time.Minute}}
}

type cfResp struct {
	Success bool            `json:"success"`
	Errors  []any           `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type cfWhisperResult struct {
	Text  string `json:"text"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func (c *cloudflareBackend) Name() string { return "cloudflare" }

func (c *cloudflareBackend) Close() error { return nil }

func (c *cloudflareBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.opts.BaseURL, c.opts.AccountID, c.opts.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("cloudflare http %d: %s", resp.StatusCode, string(b))
	}
	var cr cfResp
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Result{}, err
	}
	if !cr.Success {
		return Result{}, fmt.Errorf("cloudflare response not successful: %v", cr.Errors)
	}
	var wr cfWhisperResult
	if err := json.Unmarshal(cr.Result, &wr); err != nil {
		return Result{}, fmt.Errorf("cloudflare unexpected result: %w", err)
	}

	// Workers AI whisper returns word timings only; the whole utterance
	// becomes one segment spanning them.
	text := strings.TrimSpace(wr.Text)
	seg := Segment{Text: text}
	if n := len(wr.Words); n > 0 {
		seg.StartSec = wr.Words[0].Start
		seg.EndSec = wr.Words[n-1].End
	}
	return Result{
		Text:     text,
		Duration: seg.EndSec,
		Model:    c.opts.Model,
		Segments: []Segment{seg},
	}, nil
}
