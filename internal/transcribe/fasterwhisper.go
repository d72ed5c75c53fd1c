package transcribe

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

//go:embed assets/faster_whisper.py
var fwScript []byte

// FasterWhisperOptions configures the Python worker.
type FasterWhisperOptions struct {
	Python string // default: "python3"
	Device string // auto|cpu|cuda
	// StartTimeout bounds model loading; zero means 10 minutes.
	StartTimeout time.Duration
}

// fasterWhisperBackend keeps one Python process alive with the model in
// memory and exchanges one JSON line per request.
type fasterWhisperBackend struct {
	model    ModelSize
	language string

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	lines      *bufio.Scanner
	stderr     *syncBuffer
	scriptPath string
	broken     error
}

type fwRequest struct {
	Audio    string `json:"audio"`
	Language string `json:"language,omitempty"`
}

type fwResponse struct {
	Ready    bool    `json:"ready"`
	Error    string  `json:"error"`
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// StartFasterWhisper writes the embedded helper to a temp file, starts it
// and waits for the model to load.
func StartFasterWhisper(ctx context.Context, size ModelSize, language string, opts FasterWhisperOptions) (Backend, error) {
	py := opts.Python
	if py == "" {
		py = "python3"
	}
	device := opts.Device
	if device == "" {
		device = "auto"
	}
	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	f, err := os.CreateTemp("", "tap_faster_whisper_*.py")
	if err != nil {
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	scriptPath := f.Name()
	if _, err := f.Write(fwScript); err != nil {
		f.Close()
		os.Remove(scriptPath)
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	f.Close()

	// The process outlives ctx, so it is not bound to it.
	cmd := exec.Command(py, "-u", scriptPath, "--model", string(size), "--device", device)
	cmd.Env = os.Environ()
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(scriptPath)
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(scriptPath)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		os.Remove(scriptPath)
		return nil, fmt.Errorf("start %s: %w", py, err)
	}

	lines := bufio.NewScanner(stdout)
	lines.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	b := &fasterWhisperBackend{
		model:      size,
		language:   language,
		cmd:        cmd,
		stdin:      stdin,
		lines:      lines,
		stderr:     stderr,
		scriptPath: scriptPath,
	}

	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := b.readResponse(startCtx)
	if err == nil && resp.Error != "" {
		err = errors.New(resp.Error)
	}
	if err == nil && !resp.Ready {
		err = errors.New("helper did not report ready")
	}
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("faster-whisper: %w", err)
	}
	return b, nil
}

func (b *fasterWhisperBackend) Name() string { return "faster-whisper" }

func (b *fasterWhisperBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken != nil {
		return Result{}, fmt.Errorf("faster-whisper worker unusable: %w", b.broken)
	}

	req, err := json.Marshal(fwRequest{Audio: audioPath, Language: b.language})
	if err != nil {
		return Result{}, err
	}
	if _, err := b.stdin.Write(append(req, '\n')); err != nil {
		b.broken = err
		return Result{}, fmt.Errorf("send request: %w", err)
	}

	resp, err := b.readResponse(ctx)
	if err != nil {
		return Result{}, err
	}
	if resp.Error != "" {
		return Result{}, fmt.Errorf("faster-whisper failed: %s", resp.Error)
	}

	res := Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Model:    string(b.model),
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	for _, s := range resp.Segments {
		res.Segments = append(res.Segments, Segment{ID: s.ID, StartSec: s.Start, EndSec: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return res, nil
}

// readResponse waits for one stdout line. If ctx ends first the worker is
// killed, since its output stream can no longer be trusted.
func (b *fasterWhisperBackend) readResponse(ctx context.Context) (fwResponse, error) {
	type lineResult struct {
		line []byte
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		if b.lines.Scan() {
			ch <- lineResult{line: append([]byte(nil), b.lines.Bytes()...)}
			return
		}
		err := b.lines.Err()
		if err == nil {
			err = io.EOF
		}
		ch <- lineResult{err: err}
	}()

	select {
	case <-ctx.Done():
		b.broken = ctx.Err()
		b.cmd.Process.Kill()
		<-ch
		return fwResponse{}, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			b.broken = r.err
			return fwResponse{}, fmt.Errorf("read helper output: %w: %s", r.err, strings.TrimSpace(b.stderr.String()))
		}
		var resp fwResponse
		if err := json.Unmarshal(r.line, &resp); err != nil {
			return fwResponse{}, fmt.Errorf("parse helper output: %w\n%s", err, string(r.line))
		}
		return resp, nil
	}
}

// Close stops the worker and removes the helper script.
func (b *fasterWhisperBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil {
		return nil
	}
	b.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		b.cmd.Process.Kill()
		<-done
	}
	b.cmd = nil
	os.Remove(b.scriptPath)
	return nil
}

// syncBuffer collects stderr written by the exec copier goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
