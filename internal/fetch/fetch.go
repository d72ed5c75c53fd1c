// Package fetch downloads remote audio resources to local storage.
//
// http(s) URLs are streamed with a plain GET; s3://bucket/key URLs are read
// through an ObjectStore. In both cases the body is written in fixed-size
// chunks and the cumulative byte count is reported against the declared
// total.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/zudsniper/transcribe-align/internal/apperr"
	"github.com/zudsniper/transcribe-align/internal/logging"
)

const (
	// ChunkSize is the copy buffer used for every download.
	ChunkSize = 8192
	// DefaultFilename is used when the URL path has no usable last element.
	DefaultFilename = "audio.mp3"
)

// ObjectStore reads objects addressed by s3://bucket/key URLs.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	StatObject(ctx context.Context, bucket, key string) (int64, error)
}

// ProbeResult is what a reachability check learned about a resource.
type ProbeResult struct {
	StatusCode    int
	ContentLength int64
}

// Fetcher downloads audio resources. The zero value is not usable; call New.
type Fetcher struct {
	client   *http.Client
	store    ObjectStore
	progress ProgressFactory
	log      *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithObjectStore enables s3:// URLs.
func WithObjectStore(s ObjectStore) Option { return func(f *Fetcher) { f.store = s } }

func WithProgress(p ProgressFactory) Option { return func(f *Fetcher) { f.progress = p } }

func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.log = l } }

// New returns a Fetcher with a progress bar on stderr and no object store.
// Requests are bounded by the caller's context only.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		progress: BarProgress,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = logging.OrNop(f.log)
	if f.progress == nil {
		f.progress = NoProgress
	}
	return f
}

// Fetch downloads rawURL into destDir and returns the local path. destDir is
// created with its parents if missing. The file is named after the last
// element of the URL path; query strings are ignored.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", apperr.ErrFilesystem("create destination directory", destDir, err)
	}

	name := FilenameFromURL(rawURL)
	dest := filepath.Join(destDir, name)

	body, total, err := f.open(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	f.log.Info("downloading audio",
		zap.String("url", rawURL),
		zap.String("dest", dest),
		zap.Int64("content_length", total),
	)

	written, err := f.writeFile(dest, body, total, name)
	if err != nil {
		os.Remove(dest)
		if apperr.CodeOf(err) == apperr.CodeUnknown {
			err = apperr.ErrDownloadFailed(rawURL, err)
		}
		return "", err
	}
	if total > 0 && written != total {
		os.Remove(dest)
		return "", apperr.ErrDownloadFailed(rawURL,
			fmt.Errorf("short body: got %d of %d bytes", written, total))
	}

	f.log.Info("download complete",
		zap.String("path", dest),
		zap.String("size", humanize.Bytes(uint64(written))),
	)
	return dest, nil
}

func (f *Fetcher) writeFile(dest string, body io.Reader, total int64, label string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, apperr.ErrFilesystem("create file", dest, err)
	}
	defer out.Close()

	bar := f.progress(total, label)
	defer bar.Finish()

	buf := make([]byte, ChunkSize)
	written, err := io.CopyBuffer(io.MultiWriter(out, bar), body, buf)
	if err != nil {
		return written, err
	}
	if err := out.Close(); err != nil {
		return written, apperr.ErrFilesystem("close file", dest, err)
	}
	return written, nil
}

// open returns the body and declared length (0 when unknown).
func (f *Fetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, apperr.ErrInvalidArgument("invalid URL").WithDetail("url", rawURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		if f.store == nil {
			return nil, 0, apperr.ErrInvalidArgument("s3 URL given but no object store is configured").WithDetail("url", rawURL)
		}
		bucket, key := splitS3(u)
		body, size, err := f.store.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, 0, apperr.ErrDownloadFailed(rawURL, err)
		}
		if size < 0 {
			size = 0
		}
		return body, size, nil
	case "http", "https":
	default:
		return nil, 0, apperr.ErrInvalidArgument("unsupported URL scheme").WithDetail("url", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, apperr.ErrDownloadFailed(rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, apperr.ErrDownloadFailed(rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, 0, apperr.ErrUnexpectedStatus(rawURL, resp.StatusCode)
	}
	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	return resp.Body, total, nil
}

// Probe checks that rawURL is reachable without downloading it. Anything but
// 200 OK is reported as a transport error.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (ProbeResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ProbeResult{}, apperr.ErrInvalidArgument("invalid URL").WithDetail("url", rawURL)
	}

	if strings.EqualFold(u.Scheme, "s3") {
		if f.store == nil {
			return ProbeResult{}, apperr.ErrInvalidArgument("s3 URL given but no object store is configured").WithDetail("url", rawURL)
		}
		bucket, key := splitS3(u)
		size, err := f.store.StatObject(ctx, bucket, key)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) {
				return ProbeResult{StatusCode: se.StatusCode}, apperr.ErrUnexpectedStatus(rawURL, se.StatusCode)
			}
			return ProbeResult{}, apperr.ErrDownloadFailed(rawURL, err)
		}
		return ProbeResult{StatusCode: http.StatusOK, ContentLength: size}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return ProbeResult{}, apperr.ErrDownloadFailed(rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return ProbeResult{}, apperr.ErrDownloadFailed(rawURL, err)
	}
	resp.Body.Close()

	res := ProbeResult{StatusCode: resp.StatusCode, ContentLength: resp.ContentLength}
	if res.ContentLength < 0 {
		res.ContentLength = 0
	}
	if resp.StatusCode != http.StatusOK {
		return res, apperr.ErrUnexpectedStatus(rawURL, resp.StatusCode)
	}
	return res, nil
}

// FilenameFromURL derives a local file name from the URL path, dropping any
// query string. It falls back to DefaultFilename.
func FilenameFromURL(rawURL string) string {
	var p string
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else {
		p, _, _ = strings.Cut(rawURL, "?")
	}
	name := path.Base(p)
	switch name {
	case "", ".", "/", "..":
		return DefaultFilename
	}
	return name
}

func splitS3(u *url.URL) (bucket, key string) {
	return u.Host, strings.TrimPrefix(u.Path, "/")
}
