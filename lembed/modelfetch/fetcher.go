// Package modelfetch resolves model identifiers to local asset files,
// downloading vocabulary and ONNX weights on first use. Downloads are
// resumable (HTTP range requests against a .partial file) and renamed
// into place only when complete, so a cache directory never holds a
// truncated asset under its final name.
package modelfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	internal "github.com/venthic/localembed/lembed"
)

// ErrModelNotFound reports a model id the remote host has no assets for.
var ErrModelNotFound = errors.New("model not found")

// Assets locates the on-disk files for one resolved model.
type Assets struct {
	Dir       string
	VocabPath string
	ModelPath string
}

// asset maps a local file name to its path inside the remote repository.
type asset struct {
	local  string
	remote string
}

// HuggingFace repos keep the tokenizer vocabulary at the root and the
// exported ONNX graph under onnx/.
var modelAssets = []asset{
	{local: "vocab.txt", remote: "vocab.txt"},
	{local: "model.onnx", remote: "onnx/model.onnx"},
}

const (
	partialSuffix  = ".partial"
	copyBufferSize = 256 * 1024
)

// Config carries Fetcher construction settings. Zero values fall back
// to the package defaults.
type Config struct {
	// BaseURL is the repository host, e.g. https://huggingface.co.
	BaseURL string
	// Dir is the root directory model subdirectories are created under.
	Dir string
	// Client overrides the HTTP client. The default has no overall
	// timeout; large weight files are bounded by ctx instead.
	Client *http.Client
	// MaxRetries bounds retry attempts per file after the first try.
	MaxRetries uint64
	// InitialBackoff seeds the exponential retry delay.
	InitialBackoff time.Duration
}

// Fetcher downloads and caches model assets. Safe for concurrent use
// across distinct model ids; concurrent Resolve calls for the same id
// should be serialized by the caller.
type Fetcher struct {
	baseURL    string
	dir        string
	client     *http.Client
	maxRetries uint64
	backoff    time.Duration
}

func New(cfg Config) *Fetcher {
	f := &Fetcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		dir:        cfg.Dir,
		client:     cfg.Client,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.InitialBackoff,
	}
	if f.baseURL == "" {
		f.baseURL = internal.DefaultModelBaseURL
	}
	if f.dir == "" {
		f.dir = internal.DefaultModelDir
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.maxRetries == 0 {
		f.maxRetries = 4
	}
	if f.backoff <= 0 {
		f.backoff = 500 * time.Millisecond
	}
	return f
}

// Resolve returns the local asset paths for modelID, downloading any
// file not already cached. A fully cached model resolves without
// touching the network.
func (f *Fetcher) Resolve(ctx context.Context, modelID string) (Assets, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return Assets{}, errors.New("model id is required")
	}

	dir := filepath.Join(f.dir, sanitizeModelID(modelID))
	assets := Assets{
		Dir:       dir,
		VocabPath: filepath.Join(dir, "vocab.txt"),
		ModelPath: filepath.Join(dir, "model.onnx"),
	}

	for _, a := range modelAssets {
		dest := filepath.Join(dir, a.local)
		if fileReady(dest) {
			continue
		}
		url := fmt.Sprintf("%s/%s/resolve/main/%s", f.baseURL, modelID, a.remote)
		if err := f.download(ctx, url, dest); err != nil {
			return Assets{}, fmt.Errorf("fetching %s for %s: %w", a.local, modelID, err)
		}
	}
	return assets, nil
}

// Cached reports whether every asset for modelID is already on disk.
func (f *Fetcher) Cached(modelID string) bool {
	dir := filepath.Join(f.dir, sanitizeModelID(strings.TrimSpace(modelID)))
	for _, a := range modelAssets {
		if !fileReady(filepath.Join(dir, a.local)) {
			return false
		}
	}
	return true
}

// sanitizeModelID flattens a namespaced id ("org/name") into a single
// directory component.
func sanitizeModelID(id string) string {
	return strings.ReplaceAll(id, "/", "--")
}

func fileReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// download fetches url into dest, retrying transient failures and
// resuming a leftover partial file between attempts.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	partial := dest + partialSuffix

	slog.Info("downloading model asset", "url", url, "dest", dest)
	backoff := retry.WithMaxRetries(f.maxRetries, retry.NewExponential(f.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return f.fetchOnce(ctx, url, partial)
	})
	if err != nil {
		return err
	}
	return os.Rename(partial, dest)
}

// fetchOnce performs a single GET attempt against url, appending to the
// partial file when the server honors the range request. Errors worth
// another attempt come back wrapped retryable.
func (f *Fetcher) fetchOnce(ctx context.Context, url, partial string) error {
	var offset int64
	if info, err := os.Stat(partial); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		slog.Debug("resuming model download", "url", url, "offset", offset)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	var out *os.File
	switch resp.StatusCode {
	case http.StatusOK:
		// Full body, either a fresh download or a server that ignored
		// the range header. Start the partial over.
		out, err = os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	case http.StatusPartialContent:
		out, err = os.OpenFile(partial, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file no longer lines up with the remote object.
		// Drop it and try again from zero.
		if rmErr := os.Remove(partial); rmErr != nil && !os.IsNotExist(rmErr) {
			return rmErr
		}
		return retry.RetryableError(fmt.Errorf("server rejected resume offset %d", offset))
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, url)
	case http.StatusTooManyRequests:
		return retry.RetryableError(fmt.Errorf("rate limited fetching %s", url))
	default:
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("server error %d fetching %s", resp.StatusCode, url))
		}
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	if err != nil {
		return err
	}

	if err := copyWithContext(ctx, out, resp.Body); err != nil {
		out.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A truncated stream leaves a longer partial behind; the next
		// attempt resumes from what landed.
		return retry.RetryableError(err)
	}
	return out.Close()
}

// copyWithContext streams src into dst, checking for cancellation
// between buffer-sized reads.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
