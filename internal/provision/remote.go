package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vishal-chaure/RetinaAI-V2/internal/apperr"
)

// Option configures a Remote provider.
type Option func(r *Remote)

func WithSHA256(sum string) Option {
	return func(r *Remote) {
		r.sha256 = sum
	}
}

func WithMaxRetries(n uint64) Option {
	return func(r *Remote) {
		r.maxRetries = n
	}
}

// WithTimeout bounds the whole provisioning call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(r *Remote) {
		r.timeout = d
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *Remote) {
		r.client = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Remote) {
		r.logger = l
	}
}

// WithBackOff replaces the exponential retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(r *Remote) {
		r.newBackOff = newBackOff
	}
}

// Remote downloads the artifact from url into path the first time it is
// needed. The file only appears at path once the body has been fully
// written and, when a digest is configured, verified.
type Remote struct {
	url        string
	path       string
	sha256     string
	maxRetries uint64
	timeout    time.Duration
	client     *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff

	mu sync.Mutex
}

func NewRemote(url, path string, opts ...Option) *Remote {
	r := &Remote{
		url:        url,
		path:       path,
		maxRetries: 3,
		client:     http.DefaultClient,
		logger:     zap.NewNop(),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("provision")
	return r
}

func (r *Remote) Ensure(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.present()
	if err != nil {
		return "", apperr.Provisioning("check model", err)
	}
	if ok {
		r.logger.Debug("model already present", zap.String("path", r.path))
		return r.path, nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return "", apperr.Provisioning("create model directory", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Info("downloading model", zap.String("url", r.url), zap.String("path", r.path))
	start := time.Now()

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("model download failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(func() error { return r.download(ctx) }, b, notify); err != nil {
		return "", apperr.Provisioning("download model", err)
	}

	r.logger.Info("model downloaded", zap.String("path", r.path), zap.Duration("took", time.Since(start)))
	return r.path, nil
}

// present reports whether a usable artifact is already at path. A file
// whose digest disagrees with the configured one is not usable.
func (r *Remote) present() (bool, error) {
	info, err := os.Stat(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("model path is a directory: %s", r.path)
	}
	if r.sha256 == "" {
		return true, nil
	}

	sum, err := fileSHA256(r.path)
	if err != nil {
		return false, err
	}
	if sum != r.sha256 {
		r.logger.Warn("model checksum mismatch, downloading again",
			zap.String("path", r.path), zap.String("got", sum), zap.String("want", r.sha256))
		return false, nil
	}
	return true, nil
}

func (r *Remote) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		err := fmt.Errorf("GET %s: unexpected status %s", r.url, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.part")
	if err != nil {
		return backoff.Permanent(err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if err != nil {
		return fmt.Errorf("read model body: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("read model body: got %d bytes, want %d", n, resp.ContentLength)
	}
	if r.sha256 != "" {
		if sum := hex.EncodeToString(h.Sum(nil)); sum != r.sha256 {
			return fmt.Errorf("%w: downloaded %s, want %s", ErrChecksumMismatch, sum, r.sha256)
		}
	}

	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		committed = true
		return backoff.Permanent(err)
	}
	committed = true
	return nil
}
