// Package provision makes the model artifact available on local disk,
// either by checking a fixed path or by downloading it once.
package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/vishal-chaure/RetinaAI-V2/internal/apperr"
	"github.com/vishal-chaure/RetinaAI-V2/internal/config"
)

// Provider returns the local path of a usable model artifact.
type Provider interface {
	Ensure(ctx context.Context) (string, error)
}

// ErrChecksumMismatch is returned when an artifact's SHA-256 digest differs
// from the configured one.
var ErrChecksumMismatch = errors.New("model checksum mismatch")

// FromConfig picks the provisioning strategy named by cfg.ModelSource.
func FromConfig(cfg *config.Config, logger *zap.Logger) (Provider, error) {
	switch cfg.ModelSource {
	case config.SourceLocal:
		return &Local{Path: cfg.ModelPath, SHA256: cfg.ModelSHA256}, nil
	case config.SourceRemote:
		return NewRemote(cfg.ModelURL, cfg.ModelPath,
			WithSHA256(cfg.ModelSHA256),
			WithMaxRetries(uint64(cfg.ModelDownloadRetries)),
			WithTimeout(cfg.ModelDownloadTimeout),
			WithLogger(logger),
		), nil
	default:
		return nil, apperr.Provisioning("select provider", fmt.Errorf("unknown model source %q", cfg.ModelSource))
	}
}

// Local expects the artifact to already exist at Path.
type Local struct {
	Path   string
	SHA256 string
}

func (l *Local) Ensure(ctx context.Context) (string, error) {
	info, err := os.Stat(l.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperr.Provisioning("check model", fmt.Errorf("model file not found: %s", l.Path))
		}
		return "", apperr.Provisioning("check model", err)
	}
	if info.IsDir() {
		return "", apperr.Provisioning("check model", fmt.Errorf("model path is a directory: %s", l.Path))
	}

	if l.SHA256 != "" {
		sum, err := fileSHA256(l.Path)
		if err != nil {
			return "", apperr.Provisioning("hash model", err)
		}
		if sum != l.SHA256 {
			return "", apperr.Provisioning("verify model", fmt.Errorf("%w: %s has %s, want %s", ErrChecksumMismatch, l.Path, sum, l.SHA256))
		}
	}

	return l.Path, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
