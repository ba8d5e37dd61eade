package config

import (
	"math"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"HOST", "PORT", "MODEL_SOURCE", "MODEL_PATH", "MODEL_URL", "MODEL_SHA256",
	"MODEL_DOWNLOAD_RETRIES", "MODEL_DOWNLOAD_TIMEOUT", "METADATA_PATH",
	"ONNXRUNTIME_LIB", "GRADCAM_LAYER", "INFERENCE_WORKERS", "OVERLAY_SIZE",
	"OVERLAY_ALPHA", "MAX_BODY_BYTES", "MAX_IMAGE_PIXELS", "REQUEST_TIMEOUT",
	"LOG_LEVEL", "LOG_DEVELOPMENT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Port != 5000 {
		t.Errorf("Expected port 5000, got %d", cfg.Port)
	}
	if cfg.ModelSource != SourceLocal {
		t.Errorf("Expected local model source without MODEL_URL, got %q", cfg.ModelSource)
	}
	if cfg.GradCAMLayer != "conv5_block3_out" {
		t.Errorf("Expected default Grad-CAM layer, got %q", cfg.GradCAMLayer)
	}
	if cfg.InferenceWorkers != 1 {
		t.Errorf("Expected 1 inference worker, got %d", cfg.InferenceWorkers)
	}
	if cfg.OverlayAlpha != 0.5 {
		t.Errorf("Expected overlay alpha 0.5, got %g", cfg.OverlayAlpha)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("Expected 60s request timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxImagePixels != 50_000_000 {
		t.Errorf("Expected 50M pixel limit, got %d", cfg.MaxImagePixels)
	}
	if cfg.Addr() != ":5000" {
		t.Errorf("Expected addr :5000, got %q", cfg.Addr())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "8081")
	t.Setenv("MODEL_URL", "https://example.com/model.onnx")
	t.Setenv("INFERENCE_WORKERS", "4")
	t.Setenv("REQUEST_TIMEOUT", "15")
	t.Setenv("MODEL_DOWNLOAD_TIMEOUT", "2m")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg := Load()

	if cfg.ModelSource != SourceRemote {
		t.Errorf("Expected remote model source when MODEL_URL is set, got %q", cfg.ModelSource)
	}
	if cfg.Addr() != "127.0.0.1:8081" {
		t.Errorf("Expected addr 127.0.0.1:8081, got %q", cfg.Addr())
	}
	if cfg.InferenceWorkers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.InferenceWorkers)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("Expected bare seconds to parse, got %v", cfg.RequestTimeout)
	}
	if cfg.ModelDownloadTimeout != 2*time.Minute {
		t.Errorf("Expected 2m download timeout, got %v", cfg.ModelDownloadTimeout)
	}
	if cfg.LogLevel != "debug" || !cfg.LogDevelopment {
		t.Errorf("Expected debug development logging, got %q/%v", cfg.LogLevel, cfg.LogDevelopment)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "abc")
	t.Setenv("OVERLAY_ALPHA", "half")
	t.Setenv("REQUEST_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Port != 5000 {
		t.Errorf("Expected fallback port 5000, got %d", cfg.Port)
	}
	if cfg.OverlayAlpha != 0.5 {
		t.Errorf("Expected fallback alpha 0.5, got %g", cfg.OverlayAlpha)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("Expected fallback timeout, got %v", cfg.RequestTimeout)
	}
}

func TestValidate_AcceptsHexChecksum(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_SHA256", strings.Repeat("AB", 32))

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected upper-case hex digest to validate, got %v", err)
	}
}

func TestLoad_NaNAlphaFailsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("OVERLAY_ALPHA", "NaN")

	err := Load().Validate()
	if err == nil || !strings.Contains(err.Error(), "OVERLAY_ALPHA") {
		t.Errorf("Expected OVERLAY_ALPHA error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "remote without url",
			mutate:  func(c *Config) { c.ModelSource = SourceRemote },
			wantErr: "MODEL_URL is required",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.ModelSource = "s3" },
			wantErr: "MODEL_SOURCE must be",
		},
		{
			name:    "short checksum",
			mutate:  func(c *Config) { c.ModelSHA256 = "abc" },
			wantErr: "MODEL_SHA256",
		},
		{
			name:    "non-hex checksum",
			mutate:  func(c *Config) { c.ModelSHA256 = strings.Repeat("zz", 32) },
			wantErr: "MODEL_SHA256",
		},
		{
			name:    "empty layer",
			mutate:  func(c *Config) { c.GradCAMLayer = " " },
			wantErr: "GRADCAM_LAYER",
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.InferenceWorkers = 0 },
			wantErr: "INFERENCE_WORKERS",
		},
		{
			name:    "alpha out of range",
			mutate:  func(c *Config) { c.OverlayAlpha = 1.5 },
			wantErr: "OVERLAY_ALPHA",
		},
		{
			name:    "NaN alpha",
			mutate:  func(c *Config) { c.OverlayAlpha = math.NaN() },
			wantErr: "OVERLAY_ALPHA",
		},
		{
			name:    "no pixel limit",
			mutate:  func(c *Config) { c.MaxImagePixels = 0 },
			wantErr: "MAX_IMAGE_PIXELS",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
