package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

type Config struct {
	Host string
	Port int

	ModelSource          string
	ModelPath            string
	ModelURL             string
	ModelSHA256          string
	ModelDownloadRetries int
	ModelDownloadTimeout time.Duration
	MetadataPath         string
	OnnxRuntimeLib       string

	GradCAMLayer     string
	InferenceWorkers int
	OverlaySize      int
	OverlayAlpha     float64

	MaxBodyBytes   int64
	MaxImagePixels int
	RequestTimeout time.Duration

	LogLevel       string
	LogDevelopment bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first without overriding variables that
// are already set.
func Load() *Config {
	_ = godotenv.Load()

	modelURL := getEnv("MODEL_URL", "")
	defaultSource := SourceLocal
	if modelURL != "" {
		defaultSource = SourceRemote
	}

	return &Config{
		Host:                 getEnv("HOST", ""),
		Port:                 getEnvAsInt("PORT", 5000),
		ModelSource:          strings.ToLower(getEnv("MODEL_SOURCE", defaultSource)),
		ModelPath:            getEnv("MODEL_PATH", filepath.Join("models", "dr_resnet50.onnx")),
		ModelURL:             modelURL,
		ModelSHA256:          strings.ToLower(getEnv("MODEL_SHA256", "")),
		ModelDownloadRetries: getEnvAsInt("MODEL_DOWNLOAD_RETRIES", 3),
		ModelDownloadTimeout: getEnvAsDuration("MODEL_DOWNLOAD_TIMEOUT", 10*time.Minute),
		MetadataPath:         getEnv("METADATA_PATH", filepath.Join("models", "model_metadata.json")),
		OnnxRuntimeLib:       getEnv("ONNXRUNTIME_LIB", ""),
		GradCAMLayer:         getEnv("GRADCAM_LAYER", "conv5_block3_out"),
		InferenceWorkers:     getEnvAsInt("INFERENCE_WORKERS", 1),
		OverlaySize:          getEnvAsInt("OVERLAY_SIZE", 600),
		OverlayAlpha:         getEnvAsFloat("OVERLAY_ALPHA", 0.5),
		MaxBodyBytes:         getEnvAsInt64("MAX_BODY_BYTES", 20<<20),
		MaxImagePixels:       getEnvAsInt("MAX_IMAGE_PIXELS", 50_000_000),
		RequestTimeout:       getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogDevelopment:       getEnvAsBool("LOG_DEVELOPMENT", false),
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports every setting that would prevent the server from starting.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.ModelSource {
	case SourceLocal:
	case SourceRemote:
		if c.ModelURL == "" {
			errs = append(errs, errors.New("MODEL_URL is required when MODEL_SOURCE=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("MODEL_SOURCE must be %q or %q, got %q", SourceLocal, SourceRemote, c.ModelSource))
	}
	if c.ModelPath == "" {
		errs = append(errs, errors.New("MODEL_PATH is empty"))
	}
	if c.ModelSHA256 != "" {
		if sum, err := hex.DecodeString(c.ModelSHA256); err != nil || len(sum) != sha256.Size {
			errs = append(errs, fmt.Errorf("MODEL_SHA256 must be 64 hex characters, got %q", c.ModelSHA256))
		}
	}
	if c.ModelDownloadRetries < 0 {
		errs = append(errs, fmt.Errorf("MODEL_DOWNLOAD_RETRIES must not be negative, got %d", c.ModelDownloadRetries))
	}
	if strings.TrimSpace(c.GradCAMLayer) == "" {
		errs = append(errs, errors.New("GRADCAM_LAYER is empty"))
	}
	if c.InferenceWorkers < 1 {
		errs = append(errs, fmt.Errorf("INFERENCE_WORKERS must be at least 1, got %d", c.InferenceWorkers))
	}
	if c.OverlaySize < 1 {
		errs = append(errs, fmt.Errorf("OVERLAY_SIZE must be positive, got %d", c.OverlaySize))
	}
	if math.IsNaN(c.OverlayAlpha) || c.OverlayAlpha < 0 || c.OverlayAlpha > 1 {
		errs = append(errs, fmt.Errorf("OVERLAY_ALPHA must be within [0,1], got %g", c.OverlayAlpha))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
