package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vishal-chaure/RetinaAI-V2/internal/config"
	"github.com/vishal-chaure/RetinaAI-V2/internal/handlers"
	"github.com/vishal-chaure/RetinaAI-V2/internal/imaging"
	"github.com/vishal-chaure/RetinaAI-V2/internal/logging"
	"github.com/vishal-chaure/RetinaAI-V2/internal/model"
	"github.com/vishal-chaure/RetinaAI-V2/internal/provision"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := provision.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	modelPath, err := provider.Ensure(ctx)
	if err != nil {
		return err
	}

	meta, err := model.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return err
	}

	logger.Info("loading model", zap.String("path", modelPath), zap.String("source", cfg.ModelSource))

	modelServer, err := model.NewServer(modelPath, meta, model.Options{
		LibraryPath: cfg.OnnxRuntimeLib,
		Workers:     cfg.InferenceWorkers,
		TargetLayer: cfg.GradCAMLayer,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer modelServer.Close()

	handler := handlers.NewHandler(modelServer, imaging.NewRenderer(cfg.OverlaySize, cfg.OverlayAlpha), logger, handlers.Options{
		Classes:        meta.Classes,
		Workers:        modelServer.Workers(),
		MaxBodyBytes:   cfg.MaxBodyBytes,
		MaxImagePixels: cfg.MaxImagePixels,
		Timeout:        cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Strings("classes", meta.Classes),
			zap.Strings("endpoints", []string{"GET /health", "POST /predict"}))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
