package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raihanakbr/daily-audio-transcription/internal/config"
	"github.com/raihanakbr/daily-audio-transcription/internal/events"
	"github.com/raihanakbr/daily-audio-transcription/internal/ingest"
	"github.com/raihanakbr/daily-audio-transcription/internal/logging"
	"github.com/raihanakbr/daily-audio-transcription/internal/metrics"
	"github.com/raihanakbr/daily-audio-transcription/internal/storage"
	"github.com/raihanakbr/daily-audio-transcription/internal/transcription"
	"github.com/raihanakbr/daily-audio-transcription/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to optional YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build server")
	}

	logger.WithFields(logrus.Fields{
		"addr":       cfg.Server.Addr(),
		"upload_dir": cfg.Storage.UploadDir,
		"provider":   cfg.Transcription.Provider,
		"endpoint":   cfg.Transcription.Endpoint,
		"timeout":    cfg.Transcription.Timeout.String(),
	}).Info("Starting server")
	logger.Infof("WebSocket endpoint: ws://localhost%s/ws?connection_id=<id>", cfg.Server.Addr())

	if err := app.run(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

// app holds the wired service
type app struct {
	server *http.Server
	hub    *websocket.Hub
	logger logrus.FieldLogger
}

func newApp(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*app, error) {
	store := storage.NewChunkStore(cfg.Storage.UploadDir, logger.WithField("component", "storage"))

	transcriber, err := newTranscriber(cfg.Transcription, store, logger.WithField("component", "transcription"))
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger.WithField("component", "hub"))
	history := websocket.NewTranscriptHistory(cfg.History.Size)

	bus := events.New()
	if err := bus.Subscribe(hub.Broadcast); err != nil {
		return nil, fmt.Errorf("failed to subscribe hub: %w", err)
	}
	if err := bus.Subscribe(history.Add); err != nil {
		return nil, fmt.Errorf("failed to subscribe history: %w", err)
	}

	m := metrics.New(hub.Count)
	coordinator := ingest.NewCoordinator(store, transcriber, bus, logger.WithField("component", "ingest"),
		ingest.WithRecorder(m))
	handler := websocket.NewHandler(ctx, hub, coordinator, history, store, logger.WithField("component", "websocket"))

	mux := handler.Routes()
	mux.Handle("/metrics", m.Handler())

	return &app{
		server: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub:    hub,
		logger: logger,
	}, nil
}

func newTranscriber(cfg config.TranscriptionConfig, store *storage.ChunkStore, logger logrus.FieldLogger) (transcription.Transcriber, error) {
	clientConfig := transcription.Config{
		Endpoint:       cfg.Endpoint,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		Language:       cfg.Language,
		ResponseFormat: cfg.ResponseFormat,
		Timeout:        cfg.Timeout,
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err := transcription.NewOpenAIClient(clientConfig, store, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderMultipart, "":
		client, err := transcription.NewClient(clientConfig, store, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

// run serves until ctx is cancelled, then shuts down gracefully
func (a *app) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown
	a.hub.CloseAll()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
