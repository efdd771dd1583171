// Command gateway runs the real-time counseling gateway.
//
// Usage:
//
//	export OPENAI_API_KEY=sk-...
//	gateway -config config.yaml
//
// Clients connect to ws://<addr>/ws/counseling/{session_id} and stream
// audio, video, and control frames. Prometheus metrics are served on a
// separate listener.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/attune-ai/attune/config"
	"github.com/attune-ai/attune/events"
	"github.com/attune-ai/attune/gateway"
	"github.com/attune-ai/attune/logger"
	"github.com/attune-ai/attune/metrics/prometheus"
	"github.com/attune-ai/attune/models"
	"github.com/attune-ai/attune/segmenter"
	"github.com/attune-ai/attune/session"
	"github.com/attune-ai/attune/statestore"
	"github.com/attune-ai/attune/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if err := run(cfg); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := buildModels(cfg)
	if err := registry.Load(ctx); err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("closing models", "error", err)
		}
	}()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus()

	var exporter *prometheus.Exporter
	if cfg.Metrics.Enabled {
		bus.SubscribeAll(prometheus.NewMetricsListener().Listener())
		exporter = prometheus.NewExporter(cfg.Metrics.Addr)
		go func() {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics exporter failed", "error", err)
			}
		}()
	}

	var tracer trace.Tracer
	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn("shutting down tracer provider", "error", err)
			}
		}()
		telemetry.SetupPropagation()
		tracer = telemetry.Tracer(tp)
	}

	var sink session.MediaSink
	if cfg.Session.MediaDir != "" {
		sink, err = session.NewFileSink(cfg.Session.MediaDir)
		if err != nil {
			return err
		}
	}

	srv := gateway.NewServer(gateway.Config{
		Addr:       cfg.Server.Addr,
		ReadLimit:  cfg.Server.ReadLimit,
		FrameRate:  cfg.Server.FrameRate,
		FrameBurst: cfg.Server.FrameBurst,
		Models:     registry,
		Store:      store,
		Segmenter: segmenter.Params{
			HangoverChunks: cfg.Segmenter.HangoverChunks,
			MaxBufferBytes: cfg.Segmenter.MaxBufferBytes,
		},
		QueueSize: cfg.Session.QueueSize,
		Bus:       bus,
		Tracer:    tracer,
		Sink:      sink,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	if exporter != nil {
		if err := exporter.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics exporter shutdown", "error", err)
		}
	}
	return nil
}

// buildModels binds capability implementations. The dummy analyzers stand in
// for emotion models; transcription upgrades to the Whisper API when a key
// is present.
func buildModels(cfg *config.Config) *models.Registry {
	mc := models.Config{
		VAD:           models.NewDummyVAD(),
		STT:           models.NewDummyTranscriber(),
		AudioEmotion:  models.NewDummyAudioEmotion(),
		FaceEmotion:   models.NewDummyFaceEmotion(),
		Response:      models.NewDummyResponder(),
		InvokeTimeout: cfg.Models.InvokeTimeout,
	}

	if cfg.Models.WhisperAPIKey != "" {
		opts := []models.WhisperOption{
			models.WithWhisperModel(cfg.Models.WhisperModel),
			models.WithWhisperSampleRate(cfg.Models.SampleRate),
		}
		if cfg.Models.WhisperBaseURL != "" {
			opts = append(opts, models.WithWhisperBaseURL(cfg.Models.WhisperBaseURL))
		}
		mc.STT = models.NewWhisperTranscriber(cfg.Models.WhisperAPIKey, opts...)
	}
	return models.NewRegistry(mc)
}

func buildStore(cfg *config.Config) (statestore.Store, error) {
	if cfg.Redis.Addr == "" {
		return statestore.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return statestore.NewRedisStore(client, statestore.WithTTL(cfg.Redis.TTL)), nil
}
