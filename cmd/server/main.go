package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/voice-assistant/internal/capture"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/conversation"
	"github.com/lexiqai/voice-assistant/internal/groq"
	"github.com/lexiqai/voice-assistant/internal/httpapi"
	"github.com/lexiqai/voice-assistant/internal/llm"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/playback"
	"github.com/lexiqai/voice-assistant/internal/recorder"
	"github.com/lexiqai/voice-assistant/internal/resilience"
	"github.com/lexiqai/voice-assistant/internal/stt"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("llm_provider", cfg.LLMProvider).
		Str("tts_provider", cfg.TTSProvider).
		Str("capture_source", cfg.CaptureSource).
		Str("turn_mode", cfg.TurnMode).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice assistant starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Voice assistant exited with error")
	}
	logger.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	checks := map[string]observability.HealthCheckFunc{}

	collab, closeCollab, err := buildCollaborators(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeCollab()

	guard, source, remote := buildCapture(cfg)
	if avail := guard.Check(ctx); avail != capture.Available {
		logger.Warn().Str("microphone", avail.String()).Msg("Microphone is not available; recording is disabled")
	}

	rec := recorder.New(guard, source, observability.Component("recorder"))
	session := conversation.NewSession(rec, collab, logger)

	opts := conversation.Options{
		Mode:             cfg.TurnMode,
		QueueSize:        cfg.TurnQueueSize,
		ExportTimeLayout: cfg.ExportTimeLayout,
	}
	if cfg.Autoplay {
		player := playback.NewFFplayPlayer(cfg.FFplayPath)
		if err := player.Available(); err != nil {
			logger.Warn().Err(err).Msg("Autoplay disabled")
		} else {
			opts.Player = player
		}
	}
	ctrl := conversation.NewController(session, opts, logger)
	defer ctrl.Close()

	mux := http.NewServeMux()
	httpapi.NewServer(ctrl, remote, cfg.MaxClipBytes, logger).Register(mux)
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("events", fmt.Sprintf("ws://localhost:%s/api/events", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildCollaborators selects the transcriber, generator and synthesizer
// and registers their readiness checks
func buildCollaborators(ctx context.Context, cfg *config.Config, checks map[string]observability.HealthCheckFunc) (conversation.Collaborators, func(), error) {
	var collab conversation.Collaborators
	closeFn := func() {}

	groqPolicy := func(name string) *resilience.Policy {
		p := resilience.NewPolicy(name, cfg)
		p.Retry.MaxAttempts = cfg.GroqMaxRetries + 1
		return p
	}

	switch cfg.STTProvider {
	case config.ProviderDeepgram:
		policy := resilience.NewPolicy("deepgram", cfg)
		collab.Transcriber = stt.NewDeepgramTranscriber(cfg, policy, observability.Component("stt"))
		checks["stt"] = policy.Healthy
	default:
		policy := groqPolicy(groq.ServiceName + "-stt")
		collab.Transcriber = stt.NewGroqTranscriber(cfg, policy, observability.Component("stt"))
		checks["stt"] = policy.Healthy
	}

	switch cfg.LLMProvider {
	case config.ProviderOrchestrator:
		policy := resilience.NewPolicy("orchestrator", cfg)
		gen, err := llm.NewOrchestratorGenerator(cfg, policy, observability.Component("llm"))
		if err != nil {
			return collab, closeFn, fmt.Errorf("orchestrator client: %w", err)
		}
		collab.Generator = gen
		checks["llm"] = gen.HealthCheck
		closeFn = func() { _ = gen.Close() }

		// Turns fail fast with a generation error until the orchestrator is up
		go func() {
			reconnect := &resilience.ReconnectConfig{
				MaxAttempts: cfg.ReconnectMaxAttempts,
				Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
				Multiplier:  2.0,
				MaxBackoff:  30 * time.Second,
			}
			if err := gen.WaitReady(ctx, reconnect); err != nil && ctx.Err() == nil {
				logger := observability.Component("llm")
				logger.Warn().Err(err).Msg("Orchestrator not ready")
			}
		}()
	default:
		policy := groqPolicy(groq.ServiceName + "-llm")
		collab.Generator = llm.NewGroqGenerator(cfg, policy, observability.Component("llm"))
		checks["llm"] = policy.Healthy
	}

	switch cfg.TTSProvider {
	case config.ProviderCartesia:
		policy := resilience.NewPolicy("cartesia", cfg)
		collab.Synthesizer = tts.NewCartesiaClient(cfg, policy, observability.Component("tts"))
		checks["tts"] = policy.Healthy
	default:
		policy := resilience.NewPolicy("elevenlabs", cfg)
		collab.Synthesizer = tts.NewElevenLabsClient(cfg, policy, observability.Component("tts"))
		checks["tts"] = policy.Healthy
	}

	return collab, closeFn, nil
}

// buildCapture returns the microphone guard and source. remote is non-nil
// when the client pushes recorded audio over the API.
func buildCapture(cfg *config.Config) (*capture.Guard, capture.Source, *capture.RemoteSource) {
	if cfg.CaptureSource == config.CaptureSourceFFmpeg {
		src := capture.NewFFmpegSource(capture.FFmpegConfig{
			Command:     cfg.FFmpegPath,
			InputFormat: cfg.CaptureInputFormat,
			InputDevice: cfg.CaptureInputDevice,
			Bitrate:     cfg.CaptureBitrate,
		})
		return capture.NewGuard(src.Probe), src, nil
	}

	remote := capture.NewRemoteSource(cfg.MaxClipBytes)
	return capture.NewGuard(capture.AlwaysAvailable), remote, remote
}
