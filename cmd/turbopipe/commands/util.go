package commands

import (
	"context"
	"fmt"

	"github.com/marmos91/turbopipe/internal/logger"
	"github.com/marmos91/turbopipe/internal/telemetry"
	"github.com/marmos91/turbopipe/pkg/api"
	"github.com/marmos91/turbopipe/pkg/config"
	"github.com/marmos91/turbopipe/pkg/metrics"
	prommetrics "github.com/marmos91/turbopipe/pkg/metrics/prometheus"
	"github.com/marmos91/turbopipe/pkg/pipe"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// session is the runtime shared by commands that drive the engine:
// logging, tracing, profiling, metrics, the HTTP server and the engine.
type session struct {
	cfg      *config.Config
	engine   *pipe.Engine
	cleanups []func()
}

// startSession loads configuration and brings up the runtime. The returned
// session must be closed.
func startSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	if err := s.initObservability(ctx); err != nil {
		s.runCleanups()
		return nil, err
	}

	s.engine = pipe.New(cfg.ToEngineConfig(), prommetrics.NewPipeMetrics())
	s.engine.Start()

	logger.Info("Engine started",
		logger.Workers(cfg.Engine.Workers),
		logger.QueueCap(cfg.Engine.QueueSize),
		logger.ChunkSize(cfg.Engine.ChunkSize.Int()),
		logger.Snapshot(cfg.Engine.Snapshot),
	)

	if cfg.API.Enabled {
		s.startAPIServer()
	}
	return s, nil
}

func (s *session) initObservability(ctx context.Context) error {
	cfg := s.cfg

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "turbopipe",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.cleanups = append(s.cleanups, func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	})
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "turbopipe",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	s.cleanups = append(s.cleanups, func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	})
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled")
	}
	return nil
}

func (s *session) startAPIServer() {
	server := api.NewServer(s.cfg.API, s.engine)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- server.Start(ctx) }()

	s.cleanups = append(s.cleanups, func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("API server stopped with error", logger.Err(err))
		}
	})
}

// Close drains the engine within the configured shutdown timeout, then
// tears down the rest of the runtime.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.engine.Close(ctx)
	if err != nil {
		logger.Error("Engine did not drain before shutdown timeout", logger.Err(err))
	}

	s.runCleanups()
	return err
}

func (s *session) runCleanups() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}
