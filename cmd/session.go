package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/papapumpkin/ratsnest/internal/config"
	"github.com/papapumpkin/ratsnest/internal/engine"
	"github.com/papapumpkin/ratsnest/internal/pcb"
	"github.com/papapumpkin/ratsnest/internal/telemetry"
	"github.com/papapumpkin/ratsnest/internal/ui"
)

// session bundles what every board command needs.
type session struct {
	cfg       config.Config
	logger    *zap.Logger
	telemetry *telemetry.Emitter
	printer   *ui.Printer
	data      *engine.Data
}

// newSession loads configuration and builds the logger, telemetry emitter,
// printer and an empty engine. The caller must Close it.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	var emitter *telemetry.Emitter
	if cfg.TelemetryPath != "" {
		emitter, err = telemetry.NewEmitter(cfg.TelemetryPath)
		if err != nil {
			_ = logger.Sync()
			return nil, err
		}
	}

	s := &session{
		cfg:       cfg,
		logger:    logger,
		telemetry: emitter,
		printer:   ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}
	s.data = engine.New(
		engine.WithEpsilon(cfg.Epsilon),
		engine.WithParallelism(cfg.Parallelism),
		engine.WithLogger(logger),
		engine.WithTelemetry(emitter),
	)
	return s, nil
}

// load reads the board at path and builds the engine from it.
func (s *session) load(path string) (*pcb.Board, error) {
	b, err := pcb.Load(path)
	if err != nil {
		return nil, err
	}
	if s.cfg.Verbose {
		s.printer.BoardLoaded(path, b)
	}
	if err := s.data.Build(b); err != nil {
		return nil, fmt.Errorf("building connectivity: %w", err)
	}
	return b, nil
}

// Close stops background work and flushes the logger and telemetry.
func (s *session) Close() error {
	s.data.KillCalculations()
	s.data.ClearDynamicRatsnest()
	_ = s.data.Sync()
	_ = s.logger.Sync()
	return s.telemetry.Close()
}

// newLogger builds a console logger on stderr at the configured level.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = !cfg.Verbose
	if !cfg.Verbose {
		zc.DisableCaller = true
	}
	return zc.Build()
}
