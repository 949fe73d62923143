package cli

import (
	"context"
	"fmt"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/internal/daemon"
	"github.com/harun/mnemo/internal/logger"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/harun/mnemo/pkg/memory"
	"github.com/spf13/cobra"
)

// app is what a command needs to work on the memory store
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	service *memory.Service
}

// loadConfig loads and validates the config, applying flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console || console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
}

// openApp loads config, logging and the memory service. console forces
// log output to stderr.
func openApp(opts *rootOptions, console bool) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg, console)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	service, err := daemon.NewMemoryService(cfg, log.GetZerolog())
	if err != nil {
		log.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, service: service}, nil
}

// Close releases the service and the log file
func (a *app) Close() {
	if err := a.service.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close memory service")
	}
	a.log.Close()
}

// commandContext returns a request-scoped context for one command run
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return tracing.NewRequestContext(ctx)
}
