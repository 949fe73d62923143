package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/internal/logger"
	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/server"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/harun/mnemo/pkg/memory"
)

// startupWarmTimeout bounds the initial embedding of the whole store.
const startupWarmTimeout = 5 * time.Minute

// Daemon runs the web server over a memory service until signalled.
type Daemon struct {
	config    *config.Config
	logger    *logger.Logger
	service   *memory.Service
	server    *server.Server
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status represents the daemon status
type Status struct {
	Running   bool          `json:"running"`
	Uptime    time.Duration `json:"uptime"`
	StartTime time.Time     `json:"start_time"`
	Memory    memory.Status `json:"memory"`
}

// New creates a new daemon instance. The daemon does not own service; the
// caller closes it after Stop.
func New(cfg *config.Config, log *logger.Logger, service *memory.Service) (*Daemon, error) {
	if service == nil {
		return nil, fmt.Errorf("memory service is required")
	}

	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config:  cfg,
		logger:  log,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry("mnemo", cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	srv, err := server.NewServer(server.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		MaxUploadBytes:     cfg.Server.MaxUploadBytes,
		VoiceRatePerMinute: cfg.Server.VoiceRatePerMinute,
		ShutdownTimeout:    seconds(cfg.Server.ShutdownTimeoutSeconds),
		TrustedProxies:     cfg.Server.TrustedProxies,
	}, service, log.GetZerolog())
	if err != nil {
		cancel()
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to create web server: %w", err)
	}
	d.server = srv
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// Start writes the PID file, starts the store watcher and the web server,
// and warms the embedding cache in the background.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting mnemo daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.config.Memory.Watch {
		if err := d.service.Watch(); err != nil {
			logger.Warn().Err(err).Msg("Failed to watch memory store, appends from other processes are embedded on next search")
		}
	}

	if err := d.server.Start(); err != nil {
		d.lifecycle.Stop()
		d.setStopped()
		return fmt.Errorf("failed to start web server: %w", err)
	}
	logger.Info().Str("addr", d.server.Addr()).Msg("Web server started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(tracing.NewRequestContext(d.ctx), startupWarmTimeout)
		defer cancel()
		if err := d.service.Warm(ctx); err != nil {
			logger.Warn().Err(err).Msg("Initial cache warm-up failed, memories are embedded on first search")
		}
	}()

	logger.Info().Msg("Daemon started successfully")
	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping mnemo daemon")

	if err := d.server.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop web server")
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	status := Status{Running: d.running}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	d.mu.RUnlock()

	status.Memory = d.service.Status(d.ctx)
	return status
}

// Addr returns the web server's bound address.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Wait blocks until SIGINT or SIGTERM, or until the web server fails, then
// stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case err, ok := <-d.server.Errors():
		if ok {
			d.logger.Error().Err(err).Msg("Web server stopped unexpectedly")
		}
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}
