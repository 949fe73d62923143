package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/pkg/memory"
	"github.com/rs/zerolog"
)

const tracerName = "mnemo.server"

// MemoryService is what the web adapter needs from the memory service.
type MemoryService interface {
	Append(ctx context.Context, text string) error
	AppendVoice(ctx context.Context, audio io.Reader, filename string) (string, error)
	Search(ctx context.Context, query string) (memory.SearchResult, error)
	Status(ctx context.Context) memory.Status
}

// Options holds server configuration
type Options struct {
	Host               string
	Port               int
	MaxUploadBytes     int64
	VoiceRatePerMinute int // 0 disables limiting
	ShutdownTimeout    time.Duration

	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For and
	// X-Real-IP headers name the client. Headers from other peers are ignored.
	TrustedProxies []string
}

// Server serves the memory web page and its JSON endpoints
type Server struct {
	options        Options
	service        MemoryService
	server         *http.Server
	listener       net.Listener
	rateLimiter    *RateLimiter
	trustedProxies []netip.Prefix
	logger         zerolog.Logger
	startTime      time.Time

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	serveErr       chan error
}

// NewServer creates a new server
func NewServer(options Options, service MemoryService, logger zerolog.Logger) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("memory service is required")
	}

	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.MaxUploadBytes <= 0 {
		options.MaxUploadBytes = 25 << 20
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = 10 * time.Second
	}

	trusted, err := ParseTrustedProxies(options.TrustedProxies)
	if err != nil {
		return nil, err
	}

	observability.EnsureRegistered()

	return &Server{
		options:        options,
		service:        service,
		rateLimiter:    NewRateLimiter(options.VoiceRatePerMinute),
		trustedProxies: trusted,
		logger:         logger.With().Str("component", "server").Logger(),
		startTime:      time.Now(),
		serveErr:       make(chan error, 1),
	}, nil
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.instrument("index", s.handleIndex))
	mux.HandleFunc("/add_voice_memory", s.instrument("add_voice_memory", s.handleAddVoiceMemory))
	mux.HandleFunc("/api/memories", s.instrument("api_memories", s.handleAPIMemories))
	mux.HandleFunc("/health", s.instrument("health", s.handleHealth))
	mux.Handle("/metrics", observability.MetricsHandler())

	return mux
}

// Start binds the listen address and serves in the background. Bind errors
// are returned directly; later serve errors are reported by Errors.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.options.Host, fmt.Sprintf("%d", s.options.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Msg("Starting web server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Web server failed")
			s.serveErr <- err
		}
		close(s.serveErr)
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Errors yields a serve error, if any, and is closed when serving ends.
func (s *Server) Errors() <-chan error {
	return s.serveErr
}

// Stop gracefully stops the server, waiting for in-flight requests.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down web server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown web server: %w", err)
	}

	s.logger.Info().Msg("Web server stopped")
	return nil
}
