package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-ozzo/ozzo-validation/is"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Server wraps http.Server with validation, an explicit bind step and
// graceful shutdown.
type Server struct {
	server    *http.Server
	tlsConfig *tls.Config

	mutex    sync.Mutex
	listener net.Listener
}

type Option func(*Server)

// WithTLSConfig makes the server terminate TLS on its listener.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// WithLogger routes net/http's internal errors (TLS handshakes, accept
// failures) to logger at warn level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.server.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}
}

// New creates a new HTTP server with the given address and handler.
// The address is validated before creating the server.
func New(addr string, handler http.Handler, opts ...Option) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	srv := &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv, nil
}

// Listen binds the server's address without serving yet.
func (s *Server) Listen() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener != nil {
		return errors.New("httpserver: already listening")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.listener = ln
	return nil
}

// Serve accepts connections on the bound listener until shutdown.
// Returns an error unless the server is shut down cleanly.
func (s *Server) Serve() error {
	s.mutex.Lock()
	ln := s.listener
	s.mutex.Unlock()

	if ln == nil {
		return errors.New("httpserver: not listening")
	}

	err := s.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server with a 5-second timeout.
// The listener is closed before in-flight requests are waited on.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.closeListener()
	return err
}

// Close stops the server immediately, dropping active connections.
func (s *Server) Close() error {
	err := s.server.Close()
	s.closeListener()
	return err
}

// closeListener covers the window where Listen succeeded but Serve has not
// yet handed the listener to http.Server.
func (s *Server) closeListener() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)

	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return err
}
