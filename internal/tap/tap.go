package tap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"syscall"

	"github.com/angeloszaimis/scope/internal/httpserver"
	"github.com/angeloszaimis/scope/internal/interceptor"
	"github.com/angeloszaimis/scope/internal/metrics"
	"github.com/angeloszaimis/scope/internal/route"
	"github.com/angeloszaimis/scope/internal/upstream"
)

// Info describes a tap.
type Info struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	Port    int    `json:"port"`
	Label   string `json:"label,omitempty"`
}

// Tap is one listening endpoint forwarding to one upstream.
type Tap struct {
	info   Info
	logger *slog.Logger
	routes *route.Registry
	server *httpserver.Server
}

type tapConfig struct {
	id        int
	address   *url.URL
	port      int
	label     string
	bindHost  string
	tlsConfig *tls.Config
	collector *metrics.Collector
}

// newTap builds a tap and binds its listener. Nothing is served until start.
func newTap(logger *slog.Logger, cfg tapConfig) (*Tap, error) {
	log := logger.With(slog.Int("tap", cfg.id))
	if cfg.label != "" {
		log = log.With(slog.String("label", cfg.label))
	}

	routes := route.NewRegistry()
	handler := interceptor.NewInterceptor(log, cfg.id, routes, upstream.New(cfg.address), cfg.collector)

	opts := []httpserver.Option{httpserver.WithLogger(log)}
	if cfg.address.Scheme == "https" {
		if cfg.tlsConfig != nil {
			opts = append(opts, httpserver.WithTLSConfig(cfg.tlsConfig))
		} else {
			log.Warn("No TLS key pair configured, serving https upstream over plain HTTP")
		}
	}

	addr := net.JoinHostPort(cfg.bindHost, strconv.Itoa(cfg.port))
	server, err := httpserver.New(addr, handler, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBindFailure, addr, err)
	}

	if err := server.Listen(); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %w: %s", ErrBindFailure, ErrPortInUse, addr)
		}
		return nil, fmt.Errorf("%w: %w", ErrBindFailure, err)
	}

	port := cfg.port
	if tcpAddr, ok := server.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Tap{
		info: Info{
			ID:      cfg.id,
			Address: cfg.address.String(),
			Port:    port,
			Label:   cfg.label,
		},
		logger: log,
		routes: routes,
		server: server,
	}, nil
}

// Info returns the tap's descriptor.
func (t *Tap) Info() Info {
	return t.info
}

// Routes returns the tap's route registry.
func (t *Tap) Routes() *route.Registry {
	return t.routes
}

func (t *Tap) start() {
	go func() {
		if err := t.server.Serve(); err != nil {
			t.logger.Error("Tap listener stopped", slog.Any("err", err))
		}
	}()
}

// stop releases the tap's port, forcing connections closed if graceful
// shutdown does not finish in time.
func (t *Tap) stop(ctx context.Context) error {
	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Warn("Graceful shutdown failed, closing", slog.Any("err", err))
		return t.server.Close()
	}
	return nil
}
