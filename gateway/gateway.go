package gateway

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/pkg/tlsutil"
)

// Config configures the listener.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             tlsutil.ServerConfig
}

// Gateway owns the HTTP server lifecycle.
type Gateway struct {
	cfg      Config
	server   *http.Server
	logger   *slog.Logger
	mu       sync.Mutex
	listener net.Listener
	done     chan error
}

// New creates a Gateway serving handler.
func New(cfg Config, handler http.Handler, logger *slog.Logger) (*Gateway, error) {
	if cfg.Addr == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "New", "addr is required")
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	if cfg.TLS.Enabled {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		server.TLSConfig = tlsConfig
	}
	return &Gateway{cfg: cfg, server: server, logger: logger.With("component", "gateway")}, nil
}

// Start binds the listener and serves in the background. Serve errors are
// reported on Done.
func (g *Gateway) Start(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener != nil {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Gateway", "Start", "gateway already running")
	}

	ln, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "Start", "listen on "+g.cfg.Addr)
	}
	g.listener = ln
	g.done = make(chan error, 1)

	go func() {
		var serveErr error
		if g.server.TLSConfig != nil {
			serveErr = g.server.ServeTLS(ln, "", "")
		} else {
			serveErr = g.server.Serve(ln)
		}
		if stderrors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
		g.done <- serveErr
		close(g.done)
	}()

	g.logger.Info("gateway listening", "addr", ln.Addr().String(), "tls", g.server.TLSConfig != nil)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Done yields the serve error (nil on clean shutdown) once the server exits.
func (g *Gateway) Done() <-chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// Stop shuts the server down, waiting up to timeout for in-flight requests.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.mu.Lock()
	started := g.listener != nil
	g.mu.Unlock()
	if !started {
		return nil
	}
	if timeout <= 0 {
		timeout = g.cfg.ShutdownTimeout
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shutdown")
	}
	g.logger.Info("gateway stopped")
	return nil
}
