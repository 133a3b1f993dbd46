package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrListen reports that the server could not bind or serve its address.
	ErrListen = errors.New("http server failed to listen")
	// ErrShutdown reports that graceful shutdown did not complete in time.
	ErrShutdown = errors.New("http server failed to shut down")
)

// Server exposes an http.Handler with bounded timeouts and graceful
// shutdown. Construct it with New or NewFromConfig; the zero value is not
// usable.
type Server struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	log             *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New returns a Server listening on :8080 unless WithAddr overrides it.
func New(opts ...Option) *Server {
	s := &Server{
		addr:            ":8080",
		shutdownTimeout: 5 * time.Second,
		log:             slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr reports the bound listen address, or "" before Run has opened the
// listener. With WithAddr ending in ":0" this is how callers learn the
// chosen port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run binds the listen address and serves handler until ctx is cancelled or
// an interrupt or TERM signal arrives, then drains in-flight requests within
// the shutdown timeout. Bind and serve failures come back wrapped with
// ErrListen, drain failures with ErrShutdown.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Join(ErrListen, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	s.log.InfoContext(ctx, "http server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-serveErr:
		// Serve never returns nil, and it only returns ErrServerClosed
		// after Shutdown has been called.
		return errors.Join(ErrListen, err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return errors.Join(ErrShutdown, err)
	}
	<-serveErr

	s.log.Info("http server stopped")
	return nil
}
