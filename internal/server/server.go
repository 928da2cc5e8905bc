// Package server exposes the rebalancer and classification queues over HTTP.
// Queue runs stream their progress events to the caller as server-sent events.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

const readHeaderTimeout = 10 * time.Second

// Server wraps http.Server with run and graceful stop.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server listening on addr. There is no write timeout
// because event streams stay open for the length of a run.
func NewServer(handler http.Handler, addr string) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// UseTLS serves over TLS with cfg, which must carry the certificate.
func (s *Server) UseTLS(cfg *tls.Config) {
	s.httpServer.TLSConfig = cfg
}

// TLS reports whether the server terminates TLS.
func (s *Server) TLS() bool {
	return s.httpServer.TLSConfig != nil
}

// Run serves until Stop is called. A graceful stop is not an error.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	if s.TLS() {
		err = s.httpServer.ServeTLS(ln, "", "")
	} else {
		err = s.httpServer.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for open streams until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
