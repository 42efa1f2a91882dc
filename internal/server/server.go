// Package server adapts the teacher's Server/ShutdownHandler pair to the
// session orchestration core: an HTTP server racing an OS signal against its
// own unexpected exit, extended to cancel every live session before the
// process actually exits.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rosielabs/sessioncore/internal/orchestrator"
)

// Server owns the HTTP listener and the orchestrator whose sessions it must
// drain on shutdown.
type Server struct {
	addr         string
	handler      http.Handler
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger

	http            *http.Server
	shutdownHandler *shutdownHandler
}

// New builds a Server bound to addr, serving handler, with orch torn down on
// shutdown.
func New(addr string, handler http.Handler, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{addr: addr, handler: handler, orchestrator: orch, logger: logger}
	s.shutdownHandler = newShutdownHandler(s)
	return s
}

// Run starts the HTTP server and blocks until it exits, either from a fatal
// server error or an OS signal, performing orderly shutdown either way.
func (s *Server) Run() error {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	serverDone := s.startServerGoroutine()

	return s.shutdownHandler.handleShutdown(serverDone, osSignals)
}

func (s *Server) startServerGoroutine() chan error {
	serverDone := make(chan error, 1)

	go func() {
		s.http = &http.Server{
			Addr:    s.addr,
			Handler: s.handler,
		}
		s.logger.Info("starting session orchestration core", "addr", s.addr)

		err := s.http.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			err = fmt.Errorf("failed to start server: %w", err)
		} else {
			err = nil
		}
		serverDone <- err
	}()

	return serverDone
}

// shutdownHandler orchestrates graceful teardown, mirroring the teacher's
// ShutdownHandler: race the server's own completion against an OS signal,
// then shut the HTTP listener and the orchestrator's live sessions down.
type shutdownHandler struct {
	server *Server
}

func newShutdownHandler(server *Server) *shutdownHandler {
	return &shutdownHandler{server: server}
}

func (h *shutdownHandler) handleShutdown(serverDone chan error, osSignals chan os.Signal) error {
	select {
	case err := <-serverDone:
		h.server.logger.Info("server stopped, initiating shutdown")
		close(osSignals)
		h.shutdown()
		return h.handleServerError(err)

	case sig, ok := <-osSignals:
		if !ok {
			return nil
		}
		h.server.logger.Info("received OS signal, initiating shutdown", "signal", sig)
		h.shutdown()

		err := <-serverDone
		return h.handleServerError(err)
	}
}

func (h *shutdownHandler) handleServerError(err error) error {
	if err != nil {
		h.server.logger.Error("service stopped with an error", "error", err)
		return err
	}
	h.server.logger.Info("service stopped cleanly")
	return nil
}

func (h *shutdownHandler) shutdown() {
	h.server.logger.Info("shutting down server components")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if h.server.http != nil {
		if err := h.server.http.Shutdown(ctx); err != nil {
			h.server.logger.Error("error during HTTP server shutdown", "error", err)
		}
	}

	if h.server.orchestrator != nil {
		h.server.orchestrator.TerminateAll(ctx)
		h.server.logger.Info("all live sessions terminated")
	}

	h.server.logger.Info("server shutdown complete")
}
