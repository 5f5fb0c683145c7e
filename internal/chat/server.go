package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Server owns the listener, the fabric and the session lifecycle.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	fabric   Fabric
	listener net.Listener

	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		fabric: newFabric(cfg, logger),
	}
}

// Fabric exposes the broadcast fabric, mainly for tests.
func (s *Server) Fabric() Fabric {
	return s.fabric
}

// Addr reports the bound listen address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		s.acceptLoop(ctx, ln)
	}()

	s.logger.Info("server started", "addr", ln.Addr().String(), "fabric", string(s.cfg.Fabric))
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// A transient accept failure must not stop the listener.
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.logger.Info("client connected", "peer", conn.RemoteAddr().String())

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			RunSession(ctx, conn, s.fabric, s.cfg, s.logger)
		}()
	}
}

// Stop closes the listener, cancels every live session and waits for
// them to drain before tearing down the fabric.
func (s *Server) Stop() {
	s.logger.Info("shutting down")

	if s.listener != nil {
		s.listener.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.sessions.Wait()
	s.fabric.Close()

	s.logger.Info("shutdown complete")
}
