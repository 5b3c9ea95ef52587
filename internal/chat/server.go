package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/andy6609/chat-relay/internal/config"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	reg    *Registry
	router *Router

	mu        sync.Mutex
	listener  net.Listener
	closed    bool
	wg        sync.WaitGroup
	acceptErr chan error
}

func NewServer(cfg config.Config, audit AuditLog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry()
	return &Server{
		cfg:       cfg,
		logger:    logger,
		reg:       reg,
		router:    NewRouter(reg, audit, logger),
		acceptErr: make(chan error, 1),
	}
}

func (s *Server) Registry() *Registry { return s.reg }

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Serve starts the server and blocks until ctx is done or accepting fails,
// then stops it.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-s.acceptErr:
		s.Stop()
		return err
	}
}

// Stop closes the listener and every live session, then waits for their
// teardown to finish. Later calls are no-ops.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.logger.Info("shutting down")
	for _, c := range s.reg.Members() {
		c.Close()
	}
	s.wg.Wait()
	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("accept failed", "error", err)
				s.acceptErr <- err
			}
			return
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())
		s.serveConn(conn)
	}
}

// serveConn starts a session for conn unless the server is stopping.
func (s *Server) serveConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return
	}

	c := NewClient(conn, s.cfg.OutboundQueue)
	s.reg.Track(c)
	s.wg.Add(1)
	go s.handleSession(c)
}
