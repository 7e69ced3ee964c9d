package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/chux0519/toy-kv/internal/config"
	"github.com/chux0519/toy-kv/internal/engine"
)

// Server accepts client connections and dispatches their commands onto
// the storage engine. Each connection runs in its own session
// goroutine; the engine serialises writers internally.
type Server struct {
	cfg   *config.Config
	store *engine.Store

	mu       sync.Mutex
	ln       net.Listener
	sessions map[uint64]*session
	nextID   uint64
	wg       sync.WaitGroup
}

// NewServer wraps a store for serving over TCP.
func NewServer(cfg *config.Config, store *engine.Store) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: make(map[uint64]*session),
	}
}

// ListenAndServe accepts connections on the configured address until
// ctx is cancelled, then drops every session and returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.LISTEN_ADDR)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.LISTEN_ADDR, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	slog.Info("server: listening",
		"addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Warn("server: accept failed",
				"error", err)
			continue
		}
		sess := s.register(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run(ctx)
			s.unregister(sess.id)
		}()
	}

	s.closeSessions()
	s.wg.Wait()
	slog.Info("server: stopped")
	return nil
}

// Addr returns the bound listen address, or empty before serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) register(conn net.Conn) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sess := newSession(s.nextID, conn, s.cfg, s.store)
	s.sessions[sess.id] = sess

	slog.Info("server: session connected",
		"session", sess.id,
		"remote", conn.RemoteAddr().String())
	return sess
}

func (s *Server) unregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)

	slog.Info("server: session disconnected",
		"session", id)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.close()
	}
}
