package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/chux0519/toy-kv/internal/config"
	"github.com/chux0519/toy-kv/internal/engine"
)

// session serves one client connection. The server pings the client on
// every heartbeat tick; a client that sends nothing for the session
// timeout is dropped.
type session struct {
	id    uint64
	conn  net.Conn
	cfg   *config.Config
	store *engine.Store

	writeMu  sync.Mutex // heartbeats interleave with responses
	seenMu   sync.Mutex
	lastSeen time.Time

	closeOnce sync.Once
}

func newSession(id uint64, conn net.Conn, cfg *config.Config, store *engine.Store) *session {
	return &session{
		id:       id,
		conn:     conn,
		cfg:      cfg,
		store:    store,
		lastSeen: time.Now(),
	}
}

func (s *session) run(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.heartbeat(hbCtx)
	defer s.close()

	for {
		var req Request
		if err := ReadFrame(s.conn, &req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("session: read failed",
					"session", s.id,
					"error", err)
			}
			return
		}
		s.touch()

		if req.Op == OpPing {
			continue
		}
		resp := s.dispatch(&req)
		if err := s.write(resp); err != nil {
			slog.Debug("session: write failed",
				"session", s.id,
				"error", err)
			return
		}
	}
}

// dispatch maps one request onto the engine API, converting text keys
// and values to their fixed-width form at the boundary.
func (s *session) dispatch(req *Request) *Response {
	resp := &Response{Op: req.Op}
	switch req.Op {
	case OpGet:
		key, err := engine.KeyFromString(req.Key)
		if err != nil {
			resp.Err = err.Error()
			return resp
		}
		value, found, err := s.store.Get(key)
		if err != nil {
			resp.Err = err.Error()
			return resp
		}
		resp.Found = found
		if found {
			resp.Value = value.String()
		}

	case OpPut:
		key, err := engine.KeyFromString(req.Key)
		if err != nil {
			resp.Err = err.Error()
			return resp
		}
		value, err := engine.ValueFromString(req.Value)
		if err != nil {
			resp.Err = err.Error()
			return resp
		}
		if err := s.store.Put(key, value); err != nil {
			resp.Err = err.Error()
		}

	case OpDelete:
		key, err := engine.KeyFromString(req.Key)
		if err != nil {
			resp.Err = err.Error()
			return resp
		}
		if err := s.store.Delete(key); err != nil {
			resp.Err = err.Error()
		}

	case OpScan:
		for key, value := range s.store.Scan(req.Start, req.End) {
			resp.Pairs = append(resp.Pairs, Pair{
				Key:   key.String(),
				Value: value.String(),
			})
		}

	default:
		resp.Err = "unknown op: " + req.Op
	}
	return resp
}

// heartbeat pings the client every interval and enforces the session
// timeout.
func (s *session) heartbeat(ctx context.Context) {
	interval := time.Duration(s.cfg.HEARTBEAT_INTERVAL) * time.Second
	timeout := time.Duration(s.cfg.SESSION_TIMEOUT) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.seenMu.Lock()
		idle := time.Since(s.lastSeen)
		s.seenMu.Unlock()
		if idle > timeout {
			slog.Info("session: client heartbeat failed, disconnecting",
				"session", s.id,
				"idle", idle)
			s.close()
			return
		}
		if err := s.write(&Response{Op: OpPing}); err != nil {
			s.close()
			return
		}
	}
}

func (s *session) touch() {
	s.seenMu.Lock()
	s.lastSeen = time.Now()
	s.seenMu.Unlock()
}

func (s *session) write(resp *Response) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteFrame(s.conn, resp)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}
