// Package gwserver runs the gateway's per-endpoint TCP listeners: accept
// loops, per-connection goroutines, and a bounded graceful shutdown. The
// accept/track/close shape is carried over from wansing-ulist's
// sockmap.Server, generalized from one fixed netstring protocol to any
// of the three wire protocols this gateway serves.
package gwserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pfxrest/postfix-rest-api-connector/logging"
)

// ConnHandler serves one accepted connection to completion (including
// closing it) and returns once the connection is done, whether because
// the peer closed it, a protocol error occurred, or the server is
// shutting down and closed it out from under the handler.
type ConnHandler func(conn net.Conn)

// Server tracks every listener and live connection opened under it, so
// Shutdown can close them deterministically instead of relying on the
// process exiting.
type Server struct {
	mu        sync.Mutex
	listeners []net.Listener
	conns     map[net.Conn]struct{}
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns an idle Server ready to Serve listeners.
func New() *Server {
	return &Server{
		conns:   make(map[net.Conn]struct{}),
		closing: make(chan struct{}),
	}
}

// Listen binds addr with SO_REUSEADDR set, so a restart doesn't have to
// wait out TIME_WAIT on the previous process's socket.
func (s *Server) Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	return l, nil
}

// Serve accepts connections on l until l.Close is called (by Shutdown or
// by the caller), dispatching each to handle on its own goroutine.
func (s *Server) Serve(l net.Listener, handle ConnHandler) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
				return fmt.Errorf("accepting on %s: %w", l.Addr(), err)
			}
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			defer func() {
				if r := recover(); r != nil {
					conn.Close()
					logging.Errorf("connection handler panicked: %v", r)
				}
			}()
			handle(conn)
		}()
	}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Shutdown closes every listener so no new connections are accepted, then
// waits for in-flight connections to finish on their own. Connections
// still open when ctx is done are closed forcibly, bounding how long
// Shutdown can block.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)

		s.mu.Lock()
		listeners := s.listeners
		s.mu.Unlock()

		for _, l := range listeners {
			if cerr := l.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		remaining := len(s.conns)
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		if remaining > 0 {
			logging.Warnf("shutdown: force-closed %d connection(s) still open at drain deadline", remaining)
		}
		<-done
		if err == nil {
			err = errors.New("shutdown: drain deadline exceeded")
		}
		return err
	}
}
