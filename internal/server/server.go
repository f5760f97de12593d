package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rhasspy/wyoming-porcupine1/internal/session"
	"github.com/rhasspy/wyoming-porcupine1/internal/wyoming"
)

// Server accepts client connections and runs one session per connection.
// Supported URIs: tcp://host:port, unix://path and stdio:// (one session
// over standard input/output).
type Server struct {
	uri        string
	logger     *slog.Logger
	sessionCfg session.Config

	mu       sync.RWMutex
	sessions map[string]*session.Controller
}

// New creates a server for the given URI
func New(uri string, sessionCfg session.Config, logger *slog.Logger) *Server {
	return &Server{
		uri:        uri,
		logger:     logger,
		sessionCfg: sessionCfg,
		sessions:   make(map[string]*session.Controller),
	}
}

// Run serves connections until the context is cancelled (or, for stdio,
// until the peer closes the stream). Peer-initiated close is not an
// error.
func (s *Server) Run(ctx context.Context) error {
	scheme, address, err := splitURI(s.uri)
	if err != nil {
		return err
	}

	switch scheme {
	case "stdio":
		s.logger.Info("Serving single session on stdio")
		return s.serveStream(ctx, struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout})

	case "tcp":
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return fmt.Errorf("failed to listen on tcp %s: %w", address, err)
		}
		return s.serveListener(ctx, listener)

	case "unix":
		// Remove a stale socket from a previous run
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale socket %s: %w", address, err)
		}
		listener, err := net.Listen("unix", address)
		if err != nil {
			return fmt.Errorf("failed to listen on unix %s: %w", address, err)
		}
		return s.serveListener(ctx, listener)

	default:
		return fmt.Errorf("unsupported URI scheme %q (want tcp, unix or stdio)", scheme)
	}
}

// serveListener accepts connections until the context is cancelled and
// waits for in-flight sessions to unwind.
func (s *Server) serveListener(ctx context.Context, listener net.Listener) error {
	s.logger.Info("Server listening", slog.String("address", listener.Addr().String()))

	group, ctx := errgroup.WithContext(ctx)

	// Closing the listener unblocks Accept on shutdown
	group.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})

	group.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("accept failed: %w", err)
			}

			group.Go(func() error {
				// Cancellation closes the connection to unblock reads
				stop := context.AfterFunc(ctx, func() { conn.Close() })
				defer stop()
				defer conn.Close()
				if err := s.serveStream(ctx, conn); err != nil {
					s.logger.Error("Session ended with error",
						slog.String("remote_addr", conn.RemoteAddr().String()),
						slog.String("error", err.Error()),
					)
				}
				return nil
			})
		}
	})

	err := group.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	s.logger.Info("Server stopped")
	return err
}

// serveStream runs one session over a bidirectional byte stream. It
// returns nil when the peer closes the stream.
func (s *Server) serveStream(ctx context.Context, stream io.ReadWriter) error {
	controller := session.New(s.sessionCfg, &eventWriter{w: stream})

	s.register(controller)
	defer s.unregister(controller)
	defer controller.Close()

	reader := bufio.NewReader(stream)
	for {
		if ctx.Err() != nil {
			return nil
		}

		event, err := wyoming.ReadEvent(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil // Peer-initiated close is the normal terminal transition
			}
			return fmt.Errorf("failed to read event: %w", err)
		}

		if err := controller.HandleEvent(event); err != nil {
			return fmt.Errorf("session %s: %w", controller.ID(), err)
		}
	}
}

// Sessions returns a snapshot of all active sessions for monitoring
func (s *Server) Sessions() []session.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]session.Info, 0, len(s.sessions))
	for _, controller := range s.sessions {
		infos = append(infos, controller.Info())
	}
	return infos
}

// ActiveSessionCount returns the number of currently connected sessions
func (s *Server) ActiveSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) register(controller *session.Controller) {
	s.mu.Lock()
	s.sessions[controller.ID()] = controller
	s.mu.Unlock()
}

func (s *Server) unregister(controller *session.Controller) {
	s.mu.Lock()
	delete(s.sessions, controller.ID())
	s.mu.Unlock()
}

// splitURI splits "scheme://address" into its parts
func splitURI(uri string) (scheme, address string, err error) {
	scheme, address, found := strings.Cut(uri, "://")
	if !found || scheme == "" {
		return "", "", fmt.Errorf("invalid URI %q (want scheme://address)", uri)
	}
	return scheme, address, nil
}

// eventWriter serializes event writes to one connection
type eventWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// WriteEvent writes one event to the connection
func (ew *eventWriter) WriteEvent(event *wyoming.Event) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return wyoming.WriteEvent(ew.w, event)
}
