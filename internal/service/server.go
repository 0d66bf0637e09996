package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caucus-ai/caucus/internal/events"
)

// Command represents a request sent over the control socket.
type Command struct {
	Type      string            `json:"type"` // "submit", "result", "status", "stream", "clear"
	Goal      string            `json:"goal,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	RunID     string            `json:"run_id,omitempty"`    // Target run (result, stream, clear)
	Team      string            `json:"team,omitempty"`      // Target team (clear)
	Objective string            `json:"objective,omitempty"` // Target objective (clear)
	Timestamp time.Time         `json:"timestamp"`
}

// Response represents a reply to a one-shot command. Stream commands
// instead emit one Response acknowledging the stream, followed by
// newline-delimited events.
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// streamBuffer is how many events a slow stream client may fall behind
// before the stream drops.
const streamBuffer = 256

// Server exposes the engine over a unix domain socket.
type Server struct {
	socketPath string
	engine     *Engine
	listener   net.Listener

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewServer creates a control server for an engine.
// socketPath should be something like /tmp/caucus-<instance-id>.sock.
func NewServer(socketPath string, engine *Engine) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	// Remove a socket left by a crashed previous instance
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}
	return &Server{
		socketPath: socketPath,
		engine:     engine,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening for commands.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Accept with a deadline so the stop channel gets checked
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(1 * time.Second)); err != nil {
			fmt.Fprintf(os.Stderr, "service: failed to set deadline: %v\n", err)
			continue
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			fmt.Fprintf(os.Stderr, "service: accept error: %v\n", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		fmt.Fprintf(os.Stderr, "service: failed to set read deadline: %v\n", err)
		return
	}

	decoder := json.NewDecoder(conn)
	var cmd Command
	if err := decoder.Decode(&cmd); err != nil {
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}

	switch cmd.Type {
	case "submit":
		runID, err := s.engine.Submit(ctx, cmd.Goal, cmd.Context)
		if err != nil {
			s.sendError(conn, err.Error())
			return
		}
		s.sendResponse(conn, Response{
			Success: true,
			Message: "mission submitted",
			Data:    map[string]interface{}{"run_id": runID},
		})

	case "result":
		result, err := s.engine.Result(ctx, cmd.RunID)
		if err != nil {
			s.sendError(conn, err.Error())
			return
		}
		if result == nil {
			s.sendResponse(conn, Response{Success: true, Message: "pending"})
			return
		}
		data, err := json.Marshal(result)
		if err != nil {
			s.sendError(conn, fmt.Sprintf("failed to marshal result: %v", err))
			return
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			s.sendError(conn, fmt.Sprintf("failed to encode result: %v", err))
			return
		}
		s.sendResponse(conn, Response{Success: true, Message: "completed", Data: payload})

	case "status":
		s.sendResponse(conn, Response{Success: true, Message: "ok", Data: s.engine.Status(ctx)})

	case "stream":
		s.streamEvents(ctx, conn, cmd.RunID)

	case "clear":
		if err := s.engine.ClearPrune(cmd.RunID, cmd.Team, cmd.Objective, cmd.Context); err != nil {
			s.sendError(conn, err.Error())
			return
		}
		s.sendResponse(conn, Response{
			Success: true,
			Message: fmt.Sprintf("prune suggestion cleared for team %s", cmd.Team),
		})

	default:
		s.sendError(conn, fmt.Sprintf("unknown command type %q", cmd.Type))
	}
}

// streamEvents replays the transcript for a run prefix, then follows
// live events until the client disconnects or the server stops. Each
// event is one JSON line.
func (s *Server) streamEvents(ctx context.Context, conn net.Conn, runPrefix string) {
	// Streams are long-lived; clear the read deadline set for the command
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		fmt.Fprintf(os.Stderr, "service: failed to clear read deadline: %v\n", err)
		return
	}
	s.sendResponse(conn, Response{Success: true, Message: "streaming"})

	bus := s.engine.Bus()
	encoder := json.NewEncoder(conn)

	// Live events land in a buffered channel so a stalled client drops
	// the stream instead of stalling the bus.
	live := make(chan events.Event, streamBuffer)
	sub := bus.Subscribe(runPrefix, func(e events.Event) {
		select {
		case live <- e:
		default:
		}
	})
	defer sub.Cancel()

	// The subscription is active before replay, so events published
	// during the replay are buffered rather than lost. Duplicates are
	// filtered by ID.
	sent := make(map[string]bool)
	for _, e := range bus.Replay(events.EventFilter{RunPrefix: runPrefix}) {
		if err := encoder.Encode(e); err != nil {
			return
		}
		sent[e.ID] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case e := <-live:
			if sent[e.ID] {
				delete(sent, e.ID)
				continue
			}
			if err := encoder.Encode(e); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendError(conn net.Conn, message string) {
	s.sendResponse(conn, Response{Success: false, Message: message, Error: message})
}

func (s *Server) sendResponse(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "service: failed to send response: %v\n", err)
	}
}

// Stop stops the server and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "service: error closing listener: %v\n", err)
		}
	}
	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		fmt.Fprintf(os.Stderr, "service: timeout waiting for shutdown\n")
	}
	if err := os.RemoveAll(s.socketPath); err != nil {
		fmt.Fprintf(os.Stderr, "service: failed to remove socket file: %v\n", err)
	}
	return nil
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}
