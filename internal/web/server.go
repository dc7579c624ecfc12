// Package web bridges browser frontends to the session manager over a
// websocket. It carries UI events only: inbound send/new-session frames,
// outbound turn and history frames. Rendering is the frontend's problem.
package web

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"GemChat/internal/attachment"
	"GemChat/internal/session"
)

// Frame types exchanged with the frontend
const (
	FrameSend       = "send"        // inbound: run one exchange
	FrameNewSession = "new_session" // inbound: clear the session
	FrameTurn       = "turn"        // outbound: a turn was appended
	FrameHistory    = "history"     // outbound: full turn log
	FrameBusy       = "busy"        // outbound: send dropped, exchange in flight
)

// Frame is the wire envelope for both directions
type Frame struct {
	Type        string         `json:"type"`
	Text        string         `json:"text,omitempty"`
	Attachments []FrameAttach  `json:"attachments,omitempty"`
	Turn        *session.Turn  `json:"turn,omitempty"`
	Turns       []session.Turn `json:"turns,omitempty"`
}

// FrameAttach carries one attachment with base64 content
type FrameAttach struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Server serves the websocket UI-event endpoint
type Server struct {
	addr     string
	manager  *session.Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// conn is one connected frontend. Writes are serialized through mu so the
// broadcast path and per-request replies never interleave a frame.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeFrame(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(f)
}

// NewServer creates a websocket bridge for the given session manager.
// It registers a turn listener, so construct it before traffic starts.
func NewServer(addr string, manager *session.Manager, logger *slog.Logger) *Server {
	s := &Server{
		addr:    addr,
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*conn]struct{}),
	}

	manager.OnTurn(func(turn session.Turn) {
		s.broadcast(&Frame{Type: FrameTurn, Turn: &turn})
	})

	return s
}

// ListenAndServe runs the HTTP server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web bridge listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws, id: uuid.NewString()}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("frontend connected", "conn_id", c.id)

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		ws.Close()
		s.logger.Info("frontend disconnected", "conn_id", c.id)
	}()

	// New connections get the current log up front.
	if err := c.writeFrame(&Frame{Type: FrameHistory, Turns: s.manager.Turns()}); err != nil {
		s.logger.Warn("failed to send history frame", "error", err)
		return
	}

	for {
		var frame Frame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		s.handleFrame(r.Context(), c, &frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, c *conn, frame *Frame) {
	switch frame.Type {
	case FrameSend:
		atts, err := decodeAttachments(frame.Attachments)
		if err != nil {
			s.logger.Warn("dropping send frame with bad attachment", "error", err)
			return
		}
		// Off the read loop, so overlapping sends still reach the
		// single-flight guard and get their busy reply.
		go func() {
			if !s.manager.Send(ctx, frame.Text, atts) {
				if err := c.writeFrame(&Frame{Type: FrameBusy}); err != nil {
					s.logger.Warn("failed to send busy frame", "error", err)
				}
			}
		}()

	case FrameNewSession:
		s.manager.NewSession(ctx)
		if err := c.writeFrame(&Frame{Type: FrameHistory, Turns: s.manager.Turns()}); err != nil {
			s.logger.Warn("failed to send history frame", "error", err)
		}

	default:
		s.logger.Warn("unknown frame type", "type", frame.Type)
	}
}

func (s *Server) broadcast(frame *Frame) {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.writeFrame(frame); err != nil {
			s.logger.Warn("failed to broadcast frame", "error", err)
		}
	}
}

func decodeAttachments(frames []FrameAttach) ([]attachment.Attachment, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	atts := make([]attachment.Attachment, len(frames))
	for i, f := range frames {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", f.Name, err)
		}
		atts[i] = attachment.Attachment{Name: f.Name, MIMEType: f.MIMEType, Data: data}
	}
	return atts, nil
}
