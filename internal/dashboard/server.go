// Package dashboard exposes the mirror's sync status over HTTP: a WebSocket
// endpoint broadcasting pass-phase and command-rejection notices, and a JSON
// status endpoint for one-shot queries.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vaultsync/vaultsync/internal/engine"
)

// MessageType defines the type of broadcast message.
type MessageType string

const (
	// MessageTypePassStarted indicates a reconciliation pass began.
	MessageTypePassStarted MessageType = "pass_started"

	// MessageTypePassSucceeded indicates a pass completed and committed its
	// cursor.
	MessageTypePassSucceeded MessageType = "pass_succeeded"

	// MessageTypePassFailed indicates a pass aborted.
	MessageTypePassFailed MessageType = "pass_failed"

	// MessageTypeCommandRejected indicates the remote rejected one outbound
	// command.
	MessageTypeCommandRejected MessageType = "command_rejected"
)

// Message is one broadcast payload.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PassData describes a pass-phase notification.
type PassData struct {
	Full      bool   `json:"full"`
	Created   int    `json:"created,omitempty"`
	Updated   int    `json:"updated,omitempty"`
	Relocated int    `json:"relocated,omitempty"`
	Removed   int    `json:"removed,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RejectData describes one rejected command.
type RejectData struct {
	Intent    string `json:"intent"`
	EntityID  string `json:"entity_id"`
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

// StatusSource supplies the /status snapshot.
type StatusSource interface {
	Status() StatusData
}

// StatusData is the /status response body.
type StatusData struct {
	Cursor         string `json:"cursor"`
	Projects       int    `json:"projects"`
	Sections       int    `json:"sections"`
	Tasks          int    `json:"tasks"`
	PendingIntents int    `json:"pending_intents"`
	QueueState     string `json:"queue_state"`
}

// Server manages WebSocket connections and broadcasts status messages.
// It implements engine.Notifier.
type Server struct {
	addr     string
	source   StatusSource
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

var _ engine.Notifier = (*Server)(nil)

// NewServer creates a status server listening on addr. source may be nil,
// in which case /status reports zeros.
func NewServer(addr string, source StatusSource, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		source:    source,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins serving. Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Status server listening on %s", s.listener.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Status server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}

// PassStarted implements engine.Notifier.
func (s *Server) PassStarted(full bool) {
	s.send(MessageTypePassStarted, PassData{Full: full})
}

// PassSucceeded implements engine.Notifier.
func (s *Server) PassSucceeded(full bool, stats engine.Stats) {
	s.send(MessageTypePassSucceeded, PassData{
		Full:      full,
		Created:   stats.Created,
		Updated:   stats.Updated,
		Relocated: stats.Relocated,
		Removed:   stats.Removed,
		Skipped:   stats.Skipped,
		Failed:    stats.Failed,
	})
}

// PassFailed implements engine.Notifier.
func (s *Server) PassFailed(full bool, err error) {
	s.send(MessageTypePassFailed, PassData{Full: full, Error: err.Error()})
}

// CommandRejected broadcasts one rejected outbound command.
func (s *Server) CommandRejected(intent, entityID string, code int, msg string) {
	s.send(MessageTypeCommandRejected, RejectData{
		Intent:    intent,
		EntityID:  entityID,
		ErrorCode: code,
		Error:     msg,
	})
}

func (s *Server) send(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", typ, err)
		return
	}
	msg := Message{Type: typ, Timestamp: time.Now(), Data: raw}
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop fans messages out to all connected clients.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades connections and registers them for broadcasts.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Status client connected (total: %d)", count)

	go s.readLoop(conn)
}

// readLoop keeps a connection alive and notices disconnects. Client
// messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	_, exists := s.clients[conn]
	if exists {
		delete(s.clients, conn)
	}
	count := len(s.clients)
	s.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Status client disconnected (total: %d)", count)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var data StatusData
	if s.source != nil {
		data = s.source.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}
