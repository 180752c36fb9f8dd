// Package dashboard streams workspace activity to WebSocket clients.
//
// The server broadcasts sync pass results, publish outcomes, conflicts
// and badge announcements as JSON messages, enabling a UI to mirror the
// engine state in real time. Clients are write-only from the server's
// point of view; inbound messages are drained and ignored.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType discriminates dashboard messages.
type MessageType string

const (
	// MessageTypeSyncUpdate reports a completed sync pass.
	MessageTypeSyncUpdate MessageType = "sync_update"

	// MessageTypePublishUpdate reports a publish outcome for a file.
	MessageTypePublishUpdate MessageType = "publish_update"

	// MessageTypeConflict reports a divergence needing user resolution.
	MessageTypeConflict MessageType = "conflict"

	// MessageTypeBadge reports a newly earned badge.
	MessageTypeBadge MessageType = "badge"

	// MessageTypeNotification carries a free-form notifier message.
	MessageTypeNotification MessageType = "notification"
)

// Message is one dashboard broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncUpdateData summarizes a sync pass.
type SyncUpdateData struct {
	WorkspaceID string `json:"workspaceId"`
	Pulled      int    `json:"pulled"`
	Pushed      int    `json:"pushed"`
	Created     int    `json:"created"`
	Deleted     int    `json:"deleted"`
	Conflicts   int    `json:"conflicts"`
	Failed      int    `json:"failed"`
}

// PublishUpdateData reports a publish outcome.
type PublishUpdateData struct {
	FileID    string `json:"fileId"`
	FileName  string `json:"fileName"`
	Locations int    `json:"locations"`
}

// ConflictData reports a file needing user resolution.
type ConflictData struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Path     string `json:"path"`
}

// writeTimeout bounds each per-client send.
const writeTimeout = 5 * time.Second

// Config holds server configuration.
type Config struct {
	// Addr to listen on, for example "127.0.0.1:8148".
	Addr string

	// Logger for server activity. Nil uses a default stderr logger.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "127.0.0.1:8148",
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server accepts WebSocket subscribers and fans broadcast messages out
// to them.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	logger   *log.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a dashboard server.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      cfg.Addr,
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins listening and serving subscribers.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop closes all subscriber connections and shuts the server down.
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
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected subscribers.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast queues a message for all subscribers. A full queue drops
// the message rather than blocking the engine.
func (s *Server) Broadcast(msgType MessageType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to encode %s payload: %v", msgType, err)
		return
	}
	msg := Message{Type: msgType, Timestamp: time.Now(), Data: payload}

	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("Warning: broadcast queue full, dropping %s", msgType)
	}
}

// BroadcastSyncUpdate reports a completed sync pass.
func (s *Server) BroadcastSyncUpdate(data SyncUpdateData) {
	s.Broadcast(MessageTypeSyncUpdate, data)
}

// BroadcastPublishUpdate reports a publish outcome.
func (s *Server) BroadcastPublishUpdate(data PublishUpdateData) {
	s.Broadcast(MessageTypePublishUpdate, data)
}

// BroadcastConflict reports a file needing user resolution.
func (s *Server) BroadcastConflict(data ConflictData) {
	s.Broadcast(MessageTypeConflict, data)
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to encode message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

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
	s.logger.Printf("Subscriber connected (total: %d)", count)

	go s.readLoop(conn)
}

// readLoop drains inbound frames until the subscriber disconnects.
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
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Subscriber disconnected (total: %d)", count)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
