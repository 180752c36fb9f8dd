package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Addr:   "127.0.0.1:0",
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForClients(t *testing.T, server *Server, want int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for server.ClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("expected %d clients, have %d", want, server.ClientCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Addr: "127.0.0.1:0"})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.Addr() == "" {
		t.Fatal("expected a listening address")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	server := startTestServer(t)
	conn := dial(t, server)
	waitForClients(t, server, 1)

	server.BroadcastSyncUpdate(SyncUpdateData{WorkspaceID: "ws1", Pulled: 2, Conflicts: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	if msg.Type != MessageTypeSyncUpdate {
		t.Errorf("Type = %q", msg.Type)
	}
	var payload SyncUpdateData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if payload.WorkspaceID != "ws1" || payload.Pulled != 2 || payload.Conflicts != 1 {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestNotifierBroadcastsAndForwards(t *testing.T) {
	server := startTestServer(t)
	conn := dial(t, server)
	waitForClients(t, server, 1)

	var forwarded []string
	next := new(notifierFunc)
	next.infos = &forwarded
	notifier := NewNotifier(server, next)
	notifier.Info("synced")
	notifier.Err(errors.New("boom"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, wantLevel := range []string{"info", "error"} {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed to read broadcast: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		if msg.Type != MessageTypeNotification {
			t.Errorf("Type = %q", msg.Type)
		}
		var payload NotificationData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		if payload.Level != wantLevel {
			t.Errorf("Level = %q, want %q", payload.Level, wantLevel)
		}
	}

	if len(forwarded) != 2 {
		t.Errorf("expected 2 forwarded notifications, got %v", forwarded)
	}
}

func TestClientDisconnectIsNoticed(t *testing.T) {
	server := startTestServer(t)
	conn := dial(t, server)
	waitForClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, 0)
}

type notifierFunc struct {
	infos *[]string
}

func (n *notifierFunc) Info(msg string) { *n.infos = append(*n.infos, msg) }
func (n *notifierFunc) Err(err error)   { *n.infos = append(*n.infos, err.Error()) }
