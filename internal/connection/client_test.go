package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:          url,
		PingTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_BearerOnHandshake(t *testing.T) {
	var gotAuth string
	var mu sync.Mutex

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer server.Close()

	cfg := testClientConfig(wsURL(server))
	cfg.Token = "session-token"

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer session-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer session-token")
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	testMsg := []byte(`{"test": "message"}`)
	if err := client.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(testClientConfig("ws://127.0.0.1:1"), nil)
	if err := client.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"topic": "posts/1", "type": "post_updated"}`,
		`{"topic": "posts/2", "type": "post_updated"}`,
		`{"topic": "messages/u1", "type": "message"}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	for i := range testMessages {
		select {
		case frame := <-client.Messages():
			if string(frame.Data) != testMessages[i] {
				t.Errorf("message %d = %q, want %q", i, frame.Data, testMessages[i])
			}
			if frame.ReceivedAt.IsZero() {
				t.Error("frame missing receive timestamp")
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestClient_ErrorOnServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the connection without a close handshake.
		conn.Close()
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case <-client.Errors():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a transport error after server close")
	}
}
