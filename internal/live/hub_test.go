package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Subscribe(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialTestHub(t, hub)

	// Wait for the server side to register the subscription.
	deadline := time.After(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(time.Millisecond):
		}
	}

	hub.Broadcast([]byte(`{"positions":[]}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"positions":[]}` {
		t.Errorf("message = %s", msg)
	}
}

func TestHubDropsDeadSubscriber(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialTestHub(t, hub)

	deadline := time.After(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(time.Millisecond):
		}
	}

	conn.Close()

	// Broadcasts to a closed connection eventually fail and evict it.
	deadline = time.After(2 * time.Second)
	for hub.SubscriberCount() > 0 {
		hub.Broadcast([]byte("ping"))
		select {
		case <-deadline:
			t.Fatal("dead subscriber never dropped")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialTestHub(t, hub)
	_ = conn

	deadline := time.After(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(time.Millisecond):
		}
	}

	hub.Unsubscribe(1)
	hub.Unsubscribe(1) // second call is a no-op
	if got := hub.SubscriberCount(); got != 0 {
		t.Errorf("subscriber count = %d, want 0", got)
	}
}
