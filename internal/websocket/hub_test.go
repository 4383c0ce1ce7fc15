package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/collections-go/internal/models"
)

func TestHub(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Mock client
	client := &Client{
		hub:  hub,
		send: make(chan []byte, 1),
	}

	// Test registration
	hub.register <- client
	// Allow the hub to process the register message
	time.Sleep(10 * time.Millisecond)
	if len(hub.clients) != 1 {
		t.Fatalf("Expected 1 client after registration, got %d", len(hub.clients))
	}

	// Test broadcast
	hub.BroadcastJSON(models.ProgressUpdate{Type: models.UpdateProgress, JobID: "j1", State: models.JobRunning, Done: 1, Total: 2, Progress: 50})

	select {
	case received := <-client.send:
		assert.Contains(t, string(received), `"job_id":"j1"`)
		assert.Contains(t, string(received), `"progress":50`)
	case <-time.After(1 * time.Second):
		t.Fatal("Client did not receive broadcast message in time")
	}

	// Test unregistration
	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	if len(hub.clients) != 0 {
		t.Fatalf("Expected 0 clients after unregistration, got %d", len(hub.clients))
	}
}

type fakeSubscription struct {
	ch     chan models.ProgressUpdate
	closed chan struct{}
}

func (f *fakeSubscription) Updates() <-chan models.ProgressUpdate { return f.ch }
func (f *fakeSubscription) Close() {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
}

func TestServeJobStream(t *testing.T) {
	sub := &fakeSubscription{ch: make(chan models.ProgressUpdate, 4), closed: make(chan struct{})}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeJobStream(w, r, sub)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	sub.ch <- models.ProgressUpdate{Type: models.UpdateProgress, JobID: "j1", State: models.JobRunning, Done: 2, Total: 4, Progress: 50}
	sub.ch <- models.ProgressUpdate{Type: models.UpdateKeepalive, JobID: "j1"}
	sub.ch <- models.ProgressUpdate{Type: models.UpdateProgress, JobID: "j1", State: models.JobCompleted, Done: 4, Total: 4, Progress: 100}
	close(sub.ch)

	var first, last models.ProgressUpdate
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 2, first.Done)
	require.NoError(t, conn.ReadJSON(&last))
	assert.Equal(t, models.JobCompleted, last.State)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestServeJobStreamPingsIdlePeers(t *testing.T) {
	oldWait, oldPeriod := pongWait, pingPeriod
	pongWait, pingPeriod = 200*time.Millisecond, 40*time.Millisecond
	t.Cleanup(func() { pongWait, pingPeriod = oldWait, oldPeriod })

	// No keepalive updates at all: only the stream's own pings keep the
	// connection alive.
	sub := &fakeSubscription{ch: make(chan models.ProgressUpdate, 1), closed: make(chan struct{})}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeJobStream(w, r, sub)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	pings := make(chan struct{}, 64)
	conn.SetPingHandler(func(data string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	updates := make(chan models.ProgressUpdate, 1)
	go func() {
		var u models.ProgressUpdate
		if err := conn.ReadJSON(&u); err == nil {
			updates <- u
		}
	}()

	// Idle for well past the pong deadline.
	time.Sleep(3 * pongWait)
	assert.GreaterOrEqual(t, len(pings), 3)

	sub.ch <- models.ProgressUpdate{Type: models.UpdateProgress, JobID: "j1", State: models.JobCompleted, Done: 1, Total: 1, Progress: 100}
	select {
	case u := <-updates:
		assert.Equal(t, models.JobCompleted, u.State)
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not survive the idle period")
	}
}
