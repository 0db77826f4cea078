package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"grandbridge/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func serveRoom(t *testing.T, h *Hub, eventID int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, eventID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(zap.NewNop())
	srv := serveRoom(t, h, 1)

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients(1) == 2 }, time.Second, 10*time.Millisecond)

	h.Publish(1, Message{ID: 5, Content: "hello", Username: "nan", UserID: 2, Timestamp: "2025-03-01 10:00:00"})
	h.Publish(2, Message{ID: 6, Content: "other room"})

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		var got Message
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, int64(5), got.ID)
		assert.Equal(t, "hello", got.Content)
	}

	a.Close()
	b.Close()
	require.Eventually(t, func() bool { return h.Clients(1) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubClose(t *testing.T) {
	h := NewHub(zap.NewNop())
	srv := serveRoom(t, h, 3)

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.Clients(3) == 1 }, time.Second, 10*time.Millisecond)

	h.Close()
	require.Eventually(t, func() bool { return h.Clients(3) == 0 }, time.Second, 10*time.Millisecond)
}

func TestReceive(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := &client{send: make(chan []byte, 1)}
	h.join(9, c)

	msg := json.RawMessage(`{"id":1}`)
	own, _ := json.Marshal(envelope{Origin: h.id, EventID: 9, Message: msg})
	h.receive(subject(9), own)
	assert.Len(t, c.send, 0, "own messages are already delivered locally")

	mismatch, _ := json.Marshal(envelope{Origin: "other", EventID: 8, Message: msg})
	h.receive(subject(9), mismatch)
	assert.Len(t, c.send, 0)

	h.receive(subject(9), []byte("not json"))
	assert.Len(t, c.send, 0)

	remote, _ := json.Marshal(envelope{Origin: "other", EventID: 9, Message: msg})
	h.receive(subject(9), remote)
	require.Len(t, c.send, 1)
	assert.JSONEq(t, `{"id":1}`, string(<-c.send))

	h.leave(9, c)
	assert.Equal(t, 0, h.Clients(9))
}

func TestFromModel(t *testing.T) {
	m := model.ChatMessage{
		ID: 4, UserID: 2, Username: "pops", Content: "see you there",
		CreatedAt: time.Date(2025, 3, 1, 9, 30, 5, 0, time.UTC),
	}
	got := FromModel(m, time.UTC)
	assert.Equal(t, Message{ID: 4, Content: "see you there", Username: "pops", UserID: 2, Timestamp: "2025-03-01 09:30:05"}, got)
}

func TestNATSBridge(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	nc1, err := Connect(url, zap.NewNop())
	require.NoError(t, err)
	defer nc1.Close()
	nc2, err := Connect(url, zap.NewNop())
	require.NoError(t, err)
	defer nc2.Close()

	sender, receiver := NewHub(zap.NewNop()), NewHub(zap.NewNop())
	require.NoError(t, sender.Attach(nc1))
	require.NoError(t, receiver.Attach(nc2))
	defer sender.Close()
	defer receiver.Close()
	require.NoError(t, nc2.Flush())

	c := &client{send: make(chan []byte, 1)}
	receiver.join(11, c)
	sender.Publish(11, Message{ID: 1, Content: "across"})

	select {
	case data := <-c.send:
		assert.Contains(t, string(data), "across")
	case <-time.After(2 * time.Second):
		t.Fatal("message not relayed")
	}
}
