package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleetops/internal/events"
)

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestChangeFeedDeliversCommittedEvents(t *testing.T) {
	s, h := newTestServer(t, Options{})
	srv := httptest.NewServer(h)
	defer srv.Close()
	conn := dialFeed(t, srv)

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if msg := readMsg(t, conn); msg.Type != "connection_ack" {
		t.Fatalf("expected ack, got %+v", msg)
	}

	bad, _ := json.Marshal(subscribePayload{Destination: "/topic/nope"})
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "x", Payload: bad})
	if msg := readMsg(t, conn); msg.Type != "error" || msg.ID != "x" {
		t.Fatalf("expected error, got %+v", msg)
	}
	if msg := readMsg(t, conn); msg.Type != "complete" {
		t.Fatalf("expected complete, got %+v", msg)
	}

	pl, _ := json.Marshal(subscribePayload{Destination: events.TopicDrivers})
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl})
	deadline := time.Now().Add(2 * time.Second)
	for s.Bus.(*events.Hub).Subscribers(events.TopicDrivers) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	id := createID(t, h, "/api/drivers", map[string]any{"firstName": "Anna", "lastName": "Ivanova", "passport": "1111 222222"})
	msg := readMsg(t, conn)
	if msg.Type != "next" || msg.ID != "1" {
		t.Fatalf("expected next, got %+v", msg)
	}
	var evt events.Message
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if evt.ChangeType != events.Created || evt.ID != id || evt.EventID == "" {
		t.Fatalf("event: %+v", evt)
	}

	// failed writes publish nothing
	rr := do(t, h, http.MethodPost, "/api/drivers", map[string]any{"firstName": "Anna"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid create: %d", rr.Code)
	}
	_ = conn.WriteJSON(wsMessage{Type: "ping"})
	if msg := readMsg(t, conn); msg.Type != "pong" {
		t.Fatalf("expected pong before any further event, got %+v", msg)
	}
}
