package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetops/internal/events"
)

// Change feed over WebSocket. The client sends connection_init, then one
// subscribe per destination; every committed change arrives as a next
// message carrying the event. complete cancels a subscription.

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
	wsWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Destination string `json:"destination"`
}

type wsError struct {
	Message string `json:"message"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) fail(id, message string) {
	payload, _ := json.Marshal(wsError{Message: message})
	_ = c.send(wsMessage{Type: "error", ID: id, Payload: payload})
	_ = c.send(wsMessage{Type: "complete", ID: id})
}

// ChangeFeedHandler handles /ws
func (s *Server) ChangeFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	log := s.Log.WithContext(r.Context())
	c := &wsConn{conn: conn}

	type sub struct {
		destination string
		ch          chan events.Message
	}
	subs := map[string]sub{}
	var wg sync.WaitGroup
	done := make(chan struct{})
	defer func() {
		close(done)
		for id, sb := range subs {
			s.Bus.Unsubscribe(sb.destination, sb.ch)
			delete(subs, id)
		}
		wg.Wait()
	}()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	initialized := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			if initialized {
				continue
			}
			initialized = true
			_ = c.send(wsMessage{Type: "connection_ack"})
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(wsPingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := c.send(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = c.send(wsMessage{Type: "pong"})
		case "subscribe":
			if !initialized {
				c.fail(msg.ID, "connection_init required")
				continue
			}
			if msg.ID == "" {
				c.fail(msg.ID, "subscription id required")
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				c.fail(msg.ID, "subscription id already in use")
				continue
			}
			var pl subscribePayload
			if err := json.Unmarshal(msg.Payload, &pl); err != nil || !slices.Contains(events.Topics, pl.Destination) {
				c.fail(msg.ID, "unknown destination")
				continue
			}
			ch := s.Bus.Subscribe(pl.Destination)
			subs[msg.ID] = sub{destination: pl.Destination, ch: ch}
			log.Debug("change feed subscribed", "id", msg.ID, "destination", pl.Destination)
			wg.Add(1)
			go func(id string, ch chan events.Message) {
				defer wg.Done()
				for evt := range ch {
					payload, err := json.Marshal(evt)
					if err != nil {
						continue
					}
					if err := c.send(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
				}
			}(msg.ID, ch)
		case "complete":
			if sb, ok := subs[msg.ID]; ok {
				s.Bus.Unsubscribe(sb.destination, sb.ch)
				delete(subs, msg.ID)
			}
		}
	}
}
