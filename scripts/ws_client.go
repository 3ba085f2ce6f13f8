// Package main tails the change feed: it subscribes to the given topics (all
// of them by default) and prints every event until interrupted.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"

	"github.com/gorilla/websocket"

	"fleetops/internal/events"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := flag.String("addr", "localhost:"+port, "server host:port")
	flag.Parse()

	topics := flag.Args()
	if len(topics) == 0 {
		topics = events.Topics
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	dest := make(map[string]string, len(topics))
	for i, topic := range topics {
		id := strconv.Itoa(i + 1)
		dest[id] = topic
		pl, _ := json.Marshal(map[string]string{"destination": topic})
		if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: id, Payload: pl}); err != nil {
			log.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			switch m.Type {
			case "next":
				var evt events.Message
				if err := json.Unmarshal(m.Payload, &evt); err != nil {
					log.Printf("bad payload: %v", err)
					continue
				}
				fmt.Printf("%s %s id=%d %s\n", dest[m.ID], evt.ChangeType, evt.ID, evt.DTO)
			case "error", "complete":
				log.Printf("%s %s: %s", m.Type, dest[m.ID], m.Payload)
			default:
				log.Printf("<- %s", m.Type)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case <-sig:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-done:
	}
}
