package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fleetops/internal/events"
)

// verifySignature checks X-Signature the way a receiver would.
func verifySignature(secret string, body []byte, provided string) bool {
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

type received struct {
	sig, typ, dest, id string
	body               []byte
}

func startForwarder(t *testing.T, hub *events.Hub, targets []Target, opts Options) {
	t.Helper()
	f := NewForwarder(hub, targets, nil, opts)
	f.backoff = func(int) time.Duration { return time.Millisecond }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	deadline := time.Now().Add(2 * time.Second)
	for _, topic := range f.topics {
		for hub.Subscribers(topic) == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("forwarder did not subscribe to %s", topic)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestForwarderSignsAndDelivers(t *testing.T) {
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			sig:  r.Header.Get("X-Signature"),
			typ:  r.Header.Get("X-Event-Type"),
			dest: r.Header.Get("X-Event-Destination"),
			id:   r.Header.Get("X-Event-Id"),
			body: body,
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hub := events.NewHub()
	startForwarder(t, hub, []Target{{URL: srv.URL, Secret: "secret"}}, Options{Topics: []string{events.TopicRoutes}})

	hub.Publish(events.TopicDrivers, events.Message{EventID: "ignored", ID: 9, ChangeType: events.Created})
	hub.Publish(events.TopicRoutes, events.Message{EventID: "evt-1", ID: 3, ChangeType: events.Updated, DTO: json.RawMessage(`{"id":3}`)})

	var r received
	select {
	case r = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	if r.id != "evt-1" || r.typ != "UPDATED" || r.dest != events.TopicRoutes {
		t.Fatalf("unexpected headers: %+v", r)
	}
	if !verifySignature("secret", r.body, r.sig) {
		t.Fatalf("signature %q does not match body %s", r.sig, r.body)
	}
	var payload struct {
		Destination string `json:"destination"`
		ID          int64  `json:"id"`
		DTO         struct {
			ID int64 `json:"id"`
		} `json:"dto"`
	}
	if err := json.Unmarshal(r.body, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Destination != events.TopicRoutes || payload.ID != 3 || payload.DTO.ID != 3 {
		t.Fatalf("unexpected payload: %s", r.body)
	}
	select {
	case extra := <-got:
		t.Fatalf("unsubscribed topic forwarded: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestForwarderRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	ok := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		close(ok)
	}))
	defer srv.Close()

	hub := events.NewHub()
	startForwarder(t, hub, []Target{{URL: srv.URL}}, Options{Topics: []string{events.TopicOrders}, MaxAttempts: 5})
	hub.Publish(events.TopicOrders, events.Message{EventID: "e", ID: 1, ChangeType: events.Deleted})

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatalf("not delivered after %d calls", calls.Load())
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestForwarderGivesUpAfterMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hub := events.NewHub()
	startForwarder(t, hub, []Target{{URL: srv.URL}}, Options{Topics: []string{events.TopicOrders}, MaxAttempts: 2})
	hub.Publish(events.TopicOrders, events.Message{EventID: "e", ID: 1, ChangeType: events.Created})

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestSignature(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := sign("k", body)
	if !verifySignature("k", body, sig) {
		t.Fatal("round trip failed")
	}
	if verifySignature("other", body, sig) || verifySignature("k", body, "zz") {
		t.Fatal("accepted a bad signature")
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(-1) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatal("unexpected backoff")
	}
	if nextBackoff(50) != 1024*time.Second {
		t.Fatalf("cap not applied: %v", nextBackoff(50))
	}
}
