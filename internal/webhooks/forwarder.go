// Package webhooks forwards committed change events to external HTTP
// endpoints. Each target has its own queue and retries with exponential
// backoff; a full queue drops the event.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fleetops/internal/events"
	"fleetops/internal/logging"
	"fleetops/internal/metrics"
)

const queueSize = 256

// Target is one receiving endpoint. An empty Secret sends unsigned requests.
type Target struct {
	URL    string
	Secret string
}

// Delivery is one event bound for one target.
type Delivery struct {
	Topic    string
	Message  events.Message
	Payload  []byte
	Attempts int
}

type Options struct {
	// Topics to forward; nil means all of them.
	Topics      []string
	MaxAttempts int
	Timeout     time.Duration
}

type Forwarder struct {
	bus         events.Bus
	targets     []Target
	topics      []string
	http        *http.Client
	maxAttempts int
	log         logging.Logger
	backoff     func(attempts int) time.Duration
}

func NewForwarder(bus events.Bus, targets []Target, log logging.Logger, opts Options) *Forwarder {
	if log == nil {
		log = logging.Nop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Topics == nil {
		opts.Topics = events.Topics
	}
	return &Forwarder{
		bus:         bus,
		targets:     targets,
		topics:      opts.Topics,
		http:        &http.Client{Timeout: opts.Timeout},
		maxAttempts: opts.MaxAttempts,
		log:         log.With("component", "webhooks"),
		backoff:     nextBackoff,
	}
}

type topicMessage struct {
	topic string
	msg   events.Message
}

// Run forwards events until ctx is done.
func (f *Forwarder) Run(ctx context.Context) {
	if len(f.targets) == 0 {
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup
	queues := make([]chan Delivery, len(f.targets))
	for i, t := range f.targets {
		q := make(chan Delivery, queueSize)
		queues[i] = q
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.work(ctx, t, q)
		}()
	}

	in := make(chan topicMessage)
	subs := make(map[string]chan events.Message, len(f.topics))
	for _, topic := range f.topics {
		ch := f.bus.Subscribe(topic)
		subs[topic] = ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range ch {
				select {
				case in <- topicMessage{topic: topic, msg: m}:
				case <-ctx.Done():
				}
			}
		}()
	}
	f.log.Info("webhook forwarder started", "targets", len(f.targets), "topics", len(f.topics))

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case tm := <-in:
			f.enqueue(queues, tm)
		}
	}

	for topic, ch := range subs {
		f.bus.Unsubscribe(topic, ch)
	}
	wg.Wait()
}

func (f *Forwarder) enqueue(queues []chan Delivery, tm topicMessage) {
	body, err := json.Marshal(struct {
		Destination string `json:"destination"`
		events.Message
	}{tm.topic, tm.msg})
	if err != nil {
		f.log.Error("webhook payload encode failed", "err", err)
		return
	}
	for i, q := range queues {
		select {
		case q <- Delivery{Topic: tm.topic, Message: tm.msg, Payload: body}:
		default:
			metrics.WebhookDeliveries.WithLabelValues("dropped").Inc()
			f.log.Warn("webhook queue full, event dropped", "url", f.targets[i].URL, "eventId", tm.msg.EventID)
		}
	}
}

func (f *Forwarder) work(ctx context.Context, t Target, q <-chan Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-q:
			f.deliver(ctx, t, d)
		}
	}
}

// deliver retries d until it succeeds, runs out of attempts or ctx ends.
func (f *Forwarder) deliver(ctx context.Context, t Target, d Delivery) {
	for {
		code, err := f.send(ctx, t, d)
		d.Attempts++
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
			return
		}
		if d.Attempts >= f.maxAttempts {
			metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
			f.log.Error("webhook delivery failed", "url", t.URL, "eventId", d.Message.EventID,
				"attempts", d.Attempts, "status", code, "err", err)
			return
		}
		f.log.Debug("webhook delivery retry", "url", t.URL, "eventId", d.Message.EventID, "attempts", d.Attempts, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.backoff(d.Attempts - 1)):
		}
	}
}

func (f *Forwarder) send(ctx context.Context, t Target, d Delivery) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", d.Message.EventID)
	req.Header.Set("X-Event-Type", string(d.Message.ChangeType))
	req.Header.Set("X-Event-Destination", d.Topic)
	if t.Secret != "" {
		req.Header.Set("X-Signature", sign(t.Secret, d.Payload))
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// sign is the X-Signature value: hex HMAC-SHA256 of body keyed by secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
