package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fleetops/internal/logging"
)

// RedisBus implements Bus over Redis Pub/Sub so that every instance sees
// changes committed by any other.
type RedisBus struct {
	rdb    *redis.Client
	prefix string
	log    logging.Logger

	mu   sync.Mutex
	subs map[chan Message]*redis.PubSub
}

// NewRedisBus connects to url (redis://...).
func NewRedisBus(url string, log logging.Logger) (*RedisBus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisBusClient(redis.NewClient(opt), log), nil
}

func NewRedisBusClient(rdb *redis.Client, log logging.Logger) *RedisBus {
	if log == nil {
		log = logging.Nop()
	}
	return &RedisBus{rdb: rdb, prefix: "fleetops:", log: log, subs: map[chan Message]*redis.PubSub{}}
}

// Ping checks the connection.
func (b *RedisBus) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBus) Subscribe(topic string) chan Message {
	ch := make(chan Message, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.channel(topic))
	// wait for the subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn("redis subscribe", "topic", topic, "error", err)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		for m := range ps.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warn("redis message decode", "topic", topic, "error", err)
				continue
			}
			b.mu.Lock()
			if _, live := b.subs[ch]; live {
				select {
				case ch <- msg:
				default:
				}
			}
			b.mu.Unlock()
		}
	}()
	return ch
}

func (b *RedisBus) Unsubscribe(topic string, ch chan Message) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	if ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (b *RedisBus) Publish(topic string, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("redis message encode", "topic", topic, "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel(topic), data).Err(); err != nil {
		b.log.Warn("redis publish", "topic", topic, "error", err)
	}
}

// Close releases every subscription and the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	for ch, ps := range b.subs {
		_ = ps.Close()
		close(ch)
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	return b.rdb.Close()
}

func (b *RedisBus) channel(topic string) string { return b.prefix + topic }
