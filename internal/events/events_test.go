package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/logging"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(TopicRoutes)
	other := h.Subscribe(TopicDrivers)

	h.Publish(TopicRoutes, Message{ID: 3, ChangeType: Updated})

	select {
	case got := <-ch:
		assert.Equal(t, int64(3), got.ID)
		assert.Equal(t, Updated, got.ChangeType)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	select {
	case m := <-other:
		t.Fatalf("unexpected message on other topic: %+v", m)
	default:
	}

	h.Unsubscribe(TopicRoutes, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, h.Subscribers(TopicRoutes))
	// second unsubscribe is a no-op
	h.Unsubscribe(TopicRoutes, ch)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(TopicOrders)
	for i := 0; i < 100; i++ {
		h.Publish(TopicOrders, Message{ID: int64(i)})
	}
	assert.Len(t, ch, cap(ch))
}

func TestOutboxFlushesAfterwardsOnly(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(TopicDrivers)
	p := NewPublisher(h, logging.Nop())

	var o Outbox
	o.Created(TopicDrivers, 1, map[string]any{"id": 1, "firstName": "Ann"})
	o.Deleted(TopicDrivers, 2)
	assert.Len(t, ch, 0)

	p.Flush(&o)
	require.Len(t, ch, 2)

	first := <-ch
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, Created, first.ChangeType)
	assert.JSONEq(t, `{"id":1,"firstName":"Ann"}`, string(first.DTO))
	assert.NotEmpty(t, first.EventID)

	second := <-ch
	assert.Equal(t, Deleted, second.ChangeType)
	assert.Equal(t, "null", string(second.DTO))
}

func TestFlushSkipsUnencodablePayload(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(TopicOrders)
	var o Outbox
	o.Updated(TopicOrders, 1, map[string]any{"bad": make(chan int)})
	o.Updated(TopicOrders, 2, map[string]any{"ok": true})
	NewPublisher(h, nil).Flush(&o)
	require.Len(t, ch, 1)
	assert.Equal(t, int64(2), (<-ch).ID)
}

func TestMessageWireShape(t *testing.T) {
	msg, err := Encode(Event{Destination: TopicRoutes, EntityID: 9, Payload: struct {
		ID int64 `json:"id"`
	}{9}, Type: Created})
	require.NoError(t, err)
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, float64(9), m["id"])
	assert.Equal(t, "CREATED", m["changeType"])
	assert.Equal(t, map[string]any{"id": float64(9)}, m["dto"])
}
