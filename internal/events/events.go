// Package events carries entity change notifications from committed
// transactions to topic subscribers.
package events

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"fleetops/internal/logging"
	"fleetops/internal/metrics"
)

type ChangeType string

const (
	Created ChangeType = "CREATED"
	Updated ChangeType = "UPDATED"
	Deleted ChangeType = "DELETED"
)

// Destinations, one per entity.
const (
	TopicDrivers      = "/topic/drivers"
	TopicVehicles     = "/topic/vehicles"
	TopicOrders       = "/topic/orders"
	TopicRetailPoints = "/topic/retail-points"
	TopicRoutes       = "/topic/routes"
	TopicRoutePoints  = "/topic/route-points"
)

// Topics lists every destination.
var Topics = []string{TopicDrivers, TopicVehicles, TopicOrders, TopicRetailPoints, TopicRoutes, TopicRoutePoints}

// Event is one entity change. Payload is nil for deletions.
type Event struct {
	Destination string
	EntityID    int64
	Payload     any
	Type        ChangeType
}

// Message is the wire form delivered to subscribers.
type Message struct {
	EventID    string          `json:"eventId"`
	ID         int64           `json:"id"`
	DTO        json.RawMessage `json:"dto"`
	ChangeType ChangeType      `json:"changeType"`
}

// Outbox collects events while a transaction runs. Nothing leaves the
// outbox until Publisher.Flush is called after commit.
type Outbox struct {
	mu     sync.Mutex
	events []Event
}

func (o *Outbox) Add(e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

// Created, Updated and Deleted are shorthands for Add.
func (o *Outbox) Created(topic string, id int64, dto any) {
	o.Add(Event{Destination: topic, EntityID: id, Payload: dto, Type: Created})
}

func (o *Outbox) Updated(topic string, id int64, dto any) {
	o.Add(Event{Destination: topic, EntityID: id, Payload: dto, Type: Updated})
}

func (o *Outbox) Deleted(topic string, id int64) {
	o.Add(Event{Destination: topic, EntityID: id, Type: Deleted})
}

// Events returns a copy of the collected events in insertion order.
func (o *Outbox) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

// Publisher turns outbox events into messages on a Bus.
type Publisher struct {
	bus Bus
	log logging.Logger
}

func NewPublisher(bus Bus, log logging.Logger) *Publisher {
	if log == nil {
		log = logging.Nop()
	}
	return &Publisher{bus: bus, log: log}
}

// Bus returns the underlying bus.
func (p *Publisher) Bus() Bus { return p.bus }

// Flush publishes every event of o. Delivery is fire-and-forget: an event
// whose payload cannot be encoded is logged and skipped.
func (p *Publisher) Flush(o *Outbox) {
	if p == nil || o == nil {
		return
	}
	for _, e := range o.Events() {
		msg, err := Encode(e)
		if err != nil {
			p.log.Error("encode change event", "destination", e.Destination, "id", e.EntityID, "error", err)
			continue
		}
		p.bus.Publish(e.Destination, msg)
		metrics.ChangeEvents.WithLabelValues(e.Destination, string(e.Type)).Inc()
		p.log.Debug("change event published", "destination", e.Destination, "id", e.EntityID, "type", e.Type)
	}
}

// Encode builds the wire message for e.
func Encode(e Event) (Message, error) {
	dto := json.RawMessage("null")
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return Message{}, err
		}
		dto = b
	}
	return Message{EventID: uuid.NewString(), ID: e.EntityID, DTO: dto, ChangeType: e.Type}, nil
}
