package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manishrander/Live-Polling-System/internal/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Publisher publishes events for other instances (cross-process broadcast).
// origin identifies the publishing hub so subscribers can skip their own
// events.
type Publisher interface {
	PublishEvent(origin, event string, payload []byte) error
}

// Subscriber subscribes to events published by any instance.
type Subscriber interface {
	Subscribe(handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains the set of connected clients and fans events out to them.
// Delivery is best-effort, at-most-once per client per event: each client has
// a buffered send channel that preserves production order; a full buffer
// drops the event and the client resyncs on its next join.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client // connectionID -> client
	logger    *zap.Logger
	pub       Publisher
	sub       Subscriber
	cancelSub func()

	// instanceID tags published events so the relay can drop this hub's own
	// echoes; without it every BroadcastAndPublish would reach local clients
	// twice, once directly and once via the subscription.
	instanceID string
}

// NewHub creates a hub. pub and sub may be nil, in which case broadcast is
// local-only (single instance).
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		logger:     logger,
		pub:        pub,
		sub:        sub,
		instanceID: uuid.NewString(),
	}
}

// Start begins relaying cross-instance events into the local client set.
// Events this hub published are skipped; local delivery already happened.
func (h *Hub) Start() error {
	if h.sub == nil {
		return nil
	}
	cancel, err := h.sub.Subscribe(func(origin, event string, payload []byte) {
		if origin == h.instanceID {
			return
		}
		h.Broadcast(event, json.RawMessage(payload))
	})
	if err != nil {
		return err
	}
	h.cancelSub = cancel
	return nil
}

// Stop cancels the cross-instance subscription.
func (h *Hub) Stop() {
	if h.cancelSub != nil {
		h.cancelSub()
		h.cancelSub = nil
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	metrics.ConnectedClients.Inc()
	h.logger.Debug("client connected", zap.String("client_id", c.ID))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	metrics.ConnectedClients.Dec()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// Broadcast sends an event to all local clients, in production order per
// client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data := marshalPayload(payload)
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, drop; the client resyncs on reconnect
		}
	}
	metrics.EventsBroadcast.WithLabelValues(event).Inc()
}

// BroadcastAndPublish sends to local clients and publishes for other
// instances. Local clients see the event exactly once: the relay drops this
// hub's own published copy.
func (h *Hub) BroadcastAndPublish(event string, payload interface{}) {
	data := marshalPayload(payload)
	h.Broadcast(event, json.RawMessage(data))
	if h.pub != nil {
		if err := h.pub.PublishEvent(h.instanceID, event, data); err != nil {
			h.logger.Warn("publish failed, event is local-only", zap.String("event", event))
		}
	}
}

// SendToClient sends an event to one client.
func (h *Hub) SendToClient(connectionID, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: marshalPayload(payload)}
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// CloseStudent force-closes every connection bound to the student identity.
// Used to enforce a kick; the kick event itself goes out via Broadcast first.
func (h *Hub) CloseStudent(studentID string) {
	h.mu.RLock()
	var targets []*Client
	for _, c := range h.clients {
		if c.StudentID() == studentID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.CloseSoon()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func marshalPayload(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case []byte:
		return v
	case json.RawMessage:
		return v
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
