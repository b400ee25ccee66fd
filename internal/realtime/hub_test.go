package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(id string, buffer int) *Client {
	return &Client{
		ID:      id,
		send:    make(chan WSMessage, buffer),
		closing: make(chan struct{}),
	}
}

func recvEvent(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("no message queued")
		return WSMessage{}
	}
}

func TestBroadcastPreservesPerClientOrder(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient("c1", 256)
	hub.Register(c)
	defer hub.Unregister(c)

	hub.Broadcast("first", map[string]int{"n": 1})
	hub.Broadcast("second", map[string]int{"n": 2})
	hub.Broadcast("third", map[string]int{"n": 3})

	for _, want := range []string{"first", "second", "third"} {
		if got := recvEvent(t, c); got.Event != want {
			t.Errorf("event = %q, want %q", got.Event, want)
		}
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	a := newTestClient("a", 256)
	b := newTestClient("b", 256)
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast("ping", nil)
	if got := recvEvent(t, a); got.Event != "ping" {
		t.Errorf("client a got %q", got.Event)
	}
	if got := recvEvent(t, b); got.Event != "ping" {
		t.Errorf("client b got %q", got.Event)
	}

	hub.Unregister(a)
	hub.Broadcast("again", nil)
	if got := recvEvent(t, b); got.Event != "again" {
		t.Errorf("client b got %q", got.Event)
	}
	select {
	case msg := <-a.send:
		t.Errorf("unregistered client received %q", msg.Event)
	default:
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient("slow", 1)
	hub.Register(c)

	hub.Broadcast("kept", nil)
	hub.Broadcast("dropped", nil)

	if got := recvEvent(t, c); got.Event != "kept" {
		t.Errorf("event = %q, want kept", got.Event)
	}
	select {
	case msg := <-c.send:
		t.Errorf("overflow event %q must be dropped", msg.Event)
	default:
	}
}

func TestSendToClientTargetsOneConnection(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	a := newTestClient("a", 256)
	b := newTestClient("b", 256)
	hub.Register(a)
	hub.Register(b)

	hub.SendToClient("a", "private", map[string]string{"to": "a"})
	if got := recvEvent(t, a); got.Event != "private" {
		t.Errorf("client a got %q", got.Event)
	}
	select {
	case msg := <-b.send:
		t.Errorf("client b received %q", msg.Event)
	default:
	}

	// Unknown connection is a no-op.
	hub.SendToClient("ghost", "private", nil)
}

func TestCloseStudentClosesMatchingConnections(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	kicked1 := newTestClient("k1", 256)
	kicked1.setIdentity("stu-1", "Asha", "student")
	kicked2 := newTestClient("k2", 256)
	kicked2.setIdentity("stu-1", "Asha", "student")
	other := newTestClient("o1", 256)
	other.setIdentity("stu-2", "Ben", "student")
	hub.Register(kicked1)
	hub.Register(kicked2)
	hub.Register(other)

	hub.CloseStudent("stu-1")

	for _, c := range []*Client{kicked1, kicked2} {
		select {
		case <-c.closing:
		default:
			t.Errorf("connection %s must be closing", c.ID)
		}
	}
	select {
	case <-other.closing:
		t.Error("unrelated connection must stay open")
	default:
	}
}

type published struct {
	origin string
	event  string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (f *fakePublisher) PublishEvent(origin, event string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{origin: origin, event: event})
	return nil
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.events...)
}

type fakeSubscriber struct {
	handler func(origin, event string, payload []byte)
}

func (f *fakeSubscriber) Subscribe(handler func(origin, event string, payload []byte)) (func(), error) {
	f.handler = handler
	return func() { f.handler = nil }, nil
}

// fakeBridge loops published events straight back into the subscriber, the
// way Redis pub/sub delivers a publish to every subscriber including the
// publishing process.
type fakeBridge struct {
	fakeSubscriber
}

func (f *fakeBridge) PublishEvent(origin, event string, payload []byte) error {
	if f.handler != nil {
		f.handler(origin, event, payload)
	}
	return nil
}

func TestBroadcastAndPublish(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(zap.NewNop(), pub, nil)
	c := newTestClient("c1", 256)
	hub.Register(c)

	hub.BroadcastAndPublish("poll:results", map[string]int{"total": 3})

	if got := recvEvent(t, c); got.Event != "poll:results" {
		t.Errorf("local event = %q", got.Event)
	}
	events := pub.all()
	if len(events) != 1 || events[0].event != "poll:results" {
		t.Fatalf("published = %v", events)
	}
	if events[0].origin == "" {
		t.Error("published event must carry the hub's instance id")
	}
}

func TestBroadcastAndPublishSurvivesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	hub := NewHub(zap.NewNop(), pub, nil)
	c := newTestClient("c1", 256)
	hub.Register(c)

	hub.BroadcastAndPublish("chat:message", map[string]string{"text": "hi"})
	if got := recvEvent(t, c); got.Event != "chat:message" {
		t.Errorf("local event = %q", got.Event)
	}
}

func TestSubscriberRelaysForeignEvents(t *testing.T) {
	sub := &fakeSubscriber{}
	hub := NewHub(zap.NewNop(), nil, sub)
	if err := hub.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer hub.Stop()

	c := newTestClient("c1", 256)
	hub.Register(c)

	payload, _ := json.Marshal(map[string]string{"text": "from another instance"})
	sub.handler("other-instance", "chat:message", payload)

	got := recvEvent(t, c)
	if got.Event != "chat:message" {
		t.Fatalf("event = %q", got.Event)
	}
	var body map[string]string
	if err := json.Unmarshal(got.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["text"] != "from another instance" {
		t.Errorf("payload = %v", body)
	}
}

func TestRelayDropsOwnEcho(t *testing.T) {
	bridge := &fakeBridge{}
	hub := NewHub(zap.NewNop(), bridge, bridge)
	if err := hub.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer hub.Stop()

	c := newTestClient("c1", 256)
	hub.Register(c)

	// The bridge loops the publish straight back; without origin filtering
	// the client would see the event twice.
	hub.BroadcastAndPublish("poll:results", map[string]int{"total": 1})

	if got := recvEvent(t, c); got.Event != "poll:results" {
		t.Fatalf("event = %q", got.Event)
	}
	select {
	case msg := <-c.send:
		t.Errorf("own echo re-delivered: %q", msg.Event)
	default:
	}
}

func TestClientCount(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	if hub.ClientCount() != 0 {
		t.Error("empty hub count must be 0")
	}
	c := newTestClient("c1", 256)
	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Error("count after register must be 1")
	}
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Error("count after unregister must be 0")
	}
}
