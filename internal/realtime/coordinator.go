package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manishrander/Live-Polling-System/internal/chat"
	"github.com/manishrander/Live-Polling-System/internal/metrics"
	"github.com/manishrander/Live-Polling-System/internal/models"
	"github.com/manishrander/Live-Polling-System/internal/poll"
	"github.com/manishrander/Live-Polling-System/internal/presence"
	"github.com/manishrander/Live-Polling-System/internal/view"
	"github.com/manishrander/Live-Polling-System/pkg/queue"
)

const persistTimeout = 2 * time.Second

// Coordinator wires the transport to the domain: it handles client events,
// replays state to newly joined clients, relays store changes to the hub, and
// hands durable writes to the persistence queue. Everything durable is
// best-effort; a nil repository or queue degrades to in-memory only.
type Coordinator struct {
	hub      *Hub
	store    *poll.Store
	presence *presence.Registry
	chatRepo *chat.Repository // nil when the durable store is unavailable
	queue    *queue.Queue     // nil when Redis is unavailable
	logger   *zap.Logger

	historyWindow int
	maxMessageLen int
	unsubscribe   func()
}

// NewCoordinator creates a coordinator. chatRepo and q may be nil.
func NewCoordinator(hub *Hub, store *poll.Store, reg *presence.Registry, chatRepo *chat.Repository, q *queue.Queue, historyWindow, maxMessageLen int, logger *zap.Logger) *Coordinator {
	if historyWindow <= 0 {
		historyWindow = chat.DefaultHistoryWindow
	}
	if maxMessageLen <= 0 {
		maxMessageLen = chat.DefaultMaxMessageLen
	}
	return &Coordinator{
		hub:           hub,
		store:         store,
		presence:      reg,
		chatRepo:      chatRepo,
		queue:         q,
		logger:        logger,
		historyWindow: historyWindow,
		maxMessageLen: maxMessageLen,
	}
}

// Start subscribes to store changes so every mutation is fanned out to
// connected clients.
func (co *Coordinator) Start() {
	co.unsubscribe = co.store.OnChange(co.handleStoreEvent)
}

// Stop detaches from the store.
func (co *Coordinator) Stop() {
	if co.unsubscribe != nil {
		co.unsubscribe()
		co.unsubscribe = nil
	}
}

func (co *Coordinator) handleStoreEvent(ev poll.Event) {
	switch ev.Type {
	case poll.EventQuestionCreated:
		co.hub.BroadcastAndPublish("poll:question", ev.Question)
		co.hub.BroadcastAndPublish("poll:results", ev.Results)
		co.enqueueQuestion(ev.Question)
		if ev.Archived != nil {
			co.enqueueArchive(ev.Archived)
		}
	case poll.EventAnswerAccepted:
		co.hub.BroadcastAndPublish("poll:results", ev.Results)
		co.enqueueAnswer(ev.Answer)
	case poll.EventTimerStopped:
		co.hub.BroadcastAndPublish("poll:stopped", map[string]int64{
			"remaining_ms": ev.Remaining.Milliseconds(),
		})
	case poll.EventStudentKicked:
		co.hub.BroadcastAndPublish("poll:kicked", map[string]string{
			"student_id": ev.StudentID,
		})
		co.hub.CloseStudent(ev.StudentID)
	case poll.EventReset:
		co.hub.BroadcastAndPublish("poll:reset", struct{}{})
	}
}

// HandleJoin processes a client's chat:join. Join is an upsert keyed by the
// connection id, so repeated joins from the same socket never duplicate
// presence. A kicked student is refused the poll view and closed.
func (co *Coordinator) HandleJoin(c *Client, payload JoinPayload) {
	id := payload.ID
	if id == "" {
		id = c.ID
	}
	name := payload.Name
	if name == "" {
		name = "Guest"
	}

	if co.store.IsKicked(id) {
		co.hub.SendToClient(c.ID, "poll:kicked", map[string]string{"student_id": id})
		c.CloseSoon()
		return
	}

	c.setIdentity(id, name, payload.Role)
	if payload.Role == "student" {
		co.store.RegisterStudent(id, name)
	}

	list := co.presence.Join(c.ID, models.Participant{ID: id, Name: name})
	co.hub.BroadcastAndPublish("chat:participants", list)

	go co.persistParticipant(c.ID, models.Participant{ID: id, Name: name})

	co.hub.SendToClient(c.ID, "chat:history", co.recentMessages())
	co.hub.SendToClient(c.ID, "poll:state", co.viewFor(id))
}

// HandleChatMessage validates, broadcasts, and persists a chat message, and
// fires the keyword auto-reply to the sender.
func (co *Coordinator) HandleChatMessage(c *Client, raw string) {
	text, ok := chat.NormalizeMessage(raw, co.maxMessageLen)
	if !ok {
		return
	}
	_, name, _, joined := c.Identity()
	if !joined {
		name = "Guest"
	}

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		From:      name,
		Text:      text,
		Timestamp: time.Now(),
	}
	co.hub.BroadcastAndPublish("chat:message", msg)
	metrics.ChatMessagesTotal.Inc()
	co.enqueueChatMessage(msg)

	if reply, ok := chat.BotReply(text); ok {
		connID := c.ID
		time.AfterFunc(chat.BotReplyDelay, func() {
			bot := models.ChatMessage{
				ID:        uuid.NewString(),
				From:      chat.BotName,
				Text:      reply,
				Timestamp: time.Now(),
			}
			co.hub.SendToClient(connID, "chat:message", bot)
			co.enqueueChatMessage(bot)
		})
	}
}

// HandleStateRequest answers a poll:state request with the client's view.
func (co *Coordinator) HandleStateRequest(c *Client) {
	studentID, _, _, _ := c.Identity()
	if studentID == "" {
		studentID = c.ID
	}
	co.hub.SendToClient(c.ID, "poll:state", co.viewFor(studentID))
}

// HandleDisconnect removes presence and broadcasts the updated list.
func (co *Coordinator) HandleDisconnect(c *Client) {
	_, _, _, joined := c.Identity()
	if !joined {
		return
	}
	list := co.presence.Leave(c.ID)
	co.hub.BroadcastAndPublish("chat:participants", list)
	go co.deleteParticipant(c.ID)
}

func (co *Coordinator) viewFor(studentID string) view.View {
	_, answered := co.store.AnswerOf(studentID)
	return view.Compute(co.store.Results(), answered, time.Now())
}

// recentMessages loads the replay window. Failures degrade to an empty
// history, never an error to the client.
func (co *Coordinator) recentMessages() []models.ChatMessage {
	if co.chatRepo == nil {
		return []models.ChatMessage{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	msgs, err := co.chatRepo.RecentMessages(ctx, co.historyWindow)
	if err != nil {
		co.logger.Warn("chat history unavailable", zap.Error(err))
		metrics.PersistenceFailuresTotal.Inc()
		return []models.ChatMessage{}
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs
}

func (co *Coordinator) persistParticipant(connectionID string, p models.Participant) {
	if co.chatRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := co.chatRepo.UpsertParticipant(ctx, connectionID, p); err != nil {
		co.logger.Warn("participant upsert failed", zap.Error(err))
		metrics.PersistenceFailuresTotal.Inc()
	}
}

func (co *Coordinator) deleteParticipant(connectionID string) {
	if co.chatRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := co.chatRepo.DeleteParticipant(ctx, connectionID); err != nil {
		co.logger.Warn("participant delete failed", zap.Error(err))
		metrics.PersistenceFailuresTotal.Inc()
	}
}

func (co *Coordinator) enqueueChatMessage(m models.ChatMessage) {
	if co.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := co.queue.EnqueueChatMessage(ctx, m); err != nil {
		co.logger.Warn("chat message enqueue failed", zap.Error(err))
		metrics.PersistenceFailuresTotal.Inc()
	}
}

func (co *Coordinator) enqueueQuestion(q *models.Question) {
	if co.queue == nil || q == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := co.queue.EnqueueQuestion(ctx, *q); err != nil {
		co.logger.Warn("question enqueue failed", zap.Error(err))
		metrics.PersistenceFailuresTotal.Inc()
	}
}

func (co *Coordinator) enqueueAnswer(a *models.AnswerRecord) {
	if co.queue == nil || a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := co.queue.EnqueueAnswer(ctx, *a); err != nil {
		co.logger.Warn("answer enqueue failed", zap.Error(err))
		metrics.PersistenceFailuresTotal.Inc()
	}
}

func (co *Coordinator) enqueueArchive(h *models.HistoryEntry) {
	if co.queue == nil || h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := co.queue.EnqueueArchive(ctx, *h); err != nil {
		co.logger.Warn("archive enqueue failed", zap.Error(err))
		metrics.PersistenceFailuresTotal.Inc()
	}
}
