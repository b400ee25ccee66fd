// Package metrics defines the Prometheus instrumentation for the poll server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedClients is the number of live WebSocket connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livepoll_connected_clients",
		Help: "Number of currently connected WebSocket clients.",
	})

	// EventsBroadcast counts events fanned out to local clients, per event name.
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livepoll_events_broadcast_total",
		Help: "Events broadcast to connected clients.",
	}, []string{"event"})

	// AnswersTotal counts answer submissions by outcome (accepted or the
	// rejection reason).
	AnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livepoll_answers_total",
		Help: "Answer submissions by outcome.",
	}, []string{"result"})

	// QuestionsCreatedTotal counts questions successfully created.
	QuestionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepoll_questions_created_total",
		Help: "Questions created by the teacher.",
	})

	// ChatMessagesTotal counts accepted chat messages.
	ChatMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepoll_chat_messages_total",
		Help: "Chat messages accepted for broadcast.",
	})

	// PersistenceFailuresTotal counts best-effort durable writes that failed.
	PersistenceFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepoll_persistence_failures_total",
		Help: "Durable store writes that failed and were skipped.",
	})
)
