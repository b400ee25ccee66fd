package models

import "time"

// ChatMessage is an append-only chat entry, retained in a bounded recent
// window for replay to newly joined clients.
type ChatMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Participant is a live presence entry, scoped to a single connection.
// Not the same entity as StudentEntry: presence dies with the socket.
type Participant struct {
	ID       string    `json:"id"`   // stable client identity (student id or connection id)
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"-"`
}
