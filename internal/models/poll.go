package models

import "time"

// Question is the single poll question currently open for answers.
type Question struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Options     []string  `json:"options"`
	StartedAt   time.Time `json:"started_at"`
	DurationSec int       `json:"duration_sec"`
	// Stopped freezes the remaining time at StoppedRemaining. One-way within a
	// question's lifetime; the question still archives normally.
	Stopped          bool          `json:"stopped"`
	StoppedRemaining time.Duration `json:"stopped_remaining_ms,omitempty"`
}

// AnswerRecord maps a (student, question) pair to a single option index.
type AnswerRecord struct {
	QuestionID  string    `json:"question_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	OptionIndex int       `json:"option_index"`
	AnsweredAt  time.Time `json:"answered_at"`
}

// StudentEntry is a durable registry entry for a student, stable across
// reconnects within a poll session. Kicked is one-way.
type StudentEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kicked       bool      `json:"kicked"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Results is the live tally projection for the current question.
type Results struct {
	Question *Question `json:"question"`
	Counts   []int     `json:"counts"`
	Total    int       `json:"total"`
}

// HistoryEntry is an immutable snapshot of a superseded question with its
// final tally.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Options     []string  `json:"options"`
	Counts      []int     `json:"counts"`
	Total       int       `json:"total"`
	CompletedAt time.Time `json:"completed_at"`
}
