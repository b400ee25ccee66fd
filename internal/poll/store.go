// Package poll owns the live poll state machine: the single current question,
// answer admission control, tallies, the student registry, and the archive of
// superseded questions. All mutation goes through Store, which serializes
// concurrent calls so check-then-act sequences (duplicate detection, deadline
// checks) behave as if sequential.
package poll

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manishrander/Live-Polling-System/internal/models"
)

var (
	// ErrInvalidQuestion means empty text, fewer than two options, an empty
	// option label, or a non-positive duration. No state is mutated.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrQuestionActive means the current question is still open: not every
	// known student has answered and time has not expired.
	ErrQuestionActive = errors.New("a question is still active")
)

// Reason is the typed rejection reason for a submission.
type Reason string

const (
	ReasonNoActiveQuestion Reason = "no_active_question"
	ReasonInvalidOption    Reason = "invalid_option"
	ReasonStudentKicked    Reason = "student_kicked"
	ReasonQuestionStopped  Reason = "question_stopped"
	ReasonQuestionExpired  Reason = "question_expired"
	ReasonDuplicateAnswer  Reason = "duplicate_answer"
)

// SubmitResult is the discriminated outcome of SubmitAnswer. Rejections are
// expected, frequent outcomes of races near the deadline, never errors.
type SubmitResult struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
}

// EventType identifies a state-changing event emitted to subscribers.
type EventType string

const (
	EventQuestionCreated EventType = "question_created"
	EventAnswerAccepted  EventType = "answer_accepted"
	EventTimerStopped    EventType = "timer_stopped"
	EventStudentKicked   EventType = "student_kicked"
	EventReset           EventType = "reset"
)

// Event carries snapshots of the state that changed so subscribers do not
// need to call back into the store. Callbacks run synchronously on the
// mutating goroutine, serialized in production order, and must not mutate
// the store.
type Event struct {
	Type      EventType
	Question  *models.Question     // set for question_created
	Results   *models.Results      // tally snapshot after the mutation, if a question is current
	Archived  *models.HistoryEntry // set when question_created superseded a question
	Answer    *models.AnswerRecord // set for answer_accepted
	StudentID string               // set for answer_accepted and student_kicked
	Remaining time.Duration        // set for timer_stopped
}

// Store is the single source of truth for poll state. The zero value is not
// usable; create with New. An instance is passed explicitly to every consumer;
// there is no package-level state.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	current  *models.Question
	answers  map[string]map[string]int // questionID -> studentID -> optionIndex
	tallies  map[string][]int          // questionID -> per-option counts
	students map[string]*models.StudentEntry
	history  []models.HistoryEntry // append order; History() reverses

	// emitMu serializes event delivery. It is acquired before mu is released,
	// so two mutations cannot deliver their events out of order.
	emitMu sync.Mutex

	listenerMu sync.Mutex
	listeners  map[int]func(Event)
	nextListen int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty poll store.
func New(opts ...Option) *Store {
	s := &Store{
		now:       time.Now,
		answers:   make(map[string]map[string]int),
		tallies:   make(map[string][]int),
		students:  make(map[string]*models.StudentEntry),
		listeners: make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnChange subscribes to state-changing events. Returns an unsubscribe func.
func (s *Store) OnChange(fn func(Event)) (unsubscribe func()) {
	s.listenerMu.Lock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = fn
	s.listenerMu.Unlock()
	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

// emitAndUnlock delivers ev to subscribers and releases the state lock, which
// the caller must hold. Taking emitMu before dropping mu pins delivery to
// production order: a later mutation cannot emit until this event is out.
func (s *Store) emitAndUnlock(ev Event) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, fn := range s.listenersSnapshot() {
		fn(ev)
	}
}

func (s *Store) listenersSnapshot() []func(Event) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	return fns
}

// CreateQuestion validates and installs a new current question. If a question
// is current it must be eligible for replacement; it is then archived with its
// final tally before the new one is installed.
func (s *Store) CreateQuestion(text string, options []string, durationSec int) (*models.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(options) < 2 || durationSec <= 0 {
		return nil, ErrInvalidQuestion
	}
	for _, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return nil, ErrInvalidQuestion
		}
	}

	s.mu.Lock()
	if !s.canAskLocked() {
		s.mu.Unlock()
		return nil, ErrQuestionActive
	}

	ev := Event{Type: EventQuestionCreated}
	if s.current != nil {
		archived := s.archiveCurrentLocked()
		ev.Archived = &archived
	}

	q := &models.Question{
		ID:          uuid.NewString(),
		Text:        text,
		Options:     append([]string(nil), options...),
		StartedAt:   s.now(),
		DurationSec: durationSec,
	}
	s.current = q
	s.answers[q.ID] = make(map[string]int)
	s.tallies[q.ID] = make([]int, len(q.Options))

	snapshot := cloneQuestion(q)
	ev.Question = snapshot
	ev.Results = s.resultsLocked()
	s.emitAndUnlock(ev)
	return snapshot, nil
}

// archiveCurrentLocked moves the current question into history with counts
// recomputed from the answer records, then drops its answer scope.
func (s *Store) archiveCurrentLocked() models.HistoryEntry {
	prev := s.current
	counts := make([]int, len(prev.Options))
	for _, idx := range s.answers[prev.ID] {
		if idx >= 0 && idx < len(counts) {
			counts[idx]++
		}
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	entry := models.HistoryEntry{
		ID:          prev.ID,
		Text:        prev.Text,
		Options:     append([]string(nil), prev.Options...),
		Counts:      counts,
		Total:       total,
		CompletedAt: s.now(),
	}
	s.history = append(s.history, entry)
	delete(s.answers, prev.ID)
	delete(s.tallies, prev.ID)
	s.current = nil
	return entry
}

// CanAskNewQuestion reports whether a new question may be created now.
func (s *Store) CanAskNewQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canAskLocked()
}

// canAskLocked: no current question; or every currently known student has
// answered (and at least one student is known); or time expired. Students
// registering after this returns true do not reopen the closed question.
func (s *Store) canAskLocked() bool {
	if s.current == nil {
		return true
	}
	answered := 0
	for id := range s.students {
		if _, ok := s.answers[s.current.ID][id]; ok {
			answered++
		}
	}
	known := len(s.students)
	expired := s.now().Sub(s.current.StartedAt) >= time.Duration(s.current.DurationSec)*time.Second
	return (known > 0 && answered >= known) || expired
}

// RegisterStudent upserts a registry entry keyed by the stable studentID.
// Reconnects with the same id never create duplicates. An empty name keeps
// the existing one.
func (s *Store) RegisterStudent(id, name string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerStudentLocked(id, name)
}

func (s *Store) registerStudentLocked(id, name string) *models.StudentEntry {
	entry, ok := s.students[id]
	if !ok {
		entry = &models.StudentEntry{ID: id, RegisteredAt: s.now()}
		s.students[id] = entry
	}
	if name != "" {
		entry.Name = name
	}
	return entry
}

// SubmitAnswer records a student's single answer to the current question.
// Checks run in a fixed order and the whole sequence is atomic with respect
// to concurrent submissions, so the same student racing against itself gets
// exactly one acceptance.
func (s *Store) SubmitAnswer(studentID string, optionIndex int) SubmitResult {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return SubmitResult{Reason: ReasonNoActiveQuestion}
	}
	if optionIndex < 0 || optionIndex >= len(s.current.Options) {
		s.mu.Unlock()
		return SubmitResult{Reason: ReasonInvalidOption}
	}
	if entry, ok := s.students[studentID]; ok && entry.Kicked {
		s.mu.Unlock()
		return SubmitResult{Reason: ReasonStudentKicked}
	}
	if s.current.Stopped {
		s.mu.Unlock()
		return SubmitResult{Reason: ReasonQuestionStopped}
	}
	if s.now().Sub(s.current.StartedAt) >= time.Duration(s.current.DurationSec)*time.Second {
		s.mu.Unlock()
		return SubmitResult{Reason: ReasonQuestionExpired}
	}
	if _, dup := s.answers[s.current.ID][studentID]; dup {
		s.mu.Unlock()
		return SubmitResult{Reason: ReasonDuplicateAnswer}
	}

	entry := s.registerStudentLocked(studentID, "")
	s.answers[s.current.ID][studentID] = optionIndex
	s.tallies[s.current.ID][optionIndex]++

	record := &models.AnswerRecord{
		QuestionID:  s.current.ID,
		StudentID:   studentID,
		StudentName: entry.Name,
		OptionIndex: optionIndex,
		AnsweredAt:  s.now(),
	}
	ev := Event{Type: EventAnswerAccepted, StudentID: studentID, Answer: record, Results: s.resultsLocked()}
	s.emitAndUnlock(ev)
	return SubmitResult{Accepted: true}
}

// AnswerOf returns the student's recorded answer for the current question.
func (s *Store) AnswerOf(studentID string) (optionIndex int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, false
	}
	optionIndex, ok = s.answers[s.current.ID][studentID]
	return optionIndex, ok
}

// KickStudent marks the student as kicked. One-way: there is no un-kick.
func (s *Store) KickStudent(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	entry := s.registerStudentLocked(id, "")
	entry.Kicked = true
	ev := Event{Type: EventStudentKicked, StudentID: id, Results: s.resultsLocked()}
	s.emitAndUnlock(ev)
}

// IsKicked reports whether the student has been kicked.
func (s *Store) IsKicked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.students[id]
	return ok && entry.Kicked
}

// Students returns registry entries ordered by registration time.
func (s *Store) Students() []models.StudentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.StudentEntry, 0, len(s.students))
	for _, e := range s.students {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// CurrentQuestion returns a snapshot of the current question, or nil.
func (s *Store) CurrentQuestion() *models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneQuestion(s.current)
}

// Results returns the live tally for the current question, or nil.
func (s *Store) Results() *models.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsLocked()
}

func (s *Store) resultsLocked() *models.Results {
	if s.current == nil {
		return nil
	}
	counts := append([]int(nil), s.tallies[s.current.ID]...)
	total := 0
	for _, c := range counts {
		total += c
	}
	return &models.Results{Question: cloneQuestion(s.current), Counts: counts, Total: total}
}

// TimeRemaining returns the remaining time for the current question, clamped
// to >= 0. A stopped question reports its frozen value indefinitely.
func (s *Store) TimeRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeRemainingLocked()
}

func (s *Store) timeRemainingLocked() time.Duration {
	if s.current == nil {
		return 0
	}
	if s.current.Stopped {
		return s.current.StoppedRemaining
	}
	end := s.current.StartedAt.Add(time.Duration(s.current.DurationSec) * time.Second)
	if rem := end.Sub(s.now()); rem > 0 {
		return rem
	}
	return 0
}

// StopTimer freezes the current question's remaining time at its value right
// now. Idempotent: repeated calls leave the frozen value unchanged. After
// stopping, submissions reject with question_stopped. Returns false when no
// question is current.
func (s *Store) StopTimer() bool {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return false
	}
	if s.current.Stopped {
		s.mu.Unlock()
		return true
	}
	remaining := s.timeRemainingLocked()
	s.current.Stopped = true
	s.current.StoppedRemaining = remaining
	// Normalize the timer fields so external elapsed-time computations stay
	// fixed at the frozen point.
	s.current.StartedAt = s.now()
	s.current.DurationSec = int(math.Ceil(remaining.Seconds()))
	ev := Event{Type: EventTimerStopped, Remaining: remaining, Results: s.resultsLocked()}
	s.emitAndUnlock(ev)
	return true
}

// History returns archived questions, most recent first.
func (s *Store) History() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryEntry, len(s.history))
	for i := range s.history {
		out[len(s.history)-1-i] = s.history[i]
	}
	return out
}

// ResetAll clears everything back to the empty initial state, including
// kicked flags. Not used in the normal flow.
func (s *Store) ResetAll() {
	s.mu.Lock()
	s.current = nil
	s.answers = make(map[string]map[string]int)
	s.tallies = make(map[string][]int)
	s.students = make(map[string]*models.StudentEntry)
	s.history = nil
	s.emitAndUnlock(Event{Type: EventReset})
}

func cloneQuestion(q *models.Question) *models.Question {
	if q == nil {
		return nil
	}
	cp := *q
	cp.Options = append([]string(nil), q.Options...)
	return &cp
}
