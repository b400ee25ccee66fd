package poll

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/manishrander/Live-Polling-System/internal/metrics"
	"github.com/manishrander/Live-Polling-System/pkg/response"
)

// CreateQuestionRequest is the body for POST /api/questions.
type CreateQuestionRequest struct {
	Text        string   `json:"text" binding:"required"`
	Options     []string `json:"options" binding:"required"`
	DurationSec int      `json:"duration_sec"`
}

// SubmitAnswerRequest is the body for POST /api/answers.
type SubmitAnswerRequest struct {
	StudentID   string `json:"student_id" binding:"required"`
	OptionIndex *int   `json:"option_index" binding:"required"`
}

// RegisterStudentRequest is the body for POST /api/students.
type RegisterStudentRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

// Handler exposes the poll control and read surface over HTTP. The control
// endpoints are teacher-only by convention; gating is left to the caller.
type Handler struct {
	store              *Store
	repo               *Repository // nil when the durable store is unavailable
	defaultDurationSec int
}

// NewHandler creates a poll handler. repo may be nil.
func NewHandler(store *Store, repo *Repository, defaultDurationSec int) *Handler {
	if defaultDurationSec <= 0 {
		defaultDurationSec = 60
	}
	return &Handler{store: store, repo: repo, defaultDurationSec: defaultDurationSec}
}

// Create handles POST /api/questions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.DurationSec <= 0 {
		req.DurationSec = h.defaultDurationSec
	}

	q, err := h.store.CreateQuestion(req.Text, req.Options, req.DurationSec)
	switch {
	case errors.Is(err, ErrInvalidQuestion):
		response.BadRequest(c, "question needs non-empty text and at least two options")
		return
	case errors.Is(err, ErrQuestionActive):
		response.Conflict(c, "current question is still active")
		return
	case err != nil:
		response.Internal(c, "failed to create question")
		return
	}
	metrics.QuestionsCreatedTotal.Inc()
	response.Created(c, q)
}

// Submit handles POST /api/answers. Admission rejections are expected
// outcomes, reported in the body, not as HTTP errors.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	result := h.store.SubmitAnswer(req.StudentID, *req.OptionIndex)
	if result.Accepted {
		metrics.AnswersTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.AnswersTotal.WithLabelValues(string(result.Reason)).Inc()
	}
	response.OK(c, result)
}

// RegisterStudent handles POST /api/students.
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.store.RegisterStudent(req.ID, req.Name)
	response.OK(c, gin.H{"id": req.ID})
}

// Kick handles POST /api/students/:id/kick.
func (h *Handler) Kick(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "student id required")
		return
	}
	h.store.KickStudent(id)
	response.OK(c, gin.H{"id": id, "kicked": true})
}

// Students handles GET /api/students.
func (h *Handler) Students(c *gin.Context) {
	response.OK(c, h.store.Students())
}

// Question handles GET /api/question.
func (h *Handler) Question(c *gin.Context) {
	q := h.store.CurrentQuestion()
	if q == nil {
		response.NotFound(c, "no current question")
		return
	}
	response.OK(c, q)
}

// Results handles GET /api/results.
func (h *Handler) Results(c *gin.Context) {
	r := h.store.Results()
	if r == nil {
		response.NotFound(c, "no current question")
		return
	}
	response.OK(c, r)
}

// TimeRemaining handles GET /api/time-remaining.
func (h *Handler) TimeRemaining(c *gin.Context) {
	response.OK(c, gin.H{"remaining_ms": h.store.TimeRemaining().Milliseconds()})
}

// Stop handles POST /api/questions/stop.
func (h *Handler) Stop(c *gin.Context) {
	stopped := h.store.StopTimer()
	if !stopped {
		response.NotFound(c, "no current question")
		return
	}
	response.OK(c, gin.H{"stopped": true, "remaining_ms": h.store.TimeRemaining().Milliseconds()})
}

// Eligibility handles GET /api/eligibility.
func (h *Handler) Eligibility(c *gin.Context) {
	response.OK(c, gin.H{"can_ask_new_question": h.store.CanAskNewQuestion()})
}

// History handles GET /api/history. A fresh process has an empty in-memory
// archive, so an empty result falls back to the durable mirror.
func (h *Handler) History(c *gin.Context) {
	hist := h.store.History()
	if len(hist) == 0 && h.repo != nil {
		if archived, err := h.repo.RecentHistory(c.Request.Context(), 100); err == nil && len(archived) > 0 {
			response.OK(c, archived)
			return
		}
	}
	response.OK(c, hist)
}

// Reset handles POST /api/reset.
func (h *Handler) Reset(c *gin.Context) {
	h.store.ResetAll()
	response.OK(c, gin.H{"reset": true})
}
