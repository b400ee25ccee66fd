package chat

import (
	"github.com/gin-gonic/gin"

	"github.com/manishrander/Live-Polling-System/internal/models"
	"github.com/manishrander/Live-Polling-System/internal/presence"
	"github.com/manishrander/Live-Polling-System/pkg/response"
)

// Handler exposes the chat read surface over HTTP.
type Handler struct {
	repo     *Repository // nil when the durable store is unavailable
	presence *presence.Registry
}

// NewHandler creates a chat handler.
func NewHandler(repo *Repository, reg *presence.Registry) *Handler {
	return &Handler{repo: repo, presence: reg}
}

// Messages handles GET /api/messages: the recent message window, oldest
// first. Degrades to an empty list when the durable store is unreachable.
func (h *Handler) Messages(c *gin.Context) {
	if h.repo == nil {
		response.OK(c, []models.ChatMessage{})
		return
	}
	msgs, err := h.repo.RecentMessages(c.Request.Context(), 100)
	if err != nil || msgs == nil {
		response.OK(c, []models.ChatMessage{})
		return
	}
	response.OK(c, msgs)
}

// Participants handles GET /api/participants: the live presence list, ordered
// by join time. When this instance has no connections, the durable mirror
// still reflects clients attached to other instances.
func (h *Handler) Participants(c *gin.Context) {
	live := h.presence.List()
	if len(live) == 0 && h.repo != nil {
		if mirrored, err := h.repo.ListParticipants(c.Request.Context()); err == nil && len(mirrored) > 0 {
			response.OK(c, mirrored)
			return
		}
	}
	response.OK(c, live)
}
