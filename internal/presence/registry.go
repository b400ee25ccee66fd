// Package presence tracks which identities are currently connected. Entries
// are transport-session-scoped: they are created on join and destroyed on
// disconnect, unlike the durable student registry in internal/poll.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/manishrander/Live-Polling-System/internal/models"
)

// Registry maps connection ids to display names.
type Registry struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*models.Participant // connectionID -> participant
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{now: time.Now, entries: make(map[string]*models.Participant)}
}

// Join adds or updates the connection's participant entry and returns the
// full current list for broadcast. Upsert keyed by connection id, so a
// reconnecting client never produces a duplicate entry.
func (r *Registry) Join(connectionID string, p models.Participant) []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[connectionID]; ok {
		existing.ID = p.ID
		existing.Name = p.Name
	} else {
		p.JoinedAt = r.now()
		r.entries[connectionID] = &p
	}
	return r.listLocked()
}

// Leave removes the connection's entry and returns the updated list.
func (r *Registry) Leave(connectionID string) []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, connectionID)
	return r.listLocked()
}

// List returns participants ordered by join time.
func (r *Registry) List() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

// Count returns the number of connected participants.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) listLocked() []models.Participant {
	out := make([]models.Participant, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
