// Package view is the per-client read model. It derives UI-relevant state
// (answered flag, natural expiry, remaining time, percentage breakdown) from
// the latest poll snapshot. Remaining time is re-derived locally on a fixed
// interval between store events; only state transitions are pushed.
package view

import (
	"context"
	"math"
	"time"

	"github.com/manishrander/Live-Polling-System/internal/models"
	"github.com/manishrander/Live-Polling-System/internal/poll"
)

// DefaultInterval is the local re-derivation cadence.
const DefaultInterval = 250 * time.Millisecond

// View is what a single client needs to render the current poll.
type View struct {
	Question    *models.Question `json:"question,omitempty"`
	Counts      []int            `json:"counts,omitempty"`
	Total       int              `json:"total"`
	Percentages []int            `json:"percentages,omitempty"`
	HasAnswered bool             `json:"has_answered"`
	// Expired is natural time-based expiry (elapsed >= duration), independent
	// of the store-side Stopped flag.
	Expired     bool  `json:"expired"`
	RemainingMS int64 `json:"remaining_ms"`
}

// Compute derives a View from a results snapshot for one student at a given
// instant. A nil results means no current question.
func Compute(results *models.Results, hasAnswered bool, now time.Time) View {
	if results == nil || results.Question == nil {
		return View{}
	}
	q := results.Question
	v := View{
		Question:    q,
		Counts:      results.Counts,
		Total:       results.Total,
		Percentages: Percentages(results.Counts, results.Total),
		HasAnswered: hasAnswered,
		Expired:     now.Sub(q.StartedAt) >= time.Duration(q.DurationSec)*time.Second,
	}
	if q.Stopped {
		v.RemainingMS = q.StoppedRemaining.Milliseconds()
	} else {
		end := q.StartedAt.Add(time.Duration(q.DurationSec) * time.Second)
		if rem := end.Sub(now); rem > 0 {
			v.RemainingMS = rem.Milliseconds()
		}
	}
	return v
}

// Percentages returns round(100 * count / total) per option, all zeros when
// total is zero.
func Percentages(counts []int, total int) []int {
	out := make([]int, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = int(math.Round(100 * float64(c) / float64(total)))
	}
	return out
}

// Projector keeps one client's View current: it recomputes on every store
// event and on a fixed ticker in between, pushing updates to the callback.
type Projector struct {
	store     *poll.Store
	studentID string
	interval  time.Duration
	now       func() time.Time
	onUpdate  func(View)
}

// NewProjector creates a projector for one student's view of the store.
func NewProjector(store *poll.Store, studentID string, onUpdate func(View)) *Projector {
	return &Projector{
		store:     store,
		studentID: studentID,
		interval:  DefaultInterval,
		now:       time.Now,
		onUpdate:  onUpdate,
	}
}

// SetInterval overrides the re-derivation cadence, for tests.
func (p *Projector) SetInterval(d time.Duration) { p.interval = d }

// Current computes the view right now without waiting for the loop.
func (p *Projector) Current() View {
	_, answered := p.store.AnswerOf(p.studentID)
	return Compute(p.store.Results(), answered, p.now())
}

// Run recomputes until ctx is cancelled. Store events trigger an immediate
// recompute; the ticker covers countdown display between events.
func (p *Projector) Run(ctx context.Context) {
	changed := make(chan struct{}, 1)
	unsubscribe := p.store.OnChange(func(poll.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.onUpdate(p.Current())
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			p.onUpdate(p.Current())
		case <-ticker.C:
			p.onUpdate(p.Current())
		}
	}
}
