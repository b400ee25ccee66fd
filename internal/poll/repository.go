package poll

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/manishrander/Live-Polling-System/internal/models"
)

// Repository mirrors poll state into PostgreSQL. The in-memory Store is the
// source of truth; these writes are best-effort archival.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a poll repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertQuestion records a newly created question.
func (r *Repository) InsertQuestion(ctx context.Context, q models.Question) error {
	const query = `INSERT INTO poll_questions (id, body, options, started_at, duration_sec)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, q.ID, q.Text, q.Options, q.StartedAt, q.DurationSec); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// InsertAnswer records an accepted answer. The primary key enforces the
// at-most-one-answer-per-student invariant at the storage layer too.
func (r *Repository) InsertAnswer(ctx context.Context, a models.AnswerRecord) error {
	const query = `INSERT INTO poll_answers (question_id, student_id, student_name, option_index, answered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (question_id, student_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, a.QuestionID, a.StudentID, a.StudentName, a.OptionIndex, a.AnsweredAt); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// ArchiveQuestion stores the final snapshot of a superseded question and
// marks the question row completed.
func (r *Repository) ArchiveQuestion(ctx context.Context, h models.HistoryEntry) error {
	const historyQuery = `INSERT INTO poll_history (id, body, options, counts, total, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, historyQuery, h.ID, h.Text, h.Options, h.Counts, h.Total, h.CompletedAt); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	const completeQuery = `UPDATE poll_questions SET completed = TRUE, completed_at = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, completeQuery, h.ID, h.CompletedAt); err != nil {
		return fmt.Errorf("mark question completed: %w", err)
	}
	return nil
}

// RecentHistory returns archived questions, most recent first.
func (r *Repository) RecentHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, body, options, counts, total, completed_at
		FROM poll_history ORDER BY completed_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		if err := rows.Scan(&h.ID, &h.Text, &h.Options, &h.Counts, &h.Total, &h.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
