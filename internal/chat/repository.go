package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/manishrander/Live-Polling-System/internal/models"
)

// Repository persists chat messages and participants. Every caller treats a
// failure here as log-and-continue: the in-memory channel keeps working with
// reduced history when the store is unreachable.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertMessage appends a chat message.
func (r *Repository) InsertMessage(ctx context.Context, m models.ChatMessage) error {
	const query = `INSERT INTO chat_messages (id, sender, body, sent_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, m.ID, m.From, m.Text, m.Timestamp); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent messages, oldest first, for replay.
func (r *Repository) RecentMessages(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryWindow
	}
	const query = `SELECT id, sender, body, sent_at FROM chat_messages ORDER BY sent_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.From, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query is newest-first for the LIMIT; replay wants oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpsertParticipant mirrors a live presence entry, keyed by connection id.
func (r *Repository) UpsertParticipant(ctx context.Context, connectionID string, p models.Participant) error {
	const query = `INSERT INTO participants (connection_id, client_id, name, joined_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (connection_id) DO UPDATE SET client_id = EXCLUDED.client_id, name = EXCLUDED.name`
	if _, err := r.pool.Exec(ctx, query, connectionID, p.ID, p.Name); err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// DeleteParticipant removes the presence mirror row on disconnect.
func (r *Repository) DeleteParticipant(ctx context.Context, connectionID string) error {
	const query = `DELETE FROM participants WHERE connection_id = $1`
	if _, err := r.pool.Exec(ctx, query, connectionID); err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

// ListParticipants returns mirrored participants ordered by join time.
func (r *Repository) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	const query = `SELECT client_id, name FROM participants ORDER BY joined_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
