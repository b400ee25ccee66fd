// Package queue is the Redis-backed write-behind queue for durable state.
// Producers enqueue fire-and-forget; the worker drains into PostgreSQL. A
// queue failure never affects in-memory correctness, only history depth.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manishrander/Live-Polling-System/internal/models"
)

const (
	// QueuePersistence is the Redis list key for durable-write jobs.
	QueuePersistence = "livepoll:persistence"
	// QueueDLQ is the dead-letter queue for jobs that exhausted retries.
	QueueDLQ = "livepoll:dlq"
	// MaxRetries is the number of times to retry a job before the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeChatMessage JobType = "chat_message"
	JobTypeQuestion    JobType = "question"
	JobTypeAnswer      JobType = "answer"
	JobTypeArchive     JobType = "archive"
)

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues persistence jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed persistence queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueChatMessage enqueues a chat message append.
func (q *Queue) EnqueueChatMessage(ctx context.Context, m models.ChatMessage) error {
	return q.enqueue(ctx, JobTypeChatMessage, m)
}

// EnqueueQuestion enqueues a new question row.
func (q *Queue) EnqueueQuestion(ctx context.Context, question models.Question) error {
	return q.enqueue(ctx, JobTypeQuestion, question)
}

// EnqueueAnswer enqueues an accepted answer record.
func (q *Queue) EnqueueAnswer(ctx context.Context, a models.AnswerRecord) error {
	return q.enqueue(ctx, JobTypeAnswer, a)
}

// EnqueueArchive enqueues an archived question snapshot.
func (q *Queue) EnqueueArchive(ctx context.Context, h models.HistoryEntry) error {
	return q.enqueue(ctx, JobTypeArchive, h)
}

func (q *Queue) enqueue(ctx context.Context, typ JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueuePersistence, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued persistence job", zap.String("job_id", job.ID), zap.String("type", string(typ)))
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueuePersistence).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. After MaxRetries the job
// moves to the DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueuePersistence, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
