// Package worker drains the persistence queue into PostgreSQL.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/manishrander/Live-Polling-System/internal/chat"
	"github.com/manishrander/Live-Polling-System/internal/models"
	"github.com/manishrander/Live-Polling-System/internal/poll"
	"github.com/manishrander/Live-Polling-System/pkg/queue"
)

// Processor consumes persistence jobs and writes them through the
// repositories. Failures retry with backoff and eventually land in the DLQ;
// the live system never waits on any of this.
type Processor struct {
	chatRepo *chat.Repository
	pollRepo *poll.Repository
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewProcessor creates a persistence processor.
func NewProcessor(chatRepo *chat.Repository, pollRepo *poll.Repository, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{chatRepo: chatRepo, pollRepo: pollRepo, queue: q, logger: logger}
}

// Process executes one persistence job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeChatMessage:
		var m models.ChatMessage
		if err := json.Unmarshal(job.Payload, &m); err != nil {
			return fmt.Errorf("unmarshal chat message: %w", err)
		}
		return p.chatRepo.InsertMessage(ctx, m)
	case queue.JobTypeQuestion:
		var q models.Question
		if err := json.Unmarshal(job.Payload, &q); err != nil {
			return fmt.Errorf("unmarshal question: %w", err)
		}
		return p.pollRepo.InsertQuestion(ctx, q)
	case queue.JobTypeAnswer:
		var a models.AnswerRecord
		if err := json.Unmarshal(job.Payload, &a); err != nil {
			return fmt.Errorf("unmarshal answer: %w", err)
		}
		return p.pollRepo.InsertAnswer(ctx, a)
	case queue.JobTypeArchive:
		var h models.HistoryEntry
		if err := json.Unmarshal(job.Payload, &h); err != nil {
			return fmt.Errorf("unmarshal archive: %w", err)
		}
		return p.pollRepo.ArchiveQuestion(ctx, h)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("persistence worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
