package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"DealRoom/internal/models"
)

// EmailTask is the payload of an email outbox row.
type EmailTask struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
}

// EmailQueue persists outbound email as outbox tasks for the worker to deliver.
type EmailQueue struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

func NewEmailQueue(db *gorm.DB, maxAttempts int) *EmailQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &EmailQueue{db: db, maxAttempts: maxAttempts, now: func() time.Time { return time.Now().UTC() }}
}

// Push stores one email task and reports the failure.
func (q *EmailQueue) Push(ctx context.Context, task EmailTask) (string, error) {
	if task.To == "" {
		return "", errors.New("email task has no recipient")
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encode email task: %w", err)
	}
	row := models.OutboxTask{
		ID:            uuid.NewString(),
		Kind:          models.OutboxEmail,
		Payload:       datatypes.JSON(raw),
		MaxAttempts:   q.maxAttempts,
		NextAttemptAt: q.now(),
	}
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("store email task: %w", err)
	}
	return row.ID, nil
}

// Enqueue is the best-effort form of Push used by workflows.
func (q *EmailQueue) Enqueue(ctx context.Context, to, template string, data map[string]any) {
	if q == nil {
		return
	}
	if _, err := q.Push(ctx, EmailTask{To: to, Template: template, Data: data}); err != nil {
		log.Printf("⚠️  %s email to %s not queued: %v", template, to, err)
	}
}

// OutboxWorker delivers due email tasks with exponential backoff.
type OutboxWorker struct {
	db         *gorm.DB
	mailer     Mailer
	templates  *EmailTemplates
	deadLetter DeadLetterPublisher
	interval   time.Duration
	batchSize  int
	baseDelay  time.Duration
	maxDelay   time.Duration
	lease      time.Duration
	now        func() time.Time
}

func NewOutboxWorker(db *gorm.DB, mailer Mailer, templates *EmailTemplates, deadLetter DeadLetterPublisher, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if deadLetter == nil {
		deadLetter = LoggingDeadLetterPublisher{}
	}
	return &OutboxWorker{
		db:         db,
		mailer:     mailer,
		templates:  templates,
		deadLetter: deadLetter,
		interval:   interval,
		batchSize:  batchSize,
		baseDelay:  30 * time.Second,
		maxDelay:   30 * time.Minute,
		lease:      5 * time.Minute,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run processes batches until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	log.Printf("🚀 Outbox worker started (interval %s)", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("❌ Outbox iteration failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Println("✅ Outbox worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type BatchResult struct {
	Delivered    int
	Retried      int
	DeadLettered int
}

// ProcessOnce delivers one batch of due tasks.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	tasks, err := w.claim(ctx)
	if err != nil {
		return result, err
	}

	for i := range tasks {
		task := &tasks[i]
		err := w.deliver(ctx, task)
		switch {
		case err == nil:
			result.Delivered++
			w.markDelivered(ctx, task)
		case errors.Is(err, errPermanent) || task.Attempts+1 >= task.MaxAttempts:
			result.DeadLettered++
			w.markDeadLettered(ctx, task, err)
		default:
			result.Retried++
			w.markRetry(ctx, task, err)
		}
	}
	if len(tasks) > 0 {
		log.Printf("📧 Outbox batch: %d delivered, %d retried, %d dead-lettered", result.Delivered, result.Retried, result.DeadLettered)
	}
	return result, nil
}

// claim locks due rows, skipping rows another worker holds, and leases them
// by moving next_attempt_at forward. An unfinished claim is retried once
// the lease runs out.
func (w *OutboxWorker) claim(ctx context.Context) ([]models.OutboxTask, error) {
	now := w.now()
	token := uuid.NewString()
	var tasks []models.OutboxTask
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		due := tx.Model(&models.OutboxTask{}).
			Select("id").
			Where("kind = ? AND delivered_at IS NULL AND dead_lettered_at IS NULL AND next_attempt_at <= ?", models.OutboxEmail, now).
			Order("next_attempt_at ASC").
			Limit(w.batchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&models.OutboxTask{}).
			Where("id IN (?) AND next_attempt_at <= ?", due, now).
			Updates(map[string]any{
				"claim_token":     token,
				"next_attempt_at": now.Add(w.lease),
			}).Error; err != nil {
			return err
		}
		return tx.Where("claim_token = ?", token).
			Order("created_at ASC").
			Find(&tasks).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox tasks: %w", err)
	}
	return tasks, nil
}

var errPermanent = errors.New("permanent failure")

func (w *OutboxWorker) deliver(ctx context.Context, task *models.OutboxTask) error {
	var payload EmailTask
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode payload: %v", errPermanent, err)
	}
	msg, err := w.templates.Render(payload.Template, payload.To, payload.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	id, err := w.mailer.Send(ctx, msg)
	if err != nil {
		return err
	}
	log.Printf("✅ Email %s sent to %s (ID: %s)", payload.Template, payload.To, id)
	return nil
}

// Backoff returns the delay before retry number attempt (1-based).
func (w *OutboxWorker) Backoff(attempt int) time.Duration {
	d := w.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.maxDelay {
			return w.maxDelay
		}
	}
	return d
}

func (w *OutboxWorker) markDelivered(ctx context.Context, task *models.OutboxTask) {
	now := w.now()
	if err := w.db.WithContext(ctx).Model(task).Updates(map[string]any{
		"attempts":     task.Attempts + 1,
		"delivered_at": now,
		"last_error":   "",
	}).Error; err != nil {
		log.Printf("❌ Failed to mark outbox task %s delivered: %v", task.ID, err)
	}
}

func (w *OutboxWorker) markRetry(ctx context.Context, task *models.OutboxTask, cause error) {
	attempts := task.Attempts + 1
	next := w.now().Add(w.Backoff(attempts))
	log.Printf("⚠️  Outbox task %s failed (attempt %d/%d), retry at %s: %v", task.ID, attempts, task.MaxAttempts, next.Format(time.RFC3339), cause)
	if err := w.db.WithContext(ctx).Model(task).Updates(map[string]any{
		"attempts":        attempts,
		"last_error":      cause.Error(),
		"next_attempt_at": next,
	}).Error; err != nil {
		log.Printf("❌ Failed to reschedule outbox task %s: %v", task.ID, err)
	}
}

func (w *OutboxWorker) markDeadLettered(ctx context.Context, task *models.OutboxTask, cause error) {
	now := w.now()
	task.Attempts++
	task.LastError = cause.Error()
	task.DeadLetteredAt = &now
	log.Printf("❌ Outbox task %s moved to dead-letter after %d attempts: %v", task.ID, task.Attempts, cause)
	if err := w.db.WithContext(ctx).Model(task).Updates(map[string]any{
		"attempts":         task.Attempts,
		"last_error":       task.LastError,
		"dead_lettered_at": now,
	}).Error; err != nil {
		log.Printf("❌ Failed to mark outbox task %s dead-lettered: %v", task.ID, err)
	}
	if err := w.deadLetter.Publish(ctx, *task); err != nil {
		log.Printf("❌ Dead-letter publish failed for task %s: %v", task.ID, err)
	}
}
