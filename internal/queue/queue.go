package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maru-lead-engine/internal/models"
	"maru-lead-engine/internal/services"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// BatchSize caps how many items one worker tick processes.
	BatchSize = 10

	// backoffBase is the multiplier of the exponential backoff schedule:
	// next_retry_at = now + backoffBase * 2^retry_count, giving 10, 20 and
	// 40 minutes for retry counts 1, 2 and 3.
	backoffBase = 5 * time.Minute

	defaultMaxRetries = 3
)

// Processor is the work each dequeued item is handed to.
type Processor interface {
	Process(ctx context.Context, payload *models.NormalizedPayload) (*services.ProcessResult, error)
}

// BatchResult summarizes one worker tick.
type BatchResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// Queue is the durable work queue for lead processing, backed by the
// relational store's status column. Items move pending -> processing ->
// {completed | pending with backoff | failed}; completed and failed are
// terminal.
type Queue struct {
	db         *gorm.DB
	processor  Processor
	maxRetries int
}

// New creates a new Queue.
func New(db *gorm.DB, processor Processor, maxRetries int) (*Queue, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Queue{db: db, processor: processor, maxRetries: maxRetries}, nil
}

// Enqueue stores a payload as a pending queue item and returns it.
func (q *Queue) Enqueue(payload *models.NormalizedPayload) (*models.QueueItem, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	item := models.QueueItem{
		Payload:    raw,
		Status:     models.QueueStatusPending,
		MaxRetries: q.maxRetries,
	}
	if err := q.db.Create(&item).Error; err != nil {
		log.Error().Err(err).Str("source", string(payload.Source)).Msg("Failed to enqueue lead")
		return nil, fmt.Errorf("failed to queue lead for processing: %w", err)
	}

	log.Info().Str("queueID", item.ID).Str("source", string(payload.Source)).Msg("Lead queued for processing")
	return &item, nil
}

// ProcessBatch performs one worker tick: it selects up to BatchSize eligible
// pending items oldest-first and processes each one. Items are claimed with a
// conditional update on status, so two overlapping ticks never process the
// same item twice.
func (q *Queue) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	now := time.Now()

	var items []models.QueueItem
	err := q.db.
		Where("status = ?", models.QueueStatusPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Where("retry_count < max_retries").
		Order("created_at ASC").
		Limit(BatchSize).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue items: %w", err)
	}

	result := &BatchResult{Errors: []string{}}
	if len(items) == 0 {
		return result, nil
	}

	log.Info().Int("count", len(items)).Msg("Processing queued items")

	for i := range items {
		item := &items[i]
		if !q.claim(item) {
			// Another tick won this item between select and claim.
			continue
		}

		procResult, procErr := q.runItem(ctx, item)
		if procErr != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Item %s: %s", item.ID, procErr.Error()))
			q.markFailure(item, procErr)
			continue
		}

		q.markCompleted(item, procResult)
		result.Processed++
	}
	return result, nil
}

// claim transitions one item pending -> processing. The WHERE clause on status
// is the compare-and-swap that makes overlapping ticks safe.
func (q *Queue) claim(item *models.QueueItem) bool {
	now := time.Now()
	res := q.db.Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", item.ID, models.QueueStatusPending).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusProcessing,
			"started_at": now,
		})
	if res.Error != nil {
		log.Error().Err(res.Error).Str("queueID", item.ID).Msg("Failed to claim queue item")
		return false
	}
	if res.RowsAffected == 0 {
		log.Debug().Str("queueID", item.ID).Msg("Queue item already claimed elsewhere, skipping")
		return false
	}
	return true
}

func (q *Queue) runItem(ctx context.Context, item *models.QueueItem) (*services.ProcessResult, error) {
	var payload models.NormalizedPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid queued payload: %w", err)
	}
	return q.processor.Process(ctx, &payload)
}

func (q *Queue) markCompleted(item *models.QueueItem, procResult *services.ProcessResult) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.QueueStatusCompleted,
		"completed_at": now,
	}
	if raw, err := json.Marshal(procResult); err == nil {
		updates["result"] = raw
	}
	if err := q.db.Model(&models.QueueItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
		log.Error().Err(err).Str("queueID", item.ID).Msg("Failed to mark queue item completed")
		return
	}
	log.Info().Str("queueID", item.ID).Msg("Queue item processed")
}

// markFailure increments the retry count and either schedules a backed-off
// retry or, once max_retries is exhausted, marks the item terminally failed.
func (q *Queue) markFailure(item *models.QueueItem, cause error) {
	now := time.Now()
	newRetryCount := item.RetryCount + 1
	maxRetries := item.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	if newRetryCount >= maxRetries {
		err := q.db.Model(&models.QueueItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
			"status":        models.QueueStatusFailed,
			"error_message": cause.Error(),
			"retry_count":   newRetryCount,
			"completed_at":  now,
		}).Error
		if err != nil {
			log.Error().Err(err).Str("queueID", item.ID).Msg("Failed to mark queue item failed")
			return
		}
		log.Warn().Str("queueID", item.ID).Int("retryCount", newRetryCount).Msg("Queue item failed terminally")
		return
	}

	nextRetryAt := now.Add(BackoffDelay(newRetryCount))
	err := q.db.Model(&models.QueueItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"status":        models.QueueStatusPending,
		"error_message": cause.Error(),
		"retry_count":   newRetryCount,
		"next_retry_at": nextRetryAt,
	}).Error
	if err != nil {
		log.Error().Err(err).Str("queueID", item.ID).Msg("Failed to reschedule queue item")
		return
	}
	log.Info().Str("queueID", item.ID).Time("nextRetryAt", nextRetryAt).Msg("Queue item scheduled for retry")
}

// BackoffDelay returns the retry delay for a given retry count:
// backoffBase * 2^retryCount.
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return backoffBase << retryCount
}
