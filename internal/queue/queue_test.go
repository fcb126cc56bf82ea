package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"maru-lead-engine/internal/models"
	"maru-lead-engine/internal/services"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.AutoMigrate(&models.QueueItem{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return database
}

type fakeProcessor struct {
	err       error
	processed []string // user IDs in processing order
}

func (f *fakeProcessor) Process(ctx context.Context, payload *models.NormalizedPayload) (*services.ProcessResult, error) {
	f.processed = append(f.processed, payload.UserID)
	if f.err != nil {
		return nil, f.err
	}
	return &services.ProcessResult{Success: true, LeadID: "lead-" + payload.UserID, Qualified: true}, nil
}

func payload(userID string) *models.NormalizedPayload {
	return &models.NormalizedPayload{
		Source:         models.SourceFacebook,
		UserID:         userID,
		MessageContent: "need a quote please",
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 40 * time.Minute},
	}
	for _, c := range cases {
		if got := BackoffDelay(c.retryCount); got != c.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}

func TestEnqueue(t *testing.T) {
	db := openTestDB(t)
	q, err := New(db, &fakeProcessor{}, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	item, err := q.Enqueue(payload("U1"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.ID == "" {
		t.Error("queue item should have an ID")
	}
	if item.Status != models.QueueStatusPending {
		t.Errorf("status = %q, want pending", item.Status)
	}
	if item.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want 3", item.MaxRetries)
	}

	var stored models.QueueItem
	if err := db.First(&stored, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("item not persisted: %v", err)
	}
	var decoded models.NormalizedPayload
	if err := json.Unmarshal(stored.Payload, &decoded); err != nil {
		t.Fatalf("stored payload not decodable: %v", err)
	}
	if decoded.UserID != "U1" || decoded.Source != models.SourceFacebook {
		t.Errorf("payload round-trip lost data: %+v", decoded)
	}
}

func TestProcessBatchCompletesItem(t *testing.T) {
	db := openTestDB(t)
	proc := &fakeProcessor{}
	q, _ := New(db, proc, 3)

	item, _ := q.Enqueue(payload("U1"))

	result, err := q.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 1 processed", result)
	}
	if len(proc.processed) != 1 || proc.processed[0] != "U1" {
		t.Fatalf("processor saw %v", proc.processed)
	}

	var stored models.QueueItem
	db.First(&stored, "id = ?", item.ID)
	if stored.Status != models.QueueStatusCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	if stored.CompletedAt == nil || stored.StartedAt == nil {
		t.Error("started_at and completed_at should be stamped")
	}
	if len(stored.Result) == 0 {
		t.Error("process result should be stored on the item")
	}
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	db := openTestDB(t)
	proc := &fakeProcessor{}
	q, _ := New(db, proc, 3)

	result, err := q.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Processed != 0 || result.Failed != 0 || len(result.Errors) != 0 {
		t.Errorf("empty tick should be a no-op, got %+v", result)
	}
	if len(proc.processed) != 0 {
		t.Error("processor must not be called on an empty queue")
	}
}

func TestProcessBatchFIFO(t *testing.T) {
	db := openTestDB(t)
	proc := &fakeProcessor{}
	q, _ := New(db, proc, 3)

	base := time.Now().Add(-time.Hour)
	for i, user := range []string{"U3", "U1", "U2"} {
		item, _ := q.Enqueue(payload(user))
		// Spread created_at so insertion order is not the FIFO order.
		offset := map[string]time.Duration{"U1": 0, "U2": 10 * time.Minute, "U3": 20 * time.Minute}[user]
		if err := db.Model(&models.QueueItem{}).Where("id = ?", item.ID).Update("created_at", base.Add(offset)).Error; err != nil {
			t.Fatalf("backdate item %d: %v", i, err)
		}
	}

	if _, err := q.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	want := []string{"U1", "U2", "U3"}
	if len(proc.processed) != 3 {
		t.Fatalf("processed %v", proc.processed)
	}
	for i := range want {
		if proc.processed[i] != want[i] {
			t.Fatalf("processing order = %v, want %v", proc.processed, want)
		}
	}
}

func TestProcessBatchSchedulesRetryWithBackoff(t *testing.T) {
	db := openTestDB(t)
	proc := &fakeProcessor{err: errors.New("downstream unavailable")}
	q, _ := New(db, proc, 3)

	item, _ := q.Enqueue(payload("U1"))

	before := time.Now()
	result, err := q.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Failed != 1 || result.Processed != 0 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], item.ID) {
		t.Errorf("errors should name the item, got %v", result.Errors)
	}

	var stored models.QueueItem
	db.First(&stored, "id = ?", item.ID)
	if stored.Status != models.QueueStatusPending {
		t.Errorf("status = %q, want pending for retry", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", stored.RetryCount)
	}
	if stored.ErrorMessage != "downstream unavailable" {
		t.Errorf("error_message = %q", stored.ErrorMessage)
	}
	if stored.NextRetryAt == nil {
		t.Fatal("next_retry_at should be set")
	}
	gap := stored.NextRetryAt.Sub(before)
	if gap < 9*time.Minute || gap > 11*time.Minute {
		t.Errorf("first retry delay = %v, want ~10m", gap)
	}

	// The backed-off item is not eligible until next_retry_at passes.
	again, err := q.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if again.Processed != 0 || again.Failed != 0 {
		t.Errorf("backed-off item must not be re-dequeued immediately, got %+v", again)
	}
}

func TestProcessBatchTerminalFailure(t *testing.T) {
	db := openTestDB(t)
	proc := &fakeProcessor{err: errors.New("still broken")}
	q, _ := New(db, proc, 3)

	item, _ := q.Enqueue(payload("U1"))

	for attempt := 0; attempt < 3; attempt++ {
		// Make the item eligible regardless of backoff.
		if err := db.Model(&models.QueueItem{}).Where("id = ?", item.ID).Update("next_retry_at", time.Now().Add(-time.Minute)).Error; err != nil {
			t.Fatalf("clear backoff: %v", err)
		}
		if _, err := q.ProcessBatch(context.Background()); err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
	}

	var stored models.QueueItem
	db.First(&stored, "id = ?", item.ID)
	if stored.Status != models.QueueStatusFailed {
		t.Fatalf("status = %q, want failed after max retries", stored.Status)
	}
	if stored.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", stored.RetryCount)
	}

	// Terminal items are never dequeued again, even with the backoff cleared.
	if err := db.Model(&models.QueueItem{}).Where("id = ?", item.ID).Update("next_retry_at", time.Now().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("clear backoff: %v", err)
	}
	calls := len(proc.processed)
	if _, err := q.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(proc.processed) != calls {
		t.Error("terminally failed item was dequeued again")
	}
}

func TestClaimIsExclusive(t *testing.T) {
	db := openTestDB(t)
	q, _ := New(db, &fakeProcessor{}, 3)

	item, _ := q.Enqueue(payload("U1"))

	if !q.claim(item) {
		t.Fatal("first claim should succeed")
	}
	// A second tick that selected the item before the first claim landed must
	// lose the conditional update.
	if q.claim(item) {
		t.Fatal("second claim on a processing item must fail")
	}

	var stored models.QueueItem
	db.First(&stored, "id = ?", item.ID)
	if stored.Status != models.QueueStatusProcessing {
		t.Errorf("status = %q, want processing", stored.Status)
	}
}

func TestProcessBatchSkipsUndecodablePayload(t *testing.T) {
	db := openTestDB(t)
	q, _ := New(db, &fakeProcessor{}, 3)

	item := models.QueueItem{Payload: []byte("{not json"), Status: models.QueueStatusPending, MaxRetries: 3}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("insert item: %v", err)
	}

	result, err := q.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}

	var stored models.QueueItem
	db.First(&stored, "id = ?", item.ID)
	if stored.RetryCount != 1 || stored.Status != models.QueueStatusPending {
		t.Errorf("undecodable payload should follow the retry path: %+v", stored)
	}
}
