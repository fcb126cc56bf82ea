package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"maru-lead-engine/internal/models"
	"maru-lead-engine/internal/queue"
	"maru-lead-engine/internal/services"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db     *gorm.DB
	queue  *queue.Queue
	intake *InboundHandler
}

type noopProcessor struct{}

func (noopProcessor) Process(ctx context.Context, payload *models.NormalizedPayload) (*services.ProcessResult, error) {
	return &services.ProcessResult{Success: true, LeadID: "lead-1"}, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	dedup, err := services.NewDeduplicator(db)
	if err != nil {
		t.Fatalf("NewDeduplicator: %v", err)
	}
	audit, err := services.NewAuditLog(db)
	if err != nil {
		t.Fatalf("NewAuditLog: %v", err)
	}
	q, err := queue.New(db, noopProcessor{}, 3)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}

	return &fixture{
		db:     db,
		queue:  q,
		intake: NewInboundHandler(dedup, q, audit, 2*time.Hour),
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v (body %q)", err, rec.Body.String())
	}
	return body
}

func (f *fixture) queueCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.QueueItem{}).Count(&n).Error; err != nil {
		t.Fatalf("count queue items: %v", err)
	}
	return n
}

func TestInboundHandlerQueuesPayload(t *testing.T) {
	f := newFixture(t)

	payload := `{"source":"facebook","user_id":"fb-1","message_content":"Need a quote for CCTV installation"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/social-inbound", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	f.intake.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["queued"] != true || body["queue_id"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	if f.queueCount(t) != 1 {
		t.Error("expected one queue item")
	}

	var event models.WebhookEvent
	if err := f.db.First(&event, "source = ?", models.SourceFacebook).Error; err != nil {
		t.Fatalf("webhook event not recorded: %v", err)
	}
	if !event.Processed {
		t.Error("webhook event should be marked processed")
	}
}

func TestInboundHandlerRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)

	cases := map[string]string{
		"not json":       `{broken`,
		"missing fields": `{"source":"facebook"}`,
		"unknown source": `{"source":"carrierpigeon","user_id":"u","message_content":"hi"}`,
		"empty message":  `{"source":"facebook","user_id":"u","message_content":""}`,
	}
	for name, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/social-inbound", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		f.intake.Handle(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d, want 400", name, rec.Code)
		}
	}
	if f.queueCount(t) != 0 {
		t.Error("invalid payloads must not be queued")
	}
}

func TestInboundHandlerSkipsDuplicate(t *testing.T) {
	f := newFixture(t)

	// A processed lead from the same user makes a near-identical follow-up a
	// duplicate.
	lead := models.Lead{Source: models.SourceFacebook, SourceUserID: "fb-1", MessageContent: "Need a quote for CCTV installation"}
	if err := f.db.Create(&lead).Error; err != nil {
		t.Fatalf("insert lead: %v", err)
	}

	payload := `{"source":"facebook","user_id":"fb-1","message_content":"Need a quote for CCTV installation!"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/social-inbound", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	f.intake.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["duplicate"] != true {
		t.Fatalf("expected duplicate response, got %v", body)
	}
	if f.queueCount(t) != 0 {
		t.Error("duplicates must not be queued")
	}
}

func TestInboundHandlerHealthProbe(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/webhooks/social-inbound", nil)
	rec := httptest.NewRecorder()
	f.intake.Handle(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestWebFormHandler(t *testing.T) {
	f := newFixture(t)
	handler := NewWebFormHandler(f.intake)

	form := `{"name":"Sipho Dlamini","email":"sipho@example.co.za","message":"Please send a quote for garden services","source_page":"/contact"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/web-form", strings.NewReader(form))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var item models.QueueItem
	if err := f.db.First(&item).Error; err != nil {
		t.Fatalf("queue item not created: %v", err)
	}
	var payload models.NormalizedPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Source != models.SourceWebForm {
		t.Errorf("source = %q, want web_form", payload.Source)
	}
	if payload.UserID != "sipho@example.co.za" {
		t.Errorf("user id should fall back to the email, got %q", payload.UserID)
	}
	if payload.Metadata == nil || payload.Metadata.UserName != "Sipho Dlamini" {
		t.Errorf("metadata user name missing: %+v", payload.Metadata)
	}
}

func TestWebFormHandlerUserIDFallback(t *testing.T) {
	f := newFixture(t)
	handler := NewWebFormHandler(f.intake)

	form := `{"name":"Anna","message":"Call me back please"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/web-form", strings.NewReader(form))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var item models.QueueItem
	if err := f.db.First(&item).Error; err != nil {
		t.Fatalf("queue item not created: %v", err)
	}
	var payload models.NormalizedPayload
	_ = json.Unmarshal(item.Payload, &payload)
	if payload.UserID != "Anna" {
		t.Errorf("user id should fall back to the name, got %q", payload.UserID)
	}
}

func TestWebFormHandlerValidation(t *testing.T) {
	f := newFixture(t)
	handler := NewWebFormHandler(f.intake)

	cases := map[string]string{
		"missing message": `{"name":"Anna"}`,
		"missing name":    `{"message":"hello"}`,
		"bad email":       `{"name":"Anna","email":"not-an-email","message":"hello"}`,
	}
	for name, form := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/web-form", strings.NewReader(form))
		rec := httptest.NewRecorder()
		handler.Handle(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d, want 400", name, rec.Code)
		}
	}
}

func signMeta(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestMetaWebhookVerification(t *testing.T) {
	f := newFixture(t)
	handler := NewMetaWebhookHandler(f.intake, NewEventCache(time.Hour), "app-secret", "verify-me")

	req := httptest.NewRequest(http.MethodGet, "/webhooks/meta?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("status=%d body=%q, want 200 with echoed challenge", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/meta?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	handler.Handle(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong token: status=%d, want 403", rec.Code)
	}
}

func TestMetaWebhookSignature(t *testing.T) {
	f := newFixture(t)
	handler := NewMetaWebhookHandler(f.intake, NewEventCache(time.Hour), "app-secret", "verify-me")

	body := []byte(`{"object":"page","entry":[]}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: status=%d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec = httptest.NewRecorder()
	handler.Handle(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status=%d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signMeta("app-secret", body))
	rec = httptest.NewRecorder()
	handler.Handle(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid signature: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMetaWebhookMessagingEntry(t *testing.T) {
	f := newFixture(t)
	handler := NewMetaWebhookHandler(f.intake, NewEventCache(time.Hour), "app-secret", "verify-me")

	body := []byte(`{
		"object": "instagram",
		"entry": [{
			"id": "page-1",
			"time": 1756500000000,
			"messaging": [{
				"sender": {"id": "ig-user-9"},
				"recipient": {"id": "page-1"},
				"timestamp": 1756500000000,
				"message": {"mid": "m-1", "text": "How much for a full service?"}
			}]
		}]
	}`)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", signMeta("app-secret", body))
		rec := httptest.NewRecorder()
		handler.Handle(rec, req)
		return rec
	}

	if rec := post(); rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if f.queueCount(t) != 1 {
		t.Fatalf("expected one queue item, got %d", f.queueCount(t))
	}

	var item models.QueueItem
	f.db.First(&item)
	var payload models.NormalizedPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Source != models.SourceInstagram || payload.UserID != "ig-user-9" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.MessageContent != "How much for a full service?" {
		t.Errorf("message = %q", payload.MessageContent)
	}

	// Redelivery of the same mid is dropped by the event cache.
	if rec := post(); rec.Code != http.StatusOK {
		t.Fatalf("redelivery status=%d", rec.Code)
	}
	if f.queueCount(t) != 1 {
		t.Errorf("redelivered event must not enqueue again, got %d items", f.queueCount(t))
	}
}

func TestMetaWebhookFeedComment(t *testing.T) {
	f := newFixture(t)
	handler := NewMetaWebhookHandler(f.intake, NewEventCache(time.Hour), "app-secret", "verify-me")

	body := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"changes": [{
				"field": "feed",
				"value": {
					"item": "comment",
					"message": "Do you install in Midrand? Need a quote",
					"post_id": "post-7",
					"comment_id": "comment-7",
					"from": {"id": "fb-user-3", "name": "Lerato K"}
				}
			}]
		}]
	}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signMeta("app-secret", body))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var item models.QueueItem
	if err := f.db.First(&item).Error; err != nil {
		t.Fatalf("queue item not created: %v", err)
	}
	var payload models.NormalizedPayload
	_ = json.Unmarshal(item.Payload, &payload)
	if payload.Source != models.SourceFacebook || payload.UserID != "fb-user-3" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.Metadata == nil || payload.Metadata.CommentID != "comment-7" || payload.Metadata.PostID != "post-7" {
		t.Errorf("comment metadata missing: %+v", payload.Metadata)
	}
}

func TestTikTokWebhookComment(t *testing.T) {
	f := newFixture(t)
	handler := NewTikTokWebhookHandler(f.intake, NewEventCache(time.Hour))

	body := `{
		"event": "comment.created",
		"timestamp": 1756500000,
		"data": {
			"comment_id": "tt-c-1",
			"user_id": "tt-user-5",
			"text": "price for matric dance makeup?",
			"video_id": "vid-1"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/tiktok", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var item models.QueueItem
	if err := f.db.First(&item).Error; err != nil {
		t.Fatalf("queue item not created: %v", err)
	}
	var payload models.NormalizedPayload
	_ = json.Unmarshal(item.Payload, &payload)
	if payload.Source != models.SourceTikTok || payload.UserID != "tt-user-5" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestWorkerAuth(t *testing.T) {
	f := newFixture(t)
	worker := NewWorkerHandler(f.queue)
	protected := WorkerAuth("tick-secret")(http.HandlerFunc(worker.Handle))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer nope", http.StatusUnauthorized},
		{"no bearer prefix", "tick-secret", http.StatusUnauthorized},
		{"correct", "Bearer tick-secret", http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/worker/process-queue", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s: status=%d, want %d", c.name, rec.Code, c.want)
		}
	}
}

func TestWorkerAuthEmptySecretRejectsAll(t *testing.T) {
	f := newFixture(t)
	worker := NewWorkerHandler(f.queue)
	protected := WorkerAuth("")(http.HandlerFunc(worker.Handle))

	req := httptest.NewRequest(http.MethodPost, "/worker/process-queue", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("empty configured secret must reject, got %d", rec.Code)
	}
}

func TestWorkerHandlerRunsTick(t *testing.T) {
	f := newFixture(t)
	worker := NewWorkerHandler(f.queue)

	if _, err := f.queue.Enqueue(&models.NormalizedPayload{Source: models.SourceWebForm, UserID: "u1", MessageContent: "quote please"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/worker/process-queue", nil)
	rec := httptest.NewRecorder()
	worker.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["processed"] != float64(1) || body["failed"] != float64(0) {
		t.Fatalf("unexpected tick result: %v", body)
	}

	var item models.QueueItem
	f.db.First(&item)
	if item.Status != models.QueueStatusCompleted {
		t.Errorf("status = %q, want completed", item.Status)
	}
}

func TestEventCacheSeenAndMark(t *testing.T) {
	events := NewEventCache(time.Hour)

	if events.SeenAndMark("facebook", "e1") {
		t.Error("first sighting must not be seen")
	}
	if !events.SeenAndMark("facebook", "e1") {
		t.Error("second sighting must be seen")
	}
	if events.SeenAndMark("instagram", "e1") {
		t.Error("same id on another source is a distinct event")
	}
	if events.SeenAndMark("facebook", "") {
		t.Error("empty event ids are never deduplicated")
	}
}
