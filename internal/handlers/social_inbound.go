package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"maru-lead-engine/internal/models"
	"maru-lead-engine/internal/queue"
	"maru-lead-engine/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// IntakeOutcome reports what happened to one normalized payload at the door.
type IntakeOutcome struct {
	Duplicate bool
	QueueID   string
}

// InboundHandler accepts normalized payloads, deduplicates them and queues
// them for async processing. All heavy work (AI, CRM, notifications) is
// deferred to the worker so the webhook answers fast.
type InboundHandler struct {
	dedup       *services.Deduplicator
	queue       *queue.Queue
	audit       *services.AuditLog
	dedupWindow time.Duration
}

// NewInboundHandler creates a new InboundHandler.
func NewInboundHandler(dedup *services.Deduplicator, q *queue.Queue, audit *services.AuditLog, dedupWindow time.Duration) *InboundHandler {
	if dedup == nil {
		log.Fatal().Msg("Deduplicator cannot be nil for InboundHandler")
	}
	if q == nil {
		log.Fatal().Msg("Queue cannot be nil for InboundHandler")
	}
	if audit == nil {
		log.Fatal().Msg("AuditLog cannot be nil for InboundHandler")
	}
	return &InboundHandler{dedup: dedup, queue: q, audit: audit, dedupWindow: dedupWindow}
}

// Intake runs the shared dedup-then-enqueue path used by every channel
// normalizer and the unified endpoint.
func (h *InboundHandler) Intake(payload *models.NormalizedPayload) (*IntakeOutcome, error) {
	if h.dedup.IsDuplicate(payload.Source, payload.UserID, payload.MessageContent, h.dedupWindow) {
		log.Info().Str("source", string(payload.Source)).Str("userID", payload.UserID).Msg("Skipping duplicate message")
		return &IntakeOutcome{Duplicate: true}, nil
	}

	item, err := h.queue.Enqueue(payload)
	if err != nil {
		return nil, err
	}
	return &IntakeOutcome{QueueID: item.ID}, nil
}

// Handle is the unified inbound endpoint: POST accepts a NormalizedPayload
// directly, GET is a health probe.
func (h *InboundHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"endpoint":  "social-inbound",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	var payload models.NormalizedPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Error().Err(err).Msg("Failed to decode inbound payload")
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validate.Struct(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "missing required fields: source, user_id, message_content")
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	log.Info().Str("source", string(payload.Source)).Str("userID", payload.UserID).Msg("Received inbound message")

	// Audit first; a failed audit write never blocks intake.
	event := h.audit.RecordWebhookEvent(payload.Source, "inbound_message", &payload)

	outcome, err := h.Intake(&payload)
	if err != nil {
		h.audit.MarkWebhookProcessed(event, err.Error())
		respondError(w, http.StatusInternalServerError, "failed to queue lead for processing")
		return
	}
	if outcome.Duplicate {
		h.audit.MarkWebhookProcessed(event, "Duplicate message")
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"duplicate": true,
			"message":   "Duplicate message skipped",
		})
		return
	}

	h.audit.MarkWebhookProcessed(event, fmt.Sprintf("Queued: %s", outcome.QueueID))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"queued":   true,
		"queue_id": outcome.QueueID,
		"message":  "Lead queued for processing",
	})
}
