package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
)

// TikTokWebhookPayload is the TikTok webhook body.
type TikTokWebhookPayload struct {
	Event     string                 `json:"event"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// TikTokWebhookHandler normalizes TikTok comment notifications and hands them
// to the shared intake path.
type TikTokWebhookHandler struct {
	intake *InboundHandler
	events *EventCache
}

// NewTikTokWebhookHandler creates a new TikTokWebhookHandler.
func NewTikTokWebhookHandler(intake *InboundHandler, events *EventCache) *TikTokWebhookHandler {
	if intake == nil {
		log.Fatal().Msg("InboundHandler cannot be nil for TikTokWebhookHandler")
	}
	if events == nil {
		log.Fatal().Msg("EventCache cannot be nil for TikTokWebhookHandler")
	}
	return &TikTokWebhookHandler{intake: intake, events: events}
}

// Handle processes TikTok webhook deliveries; GET is a health probe.
func (h *TikTokWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "endpoint": "tiktok-webhook"})
		return
	}

	var payload TikTokWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Error().Err(err).Msg("Failed to decode TikTok webhook payload")
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	log.Info().Str("event", payload.Event).Msg("Received TikTok webhook event")

	if payload.Event == "comment.created" || payload.Event == "video.comment" {
		h.processComment(payload)
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *TikTokWebhookHandler) processComment(payload TikTokWebhookPayload) {
	text := stringField(payload.Data, "text")
	userID := stringField(payload.Data, "user_id")
	if text == "" || userID == "" {
		log.Warn().Str("event", payload.Event).Msg("TikTok comment event missing text or user_id, skipping")
		return
	}

	commentID := stringField(payload.Data, "comment_id")
	if h.events.SeenAndMark(string(models.SourceTikTok), commentID) {
		log.Debug().Str("commentID", commentID).Msg("TikTok comment already seen, skipping")
		return
	}

	normalized := &models.NormalizedPayload{
		Source:         models.SourceTikTok,
		UserID:         userID,
		MessageContent: text,
		Timestamp:      time.Unix(payload.Timestamp, 0).UTC(),
		Metadata: &models.PayloadMetadata{
			PostID:       stringField(payload.Data, "video_id"),
			CommentID:    commentID,
			PlatformData: payload.Data,
		},
	}

	outcome, err := h.intake.Intake(normalized)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to queue TikTok comment")
		return
	}
	if outcome.Duplicate {
		log.Info().Str("userID", userID).Msg("Skipping duplicate TikTok comment")
		return
	}
	log.Info().Str("queueID", outcome.QueueID).Str("userID", userID).Msg("TikTok comment queued")
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
