package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
)

// WebFormSubmission is the body of a website contact-form submission.
type WebFormSubmission struct {
	Name       string            `json:"name" validate:"required"`
	Email      string            `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string            `json:"phone,omitempty"`
	Message    string            `json:"message" validate:"required"`
	SourcePage string            `json:"source_page,omitempty"`
	UTMParams  map[string]string `json:"utm_params,omitempty"`
}

// WebFormHandler normalizes website form submissions and hands them to the
// shared intake path.
type WebFormHandler struct {
	intake *InboundHandler
}

// NewWebFormHandler creates a new WebFormHandler.
func NewWebFormHandler(intake *InboundHandler) *WebFormHandler {
	if intake == nil {
		log.Fatal().Msg("InboundHandler cannot be nil for WebFormHandler")
	}
	return &WebFormHandler{intake: intake}
}

// Handle accepts a web-form submission and queues it for processing.
func (h *WebFormHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var submission WebFormSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		log.Error().Err(err).Msg("Failed to decode web form submission")
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validate.Struct(&submission); err != nil {
		respondError(w, http.StatusBadRequest, "missing required fields: name, message")
		return
	}

	// A form has no platform user id; the best stable identity is the email,
	// then the phone, then the name.
	userID := submission.Email
	if userID == "" {
		userID = submission.Phone
	}
	if userID == "" {
		userID = submission.Name
	}

	platformData := map[string]interface{}{
		"email": submission.Email,
		"phone": submission.Phone,
	}
	if submission.SourcePage != "" {
		platformData["source_page"] = submission.SourcePage
	}
	if len(submission.UTMParams) > 0 {
		platformData["utm_params"] = submission.UTMParams
	}

	payload := &models.NormalizedPayload{
		Source:         models.SourceWebForm,
		UserID:         userID,
		MessageContent: submission.Message,
		Timestamp:      time.Now().UTC(),
		Metadata: &models.PayloadMetadata{
			UserName:     submission.Name,
			PlatformData: platformData,
		},
	}

	log.Info().Str("userID", userID).Str("sourcePage", submission.SourcePage).Msg("Received web form submission")

	outcome, err := h.intake.Intake(payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to queue lead for processing")
		return
	}
	if outcome.Duplicate {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"duplicate": true,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"queued":   true,
		"queue_id": outcome.QueueID,
	})
}
