package services

import (
	"encoding/json"
	"fmt"

	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AuditLog writes the lead_logs and webhook_events observability records.
// Every write is best-effort: a failed audit write is logged and swallowed,
// never blocking the main flow.
type AuditLog struct {
	db *gorm.DB
}

// NewAuditLog creates a new AuditLog.
func NewAuditLog(db *gorm.DB) (*AuditLog, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &AuditLog{db: db}, nil
}

// LogLeadAction appends one lead_logs entry.
func (a *AuditLog) LogLeadAction(leadID string, source models.LeadSource, userID string, action models.LogAction, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		log.Error().Err(err).Str("leadID", leadID).Msg("Lead log details not serializable, skipping entry")
		return
	}

	entry := models.LeadLog{
		LeadID:       leadID,
		Source:       source,
		SourceUserID: userID,
		Action:       action,
		Details:      raw,
	}
	if err := a.db.Create(&entry).Error; err != nil {
		log.Error().Err(err).Str("leadID", leadID).Str("action", string(action)).Msg("Failed to write lead log entry")
	}
}

// RecordWebhookEvent stores the raw payload of an inbound request. Returns nil
// when the write fails; callers carry on regardless.
func (a *AuditLog) RecordWebhookEvent(source models.LeadSource, eventType string, rawPayload interface{}) *models.WebhookEvent {
	raw, err := json.Marshal(rawPayload)
	if err != nil {
		log.Error().Err(err).Str("source", string(source)).Msg("Webhook payload not serializable, skipping audit record")
		return nil
	}

	event := models.WebhookEvent{
		Source:     source,
		EventType:  eventType,
		RawPayload: raw,
	}
	if err := a.db.Create(&event).Error; err != nil {
		log.Error().Err(err).Str("source", string(source)).Msg("Failed to record webhook event")
		return nil
	}
	return &event
}

// MarkWebhookProcessed flips the processed flag with an optional annotation.
func (a *AuditLog) MarkWebhookProcessed(event *models.WebhookEvent, annotation string) {
	if event == nil {
		return
	}
	updates := map[string]interface{}{"processed": true}
	if annotation != "" {
		updates["processing_error"] = annotation
	}
	if err := a.db.Model(&models.WebhookEvent{}).Where("id = ?", event.ID).Updates(updates).Error; err != nil {
		log.Error().Err(err).Str("eventID", event.ID).Msg("Failed to mark webhook event processed")
	}
}
