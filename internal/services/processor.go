package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// failedSyncRetryDelay is the retry-eligible timestamp stamped on FailedSync
// ledger entries. Nothing in the engine re-drives them automatically; the
// ledger is operator-facing.
const failedSyncRetryDelay = 5 * time.Minute

// LeadQualifier produces a verdict for an inbound message. Implementations
// must never fail: a degraded verdict stands in for an error.
type LeadQualifier interface {
	Qualify(ctx context.Context, messageContent string, source models.LeadSource) models.QualificationResult
}

// CRMSyncer pushes a qualified lead into the CRM.
type CRMSyncer interface {
	Sync(ctx context.Context, lead *models.Lead) (*SyncResult, error)
}

// Notifier sends the urgent-lead alert through the messaging relay.
type Notifier interface {
	NotifyHighPriority(ctx context.Context, lead *models.Lead) (string, error)
}

// AutoReplier acknowledges the sender on the originating channel.
type AutoReplier interface {
	Reply(ctx context.Context, payload *models.NormalizedPayload, replyText string) (string, error)
}

// ProcessResult is what one pipeline run reports back to the queue worker.
type ProcessResult struct {
	Success   bool               `json:"success"`
	LeadID    string             `json:"lead_id"`
	Qualified bool               `json:"qualified"`
	Urgency   models.LeadUrgency `json:"urgency"`
	Score     int                `json:"score"`
}

// LeadProcessor runs the five-stage pipeline for one normalized payload:
// qualify, persist, auto-reply, CRM sync, urgent notification. Each stage's
// outcome is written to the Lead row before the next stage starts, so a crash
// after stage N preserves stages 1..N. Only the persist stage is
// pipeline-fatal; every later stage records its failure on the Lead and lets
// the pipeline finish.
type LeadProcessor struct {
	db              *gorm.DB
	qualifier       LeadQualifier
	crm             CRMSyncer
	notifier        Notifier
	autoReplier     AutoReplier
	audit           *AuditLog
	enableAutoReply bool
}

// NewLeadProcessor creates a new LeadProcessor with its injected stage
// dependencies.
func NewLeadProcessor(db *gorm.DB, qualifier LeadQualifier, crm CRMSyncer, notifier Notifier, autoReplier AutoReplier, audit *AuditLog, enableAutoReply bool) (*LeadProcessor, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	if qualifier == nil {
		return nil, fmt.Errorf("qualifier cannot be nil")
	}
	if crm == nil {
		return nil, fmt.Errorf("CRM syncer cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if autoReplier == nil {
		return nil, fmt.Errorf("auto-replier cannot be nil")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit log cannot be nil")
	}
	return &LeadProcessor{
		db:              db,
		qualifier:       qualifier,
		crm:             crm,
		notifier:        notifier,
		autoReplier:     autoReplier,
		audit:           audit,
		enableAutoReply: enableAutoReply,
	}, nil
}

// Process runs the pipeline for one payload. The returned error is non-nil
// only for pipeline-fatal failures (lead persistence); the queue worker turns
// those into retry scheduling.
func (p *LeadProcessor) Process(ctx context.Context, payload *models.NormalizedPayload) (*ProcessResult, error) {
	log.Info().Str("source", string(payload.Source)).Str("userID", payload.UserID).Msg("Starting lead processing")

	// Stage 1: qualification. Never fails; worst case is the fallback verdict.
	verdict := p.qualifier.Qualify(ctx, payload.MessageContent, payload.Source)

	// Stage 2: persist the lead. The only pipeline-fatal stage.
	lead, err := p.insertLead(payload, verdict)
	if err != nil {
		log.Error().Err(err).Str("source", string(payload.Source)).Msg("Failed to create lead record")
		return nil, fmt.Errorf("failed to create lead record: %w", err)
	}
	p.audit.LogLeadAction(lead.ID, payload.Source, payload.UserID, models.ActionProcessed, nil)

	// Stage 3: auto-reply, stage-local.
	if p.shouldAutoReply(payload, verdict) {
		p.runAutoReply(ctx, lead, payload, verdict.SuggestedReply)
	}

	// Stages 4 and 5: CRM sync, then urgent notification.
	if verdict.IsLead {
		if p.runCRMSync(ctx, lead, payload) && verdict.Urgency == models.UrgencyHigh {
			p.runNotification(ctx, lead)
		}
	} else {
		p.audit.LogLeadAction(lead.ID, payload.Source, payload.UserID, models.ActionRejected, map[string]interface{}{
			"reason": verdict.Reasoning,
		})
		log.Info().Str("leadID", lead.ID).Msg("Lead not qualified, skipping CRM sync")
	}

	return &ProcessResult{
		Success:   true,
		LeadID:    lead.ID,
		Qualified: verdict.IsLead,
		Urgency:   verdict.Urgency,
		Score:     verdict.IntentScore,
	}, nil
}

func (p *LeadProcessor) insertLead(payload *models.NormalizedPayload, verdict models.QualificationResult) (*models.Lead, error) {
	lead := models.Lead{
		Source:           payload.Source,
		SourceUserID:     payload.UserID,
		MessageContent:   payload.MessageContent,
		OriginalLanguage: verdict.LanguageDetected,
		IsQualified:      verdict.IsLead,
		Urgency:          verdict.Urgency,
		IntentScore:      verdict.IntentScore,
		AISuggestedReply: verdict.SuggestedReply,
		AIReasoning:      verdict.Reasoning,
		ContactName:      verdict.ExtractedData.Name,
		ContactEmail:     verdict.ExtractedData.Email,
		ContactPhone:     verdict.ExtractedData.Phone,
	}
	if payload.Metadata != nil {
		lead.SourcePostID = payload.Metadata.PostID
		if lead.ContactName == "" {
			lead.ContactName = payload.Metadata.UserName
		}
		if raw, err := json.Marshal(payload.Metadata); err == nil {
			lead.Metadata = raw
		}
	}
	if raw, err := json.Marshal(verdict.ExtractedData); err == nil {
		lead.AIExtractedData = raw
	}

	if err := p.db.Create(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (p *LeadProcessor) shouldAutoReply(payload *models.NormalizedPayload, verdict models.QualificationResult) bool {
	if !p.enableAutoReply || verdict.SuggestedReply == "" {
		return false
	}
	return payload.Source == models.SourceFacebook || payload.Source == models.SourceInstagram
}

func (p *LeadProcessor) runAutoReply(ctx context.Context, lead *models.Lead, payload *models.NormalizedPayload, replyText string) {
	replyID, err := p.autoReplier.Reply(ctx, payload, replyText)
	if err != nil {
		log.Error().Err(err).Str("leadID", lead.ID).Msg("Auto-reply failed")
		p.updateLead(lead, map[string]interface{}{"auto_reply_error": err.Error()})
		return
	}

	now := time.Now()
	p.updateLead(lead, map[string]interface{}{
		"auto_reply_sent":    true,
		"auto_reply_sent_at": now,
	})
	log.Info().Str("leadID", lead.ID).Str("replyID", replyID).Msg("Auto-reply sent")
}

// runCRMSync reports whether the sync succeeded so the caller can gate the
// urgent notification on it.
func (p *LeadProcessor) runCRMSync(ctx context.Context, lead *models.Lead, payload *models.NormalizedPayload) bool {
	result, err := p.crm.Sync(ctx, lead)
	if err != nil {
		log.Error().Err(err).Str("leadID", lead.ID).Msg("HubSpot sync failed")
		p.updateLead(lead, map[string]interface{}{"hubspot_sync_error": err.Error()})
		p.recordFailedSync(lead.ID, models.IntegrationHubspot, err)
		return false
	}

	lead.HubspotContactID = result.ContactID
	lead.HubspotDealID = result.DealID
	p.updateLead(lead, map[string]interface{}{
		"hubspot_contact_id": result.ContactID,
		"hubspot_deal_id":    result.DealID,
		"synced_to_hubspot":  true,
	})
	p.audit.LogLeadAction(lead.ID, lead.Source, payload.UserID, models.ActionSynced, map[string]interface{}{
		"contact_id": result.ContactID,
		"deal_id":    result.DealID,
	})
	log.Info().Str("leadID", lead.ID).Str("contactID", result.ContactID).Str("dealID", result.DealID).Msg("HubSpot sync completed")
	return true
}

func (p *LeadProcessor) runNotification(ctx context.Context, lead *models.Lead) {
	sid, err := p.notifier.NotifyHighPriority(ctx, lead)
	if err != nil {
		log.Error().Err(err).Str("leadID", lead.ID).Msg("WhatsApp notification failed")
		p.recordFailedSync(lead.ID, models.IntegrationWhatsapp, err)
		return
	}

	now := time.Now()
	p.updateLead(lead, map[string]interface{}{
		"whatsapp_notification_sent": true,
		"whatsapp_notification_at":   now,
	})
	log.Info().Str("leadID", lead.ID).Str("sid", sid).Msg("WhatsApp notification sent")
}

// updateLead persists stage outcomes on the lead row. A failed update is
// logged and swallowed: stage bookkeeping must not abort the pipeline.
func (p *LeadProcessor) updateLead(lead *models.Lead, updates map[string]interface{}) {
	if err := p.db.Model(&models.Lead{}).Where("id = ?", lead.ID).Updates(updates).Error; err != nil {
		log.Error().Err(err).Str("leadID", lead.ID).Msg("Failed to update lead record")
	}
}

func (p *LeadProcessor) recordFailedSync(leadID string, integration models.Integration, cause error) {
	entry := models.FailedSync{
		LeadID:       leadID,
		Integration:  integration,
		ErrorMessage: cause.Error(),
		NextRetryAt:  time.Now().Add(failedSyncRetryDelay),
	}
	if err := p.db.Create(&entry).Error; err != nil {
		log.Error().Err(err).Str("leadID", leadID).Str("integration", string(integration)).Msg("Failed to record failed sync")
	}
}
