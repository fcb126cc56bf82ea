package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LeadSource identifies the inbound channel a message arrived on.
type LeadSource string

const (
	SourceFacebook  LeadSource = "facebook"
	SourceInstagram LeadSource = "instagram"
	SourceTikTok    LeadSource = "tiktok"
	SourceLinkedIn  LeadSource = "linkedin"
	SourceWebForm   LeadSource = "web_form"
)

// LeadUrgency is the urgency band assigned by qualification.
type LeadUrgency string

const (
	UrgencyHigh   LeadUrgency = "High"
	UrgencyMedium LeadUrgency = "Medium"
	UrgencyLow    LeadUrgency = "Low"
)

// Language is the detected language of an inbound message.
type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageZulu      Language = "zu"
	LanguageAfrikaans Language = "af"
	LanguageUnknown   Language = "unknown"
)

// QueueStatus is the lifecycle state of a queued work item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// Integration names an external system a lead is synced to.
type Integration string

const (
	IntegrationHubspot  Integration = "hubspot"
	IntegrationWhatsapp Integration = "whatsapp"
)

// LogAction is the audit action recorded against a lead.
type LogAction string

const (
	ActionReceived  LogAction = "received"
	ActionProcessed LogAction = "processed"
	ActionQualified LogAction = "qualified"
	ActionRejected  LogAction = "rejected"
	ActionSynced    LogAction = "synced"
	ActionError     LogAction = "error"
)

// PayloadMetadata carries optional channel-specific context alongside a message.
type PayloadMetadata struct {
	PostID       string                 `json:"post_id,omitempty"`
	CommentID    string                 `json:"comment_id,omitempty"`
	UserName     string                 `json:"user_name,omitempty"`
	UserHandle   string                 `json:"user_handle,omitempty"`
	PlatformData map[string]interface{} `json:"platform_data,omitempty"`
}

// NormalizedPayload is the single shape every channel webhook is reduced to.
// It is the unit of work flowing through dedup, queue and processor, and is
// immutable once created.
type NormalizedPayload struct {
	Source         LeadSource       `json:"source" validate:"required,oneof=facebook instagram tiktok linkedin web_form"`
	UserID         string           `json:"user_id" validate:"required"`
	MessageContent string           `json:"message_content" validate:"required"`
	Timestamp      time.Time        `json:"timestamp"`
	Metadata       *PayloadMetadata `json:"metadata,omitempty"`
}

// ExtractedData holds contact details the qualifier pulled out of a message.
type ExtractedData struct {
	Name             string `json:"name,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
	ServiceRequested string `json:"service_requested,omitempty"`
	Location         string `json:"location,omitempty"`
}

// QualificationResult is the structured verdict returned by the lead qualifier.
type QualificationResult struct {
	IsLead           bool          `json:"is_lead"`
	Urgency          LeadUrgency   `json:"urgency"`
	IntentScore      int           `json:"intent_score"`
	SuggestedReply   string        `json:"suggested_reply"`
	ExtractedData    ExtractedData `json:"extracted_data"`
	LanguageDetected Language      `json:"language_detected"`
	Reasoning        string        `json:"reasoning,omitempty"`
}

// QueueItem is one durable unit of pending work. Created by Enqueue; mutated
// only by the worker. Once completed or failed it is terminal and never
// dequeued again.
type QueueItem struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	Payload      datatypes.JSON `gorm:"type:text" json:"payload"`
	Status       QueueStatus    `gorm:"index;default:pending" json:"status"`
	RetryCount   int            `gorm:"default:0" json:"retry_count"`
	MaxRetries   int            `gorm:"default:3" json:"max_retries"`
	NextRetryAt  *time.Time     `gorm:"index" json:"next_retry_at,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Result       datatypes.JSON `gorm:"type:text" json:"result,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func (q *QueueItem) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// Lead is the durable outcome record for one processed inbound inquiry.
// It is created after qualification, never deleted, and updated in place as
// each pipeline stage completes so partial progress survives a crash.
type Lead struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Source identity
	Source       LeadSource `gorm:"index:idx_leads_source_user" json:"source"`
	SourceUserID string     `gorm:"index:idx_leads_source_user" json:"source_user_id"`
	SourcePostID string     `json:"source_post_id,omitempty"`

	// Contact
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`

	// Message
	MessageContent   string   `gorm:"type:text" json:"message_content"`
	OriginalLanguage Language `json:"original_language,omitempty"`

	// AI qualification
	IsQualified      bool           `json:"is_qualified"`
	Urgency          LeadUrgency    `json:"urgency,omitempty"`
	IntentScore      int            `json:"intent_score"`
	AISuggestedReply string         `gorm:"type:text" json:"ai_suggested_reply,omitempty"`
	AIExtractedData  datatypes.JSON `gorm:"type:text" json:"ai_extracted_data,omitempty"`
	AIReasoning      string         `gorm:"type:text" json:"ai_reasoning,omitempty"`

	// HubSpot integration state
	HubspotContactID string `json:"hubspot_contact_id,omitempty"`
	HubspotDealID    string `json:"hubspot_deal_id,omitempty"`
	SyncedToHubspot  bool   `gorm:"default:false" json:"synced_to_hubspot"`
	HubspotSyncError string `gorm:"type:text" json:"hubspot_sync_error,omitempty"`

	// WhatsApp notification state
	WhatsappNotificationSent bool       `gorm:"default:false" json:"whatsapp_notification_sent"`
	WhatsappNotificationAt   *time.Time `json:"whatsapp_notification_at,omitempty"`

	// Auto-reply state
	AutoReplySent  bool       `gorm:"default:false" json:"auto_reply_sent"`
	AutoReplySentAt *time.Time `json:"auto_reply_sent_at,omitempty"`
	AutoReplyError string     `gorm:"type:text" json:"auto_reply_error,omitempty"`

	Metadata datatypes.JSON `gorm:"type:text" json:"metadata,omitempty"`
}

func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// FailedSync is an append-only ledger entry for a best-effort integration that
// failed. Distinct from the queue's own retry mechanism: nothing re-drives
// these automatically, they exist for operators.
type FailedSync struct {
	ID           string      `gorm:"primaryKey" json:"id"`
	LeadID       string      `gorm:"index" json:"lead_id"`
	Integration  Integration `gorm:"index" json:"integration"`
	ErrorMessage string      `gorm:"type:text" json:"error_message"`
	NextRetryAt  time.Time   `json:"next_retry_at"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (f *FailedSync) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// WebhookEvent is a raw-payload audit record per inbound request. Write-once,
// then marked processed; used for observability, not correctness.
type WebhookEvent struct {
	ID              string         `gorm:"primaryKey" json:"id"`
	Source          LeadSource     `gorm:"index" json:"source"`
	EventType       string         `json:"event_type,omitempty"`
	RawPayload      datatypes.JSON `gorm:"type:text" json:"raw_payload"`
	Processed       bool           `gorm:"default:false" json:"processed"`
	ProcessingError string         `gorm:"type:text" json:"processing_error,omitempty"`
	LeadID          string         `json:"lead_id,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (w *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// LeadLog is a best-effort per-lead audit trail entry.
type LeadLog struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	LeadID       string         `gorm:"index" json:"lead_id"`
	Source       LeadSource     `json:"source"`
	SourceUserID string         `json:"source_user_id,omitempty"`
	Action       LogAction      `json:"action"`
	Details      datatypes.JSON `gorm:"type:text" json:"details,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (l *LeadLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&QueueItem{},
		&Lead{},
		&FailedSync{},
		&WebhookEvent{},
		&LeadLog{},
	}
}
