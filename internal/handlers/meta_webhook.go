package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
)

// MetaMessaging is one Messenger/Instagram DM delivery inside a webhook entry.
type MetaMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message,omitempty"`
}

// MetaChange is one page feed change inside a webhook entry.
type MetaChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// metaFeedValue is the comment-shaped feed change value this handler cares about.
type metaFeedValue struct {
	Item      string `json:"item"`
	Message   string `json:"message"`
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
	SenderID  string `json:"sender_id"`
	From      *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from,omitempty"`
}

// MetaWebhookEntry is one entry in a Meta webhook delivery.
type MetaWebhookEntry struct {
	ID        string          `json:"id"`
	Time      int64           `json:"time"`
	Messaging []MetaMessaging `json:"messaging,omitempty"`
	Changes   []MetaChange    `json:"changes,omitempty"`
}

// MetaWebhookPayload is the top-level Meta webhook body.
type MetaWebhookPayload struct {
	Object string             `json:"object"`
	Entry  []MetaWebhookEntry `json:"entry"`
}

// MetaWebhookHandler normalizes Facebook/Instagram webhook deliveries and
// hands them to the shared intake path.
type MetaWebhookHandler struct {
	intake      *InboundHandler
	events      *EventCache
	appSecret   string
	verifyToken string
}

// NewMetaWebhookHandler creates a new MetaWebhookHandler.
func NewMetaWebhookHandler(intake *InboundHandler, events *EventCache, appSecret, verifyToken string) *MetaWebhookHandler {
	if intake == nil {
		log.Fatal().Msg("InboundHandler cannot be nil for MetaWebhookHandler")
	}
	if events == nil {
		log.Fatal().Msg("EventCache cannot be nil for MetaWebhookHandler")
	}
	return &MetaWebhookHandler{intake: intake, events: events, appSecret: appSecret, verifyToken: verifyToken}
}

// Handle serves both the GET verification challenge and POST event deliveries.
func (h *MetaWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.handleVerification(w, r)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read Meta webhook body")
		respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	if !h.validSignature(body, signature) {
		log.Warn().Msg("Invalid Meta webhook signature")
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload MetaWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error().Err(err).Msg("Failed to decode Meta webhook payload")
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	log.Info().Str("object", payload.Object).Int("entries", len(payload.Entry)).Msg("Received Meta webhook event")

	source := models.SourceFacebook
	if payload.Object == "instagram" {
		source = models.SourceInstagram
	}

	for _, entry := range payload.Entry {
		h.processEntry(source, entry)
	}

	// Always acknowledge: per-entry failures must not trigger Meta redelivery.
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *MetaWebhookHandler) handleVerification(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		log.Info().Msg("Meta webhook verification successful")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	respondError(w, http.StatusForbidden, "verification failed")
}

func (h *MetaWebhookHandler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	if h.appSecret == "" {
		log.Error().Msg("META_APP_SECRET not configured")
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (h *MetaWebhookHandler) processEntry(source models.LeadSource, entry MetaWebhookEntry) {
	for _, messaging := range entry.Messaging {
		if messaging.Message == nil || messaging.Message.Text == "" {
			continue
		}
		if h.events.SeenAndMark(string(source), messaging.Message.MID) {
			log.Debug().Str("mid", messaging.Message.MID).Msg("Meta message already seen, skipping")
			continue
		}
		h.forward(&models.NormalizedPayload{
			Source:         source,
			UserID:         messaging.Sender.ID,
			MessageContent: messaging.Message.Text,
			Timestamp:      time.UnixMilli(messaging.Timestamp).UTC(),
			Metadata: &models.PayloadMetadata{
				PlatformData: map[string]interface{}{
					"mid": messaging.Message.MID,
				},
			},
		})
	}

	for _, change := range entry.Changes {
		if change.Field != "feed" || len(change.Value) == 0 {
			continue
		}
		var value metaFeedValue
		if err := json.Unmarshal(change.Value, &value); err != nil {
			log.Warn().Err(err).Msg("Unparseable feed change value, skipping")
			continue
		}
		if value.Item != "comment" || value.Message == "" {
			continue
		}
		if h.events.SeenAndMark(string(source), value.CommentID) {
			log.Debug().Str("commentID", value.CommentID).Msg("Meta comment already seen, skipping")
			continue
		}

		userID := value.SenderID
		userName := ""
		if value.From != nil {
			if value.From.ID != "" {
				userID = value.From.ID
			}
			userName = value.From.Name
		}
		if userID == "" {
			userID = "unknown"
		}

		h.forward(&models.NormalizedPayload{
			Source:         models.SourceFacebook,
			UserID:         userID,
			MessageContent: value.Message,
			Timestamp:      time.Now().UTC(),
			Metadata: &models.PayloadMetadata{
				PostID:    value.PostID,
				CommentID: value.CommentID,
				UserName:  userName,
			},
		})
	}
}

// forward hands one normalized payload to intake; errors are logged and
// swallowed so one bad entry never fails the whole delivery.
func (h *MetaWebhookHandler) forward(payload *models.NormalizedPayload) {
	outcome, err := h.intake.Intake(payload)
	if err != nil {
		log.Error().Err(err).Str("userID", payload.UserID).Msg("Failed to queue Meta message")
		return
	}
	if outcome.Duplicate {
		log.Info().Str("userID", payload.UserID).Msg("Skipping duplicate Meta message")
		return
	}
	log.Info().Str("queueID", outcome.QueueID).Str("userID", payload.UserID).Msg("Meta message queued")
}
