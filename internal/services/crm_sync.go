package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"maru-lead-engine/internal/adapters/hubspot"
	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
)

// SyncResult reports the outcome of pushing a lead into the CRM.
type SyncResult struct {
	ContactID string
	DealID    string
	Action    string // "created", "updated" or "skipped"
}

// HubspotSyncService pushes qualified leads into HubSpot: contact upsert, a
// deal linked to the contact, and a note carrying the AI context.
type HubspotSyncService struct {
	client     *hubspot.Client
	dealStage  string
	pipelineID string
}

// NewHubspotSyncService creates a new HubspotSyncService.
func NewHubspotSyncService(client *hubspot.Client, dealStage, pipelineID string) (*HubspotSyncService, error) {
	if client == nil {
		return nil, fmt.Errorf("HubSpot client cannot be nil")
	}
	return &HubspotSyncService{
		client:     client,
		dealStage:  dealStage,
		pipelineID: pipelineID,
	}, nil
}

// Sync upserts the lead's contact by email (falling back to the platform user
// id as identifier), creates a deal associated to it and attaches an AI
// qualification note.
func (s *HubspotSyncService) Sync(ctx context.Context, lead *models.Lead) (*SyncResult, error) {
	identifier := lead.ContactEmail
	if identifier == "" {
		identifier = lead.SourceUserID
	}
	if identifier == "" {
		return nil, fmt.Errorf("no contact identifier (email or social ID) available")
	}

	// Find an existing contact by email. A search failure is not fatal: we
	// fall through to creating a new contact.
	var contactID string
	action := "created"
	if lead.ContactEmail != "" {
		existing, err := s.client.SearchContactByEmail(ctx, lead.ContactEmail)
		if err != nil {
			log.Warn().Err(err).Str("email", lead.ContactEmail).Msg("HubSpot contact search failed, will create new contact")
		} else if existing != nil {
			contactID = existing.ID
			action = "updated"
		}
	}

	properties := contactProperties(lead)
	if contactID != "" {
		if err := s.client.UpdateContact(ctx, contactID, properties); err != nil {
			return nil, fmt.Errorf("updating HubSpot contact %s: %w", contactID, err)
		}
	} else {
		contact, err := s.client.CreateContact(ctx, properties)
		if err != nil {
			return nil, fmt.Errorf("creating HubSpot contact: %w", err)
		}
		contactID = contact.ID
	}

	deal, err := s.client.CreateDeal(ctx, s.dealProperties(lead, identifier), []hubspot.Association{{
		To: hubspot.AssociationTarget{ID: contactID},
		Types: []hubspot.AssociationType{{
			AssociationCategory: "HUBSPOT_DEFINED",
			AssociationTypeID:   hubspot.AssocDealToContact,
		}},
	}})
	if err != nil {
		return nil, fmt.Errorf("creating HubSpot deal: %w", err)
	}

	if lead.AISuggestedReply != "" || lead.Urgency != "" {
		if err := s.createQualificationNote(ctx, lead, contactID, deal.ID); err != nil {
			return nil, fmt.Errorf("creating HubSpot note: %w", err)
		}
	}

	log.Info().Str("contactID", contactID).Str("dealID", deal.ID).Str("action", action).Msg("Lead synced to HubSpot")
	return &SyncResult{ContactID: contactID, DealID: deal.ID, Action: action}, nil
}

func contactProperties(lead *models.Lead) map[string]string {
	props := map[string]string{
		"lead_source":             string(lead.Source),
		"lead_source_platform_id": lead.SourceUserID,
		"lead_original_message":   lead.MessageContent,
	}
	if lead.ContactName != "" {
		parts := strings.Fields(lead.ContactName)
		props["firstname"] = parts[0]
		if len(parts) > 1 {
			props["lastname"] = strings.Join(parts[1:], " ")
		} else {
			props["lastname"] = parts[0]
		}
	}
	if lead.ContactEmail != "" {
		props["email"] = lead.ContactEmail
	}
	if lead.ContactPhone != "" {
		props["phone"] = lead.ContactPhone
	}
	return props
}

func (s *HubspotSyncService) dealProperties(lead *models.Lead, identifier string) map[string]string {
	name := lead.ContactName
	if name == "" {
		name = identifier
	}
	props := map[string]string{
		"dealname":          fmt.Sprintf("%s Lead - %s", lead.Source, name),
		"dealstage":         s.dealStage,
		"pipeline":          s.pipelineID,
		"amount":            "0",
		"lead_intent_score": strconv.Itoa(lead.IntentScore),
		// Expected close 30 days out, epoch millis as HubSpot wants it.
		"closedate": strconv.FormatInt(time.Now().Add(30*24*time.Hour).UnixMilli(), 10),
	}
	if lead.Source != "" {
		props["lead_source_platform"] = string(lead.Source)
	}
	if lead.Urgency != "" {
		props["lead_urgency"] = string(lead.Urgency)
	}
	return props
}

func (s *HubspotSyncService) createQualificationNote(ctx context.Context, lead *models.Lead, contactID, dealID string) error {
	var body strings.Builder
	body.WriteString("AI Lead Qualification:\n\n")
	fmt.Fprintf(&body, "Source: %s\n", lead.Source)
	fmt.Fprintf(&body, "Urgency: %s\n", orUnknown(string(lead.Urgency)))
	fmt.Fprintf(&body, "Intent Score: %d/100\n\n", lead.IntentScore)
	fmt.Fprintf(&body, "Original Message:\n%q\n", lead.MessageContent)
	if lead.AISuggestedReply != "" {
		fmt.Fprintf(&body, "\nAI Suggested Reply:\n%q", lead.AISuggestedReply)
	}

	associations := []hubspot.Association{{
		To: hubspot.AssociationTarget{ID: contactID},
		Types: []hubspot.AssociationType{{
			AssociationCategory: "HUBSPOT_DEFINED",
			AssociationTypeID:   hubspot.AssocNoteToContact,
		}},
	}}
	if dealID != "" {
		associations = append(associations, hubspot.Association{
			To: hubspot.AssociationTarget{ID: dealID},
			Types: []hubspot.AssociationType{{
				AssociationCategory: "HUBSPOT_DEFINED",
				AssociationTypeID:   hubspot.AssocNoteToDeal,
			}},
		})
	}

	_, err := s.client.CreateNote(ctx, map[string]string{
		"hs_note_body": body.String(),
		"hs_timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}, associations)
	return err
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
