package services

import (
	"context"
	"fmt"
	"strings"

	"maru-lead-engine/internal/adapters/twilio"
	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
)

// messageExcerptLen bounds how much of the inbound message the alert carries.
const messageExcerptLen = 200

// WhatsappNotifier sends a best-effort urgent alert to the SME owner through
// the Twilio WhatsApp relay when a high-priority lead arrives.
type WhatsappNotifier struct {
	client *twilio.Client
	from   string
	to     string
}

// NewWhatsappNotifier creates a new WhatsappNotifier. The from/to numbers may
// be empty; that surfaces as a configuration error on first use.
func NewWhatsappNotifier(client *twilio.Client, from, to string) (*WhatsappNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("Twilio client cannot be nil")
	}
	return &WhatsappNotifier{client: client, from: from, to: to}, nil
}

// NotifyHighPriority sends the urgent-lead alert and returns the relay message
// id. Callers only invoke this for High urgency leads; anything else is
// skipped without an API call.
func (n *WhatsappNotifier) NotifyHighPriority(ctx context.Context, lead *models.Lead) (string, error) {
	if lead.Urgency != models.UrgencyHigh {
		return "skipped-low-urgency", nil
	}
	if n.from == "" || n.to == "" {
		return "", fmt.Errorf("WhatsApp phone numbers not configured")
	}

	sid, err := n.client.SendMessage(ctx, n.from, n.to, n.buildAlert(lead))
	if err != nil {
		return "", err
	}

	log.Info().Str("sid", sid).Str("leadID", lead.ID).Msg("High-priority WhatsApp alert sent")
	return sid, nil
}

func (n *WhatsappNotifier) buildAlert(lead *models.Lead) string {
	name := lead.ContactName
	if name == "" {
		name = "Unknown"
	}
	excerpt := lead.MessageContent
	if len(excerpt) > messageExcerptLen {
		excerpt = excerpt[:messageExcerptLen] + "..."
	}

	var b strings.Builder
	b.WriteString("*Maru Alert: High Priority Lead*\n\n")
	fmt.Fprintf(&b, "Source: %s\n", strings.ToUpper(string(lead.Source)))
	fmt.Fprintf(&b, "From: %s\n\n", name)
	fmt.Fprintf(&b, "Message:\n%q", excerpt)
	if lead.HubspotContactID != "" {
		fmt.Fprintf(&b, "\n\nHubSpot contact: %s", lead.HubspotContactID)
	}
	return b.String()
}
