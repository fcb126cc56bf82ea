package twilio

import (
	"context"
	"fmt"
	"time"

	"maru-lead-engine/pkg/httputil"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Message is the subset of Twilio's message resource this integration reads.
type Message struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// Client sends messages through the Twilio REST API.
type Client struct {
	httpClient *resty.Client
	accountSID string
	authToken  string
}

// NewClient creates a new Twilio client. Missing credentials are not an error
// here: they become a configuration error on first use.
func NewClient(baseURL, accountSID, authToken string) *Client {
	return &Client{
		httpClient: httputil.NewRestyClient(baseURL, 15*time.Second),
		accountSID: accountSID,
		authToken:  authToken,
	}
}

// SendMessage sends a text message (WhatsApp when the addresses carry the
// whatsapp: prefix) and returns the created message SID.
func (c *Client) SendMessage(ctx context.Context, from, to, body string) (string, error) {
	if c.accountSID == "" || c.authToken == "" {
		return "", fmt.Errorf("Twilio credentials are not configured")
	}

	var msg Message
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.accountSID, c.authToken).
		SetFormData(map[string]string{
			"From": from,
			"To":   to,
			"Body": body,
		}).
		SetResult(&msg).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID))

	if err != nil {
		log.Error().Err(err).Str("to", to).Msg("Twilio API: send message request failed")
		return "", fmt.Errorf("Twilio send message request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("to", to).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Twilio API: send message returned an error")
		return "", fmt.Errorf("Twilio send message error: status %s, body: %s", resp.Status(), resp.String())
	}
	if msg.SID == "" {
		return "", fmt.Errorf("Twilio send message returned no SID")
	}

	log.Info().Str("sid", msg.SID).Str("to", to).Msg("Twilio message sent")
	return msg.SID, nil
}
