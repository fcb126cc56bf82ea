package meta

import (
	"context"
	"fmt"
	"time"

	"maru-lead-engine/pkg/httputil"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const graphVersion = "v18.0"

// commentReplyResponse is the Graph API response to a comment reply.
type commentReplyResponse struct {
	ID string `json:"id"`
}

// sendMessageResponse is the Graph API response to a Send API call.
type sendMessageResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Client talks to the Meta Graph API for Facebook comment replies and
// Messenger/Instagram private messages.
type Client struct {
	httpClient      *resty.Client
	pageAccessToken string
}

// NewClient creates a new Graph API client. A missing page access token is not
// an error here: it becomes a configuration error on first use.
func NewClient(baseURL, pageAccessToken string) *Client {
	return &Client{
		httpClient:      httputil.NewRestyClient(baseURL, 15*time.Second),
		pageAccessToken: pageAccessToken,
	}
}

func (c *Client) checkConfigured() error {
	if c.pageAccessToken == "" {
		return fmt.Errorf("Meta page access token is not configured")
	}
	return nil
}

// ReplyToComment posts a public reply under a Facebook comment and returns the
// created reply id.
func (c *Client) ReplyToComment(ctx context.Context, commentID, text string) (string, error) {
	if err := c.checkConfigured(); err != nil {
		return "", err
	}

	var result commentReplyResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"message":      text,
			"access_token": c.pageAccessToken,
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/%s/comments", graphVersion, commentID))

	if err != nil {
		log.Error().Err(err).Str("commentID", commentID).Msg("Meta API: comment reply request failed")
		return "", fmt.Errorf("Meta comment reply request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("commentID", commentID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Meta API: comment reply returned an error")
		return "", fmt.Errorf("Meta comment reply error: status %s, body: %s", resp.Status(), resp.String())
	}
	if result.ID == "" {
		return "", fmt.Errorf("Meta comment reply returned no id")
	}

	log.Info().Str("replyID", result.ID).Str("commentID", commentID).Msg("Posted Facebook comment reply")
	return result.ID, nil
}

// SendPrivateMessage sends a Messenger or Instagram DM via the Send API and
// returns the created message id.
func (c *Client) SendPrivateMessage(ctx context.Context, recipientID, text string) (string, error) {
	if err := c.checkConfigured(); err != nil {
		return "", err
	}

	var result sendMessageResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"recipient":    map[string]string{"id": recipientID},
			"message":      map[string]string{"text": text},
			"access_token": c.pageAccessToken,
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/me/messages", graphVersion))

	if err != nil {
		log.Error().Err(err).Str("recipientID", recipientID).Msg("Meta API: private message request failed")
		return "", fmt.Errorf("Meta private message request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("recipientID", recipientID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Meta API: private message returned an error")
		return "", fmt.Errorf("Meta private message error: status %s, body: %s", resp.Status(), resp.String())
	}
	if result.MessageID == "" {
		return "", fmt.Errorf("Meta private message returned no message id")
	}

	log.Info().Str("messageID", result.MessageID).Str("recipientID", recipientID).Msg("Sent private message")
	return result.MessageID, nil
}
