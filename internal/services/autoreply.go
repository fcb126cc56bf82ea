package services

import (
	"context"
	"fmt"

	"maru-lead-engine/internal/adapters/meta"
	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
)

// AutoReplyService sends a best-effort acknowledgment back to the originating
// Facebook or Instagram channel: a public comment reply when the message came
// from a comment, a private message otherwise.
type AutoReplyService struct {
	client *meta.Client
}

// NewAutoReplyService creates a new AutoReplyService.
func NewAutoReplyService(client *meta.Client) (*AutoReplyService, error) {
	if client == nil {
		return nil, fmt.Errorf("Meta client cannot be nil")
	}
	return &AutoReplyService{client: client}, nil
}

// Reply sends the suggested reply for a payload and returns the reply id.
func (s *AutoReplyService) Reply(ctx context.Context, payload *models.NormalizedPayload, replyText string) (string, error) {
	commentID := ""
	if payload.Metadata != nil {
		commentID = payload.Metadata.CommentID
	}

	if payload.Source == models.SourceFacebook && commentID != "" {
		replyID, err := s.client.ReplyToComment(ctx, commentID, replyText)
		if err != nil {
			return "", err
		}
		log.Info().Str("replyID", replyID).Str("commentID", commentID).Msg("Auto-reply posted on comment")
		return replyID, nil
	}

	if payload.UserID == "" {
		return "", fmt.Errorf("invalid auto-reply parameters: missing comment_id or sender_id")
	}
	replyID, err := s.client.SendPrivateMessage(ctx, payload.UserID, replyText)
	if err != nil {
		return "", err
	}
	log.Info().Str("replyID", replyID).Str("recipientID", payload.UserID).Msg("Auto-reply sent as private message")
	return replyID, nil
}
