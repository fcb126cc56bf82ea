package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// similarityThreshold is strict: only similarity ABOVE this counts as a
	// duplicate, so two messages at exactly 0.85 are both processed.
	similarityThreshold = 0.85

	// historyLimit caps how many recent leads are compared per check.
	historyLimit = 5
)

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Deduplicator suppresses near-identical messages from the same source/user
// within a time window. Lookup failures fail open: a duplicate slipping
// through is far cheaper than a dropped lead.
type Deduplicator struct {
	db *gorm.DB
}

// NewDeduplicator creates a new Deduplicator.
func NewDeduplicator(db *gorm.DB) (*Deduplicator, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &Deduplicator{db: db}, nil
}

// IsDuplicate reports whether a lead with very similar message content from the
// same user arrived within the window. This prevents duplicate processing but
// allows follow-up messages.
func (d *Deduplicator) IsDuplicate(source models.LeadSource, userID, message string, window time.Duration) bool {
	cutoff := time.Now().Add(-window)

	var recent []models.Lead
	err := d.db.
		Select("id", "message_content").
		Where("source = ? AND source_user_id = ? AND created_at >= ?", source, userID, cutoff).
		Order("created_at DESC").
		Limit(historyLimit).
		Find(&recent).Error
	if err != nil {
		log.Error().Err(err).Str("source", string(source)).Str("userID", userID).Msg("Deduplication check failed, allowing processing")
		return false // fail open
	}
	if len(recent) == 0 {
		return false
	}

	candidate := NormalizeMessage(message)
	for _, lead := range recent {
		existing := NormalizeMessage(lead.MessageContent)
		if JaccardSimilarity(candidate, existing) > similarityThreshold {
			log.Info().Str("source", string(source)).Str("userID", userID).Str("leadID", lead.ID).Msg("Found similar recent message, treating as duplicate")
			return true
		}
	}
	return false
}

// RecentLeadCount returns how many leads this user produced within the window.
// Errors fail open to zero.
func (d *Deduplicator) RecentLeadCount(source models.LeadSource, userID string, window time.Duration) int {
	cutoff := time.Now().Add(-window)

	var count int64
	err := d.db.Model(&models.Lead{}).
		Where("source = ? AND source_user_id = ? AND created_at >= ?", source, userID, cutoff).
		Count(&count).Error
	if err != nil {
		log.Error().Err(err).Str("source", string(source)).Str("userID", userID).Msg("Recent lead count failed")
		return 0
	}
	return int(count)
}

// NormalizeMessage lowercases a message, strips punctuation and collapses
// whitespace so near-identical messages compare equal token-wise.
func NormalizeMessage(message string) string {
	normalized := strings.ToLower(message)
	normalized = nonWordRe.ReplaceAllString(normalized, "")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// JaccardSimilarity computes |intersection| / |union| over the whitespace-split
// token sets of two normalized strings. An empty union (both strings empty
// after normalization) yields 0, never a match: empty or punctuation-only
// messages must not register as duplicates of each other.
func JaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	union := len(setA)
	intersection := 0
	for tok := range setB {
		if _, ok := setA[tok]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
