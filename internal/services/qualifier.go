package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"maru-lead-engine/internal/models"

	"github.com/rs/zerolog/log"
)

const qualificationSystemPrompt = `You are a Lead Qualification Specialist for South African SMEs (Small and Medium Enterprises).

Your task is to analyze incoming messages from social media and web forms to determine:
1. Is this a genuine business inquiry (lead) or just social engagement?
2. What is the urgency level? (High/Medium/Low)
3. What information can be extracted?

SOUTH AFRICAN CONTEXT:
- Common languages: English, Zulu (isiZulu), Afrikaans
- Common locations: Johannesburg (JHB), Cape Town (CPT), Durban (DBN), Pretoria (PTA), Sandton, Fourways, Midrand, etc.
- High-intent keywords: "quote", "price", "help", "urgent", "emergency", "need", "how much"
- Low-intent: "nice", "lol", "wow", emojis only, complaints without service request

URGENCY SCORING:
- HIGH (80-100): Emergency needs, "urgent", "today", "ASAP", specific problem requiring immediate attention
- MEDIUM (40-79): General inquiries, "quote", "price", interested but not time-sensitive
- LOW (0-39): Just compliments, complaints without asking for service, vague interest

If the message is in Afrikaans or Zulu, translate to English for CRM storage BUT keep the original for any suggested reply.

Return ONLY a valid JSON object with this exact structure:
{
  "is_lead": boolean,
  "urgency": "High" | "Medium" | "Low",
  "intent_score": number (0-100),
  "suggested_reply": "string",
  "extracted_data": {
    "name": "string or null",
    "phone": "string or null",
    "email": "string or null",
    "service_requested": "string or null",
    "location": "string or null"
  },
  "language_detected": "en" | "zu" | "af" | "unknown",
  "reasoning": "brief explanation of scoring"
}`

// fallbackReply is the generic acknowledgment used when qualification fails.
const fallbackReply = "Thank you for your message! We'll get back to you soon."

// CompletionClient is the narrow contract the qualifier needs from the model
// backend: a structured, low-randomness completion for a system/user prompt pair.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Qualifier analyzes inbound messages with a language model and produces a
// structured verdict. It never fails: any upstream error collapses into a
// conservative fallback verdict, the pipeline's safety valve.
type Qualifier struct {
	ai CompletionClient
}

// NewQualifier creates a new Qualifier.
func NewQualifier(ai CompletionClient) (*Qualifier, error) {
	if ai == nil {
		return nil, fmt.Errorf("completion client cannot be nil")
	}
	return &Qualifier{ai: ai}, nil
}

// rawVerdict mirrors the model's JSON response with pointer fields so missing
// or mistyped values are detectable instead of silently zeroed.
type rawVerdict struct {
	IsLead           *bool                `json:"is_lead"`
	Urgency          string               `json:"urgency"`
	IntentScore      *float64             `json:"intent_score"`
	SuggestedReply   string               `json:"suggested_reply"`
	ExtractedData    models.ExtractedData `json:"extracted_data"`
	LanguageDetected string               `json:"language_detected"`
	Reasoning        string               `json:"reasoning"`
}

// Qualify runs the model call and validates the verdict. On any failure
// (missing credential, transport error, malformed JSON, shape violation) it
// returns the fallback verdict with the cause in Reasoning.
func (q *Qualifier) Qualify(ctx context.Context, messageContent string, source models.LeadSource) models.QualificationResult {
	userPrompt := fmt.Sprintf("Analyze this message from %s:\n\n%q\n\nIs this a qualified lead? What's the urgency? Extract any contact info.", source, messageContent)

	responseText, err := q.ai.Complete(ctx, qualificationSystemPrompt, userPrompt)
	if err != nil {
		log.Error().Err(err).Str("source", string(source)).Msg("AI qualification failed, using fallback verdict")
		return FallbackVerdict(err.Error())
	}

	result, err := parseVerdict(responseText)
	if err != nil {
		log.Error().Err(err).Str("source", string(source)).Msg("AI qualification response invalid, using fallback verdict")
		return FallbackVerdict(err.Error())
	}

	log.Info().
		Bool("is_lead", result.IsLead).
		Str("urgency", string(result.Urgency)).
		Int("intent_score", result.IntentScore).
		Str("source", string(source)).
		Msg("Lead qualified")
	return result
}

func parseVerdict(responseText string) (models.QualificationResult, error) {
	var raw rawVerdict
	if err := json.Unmarshal([]byte(responseText), &raw); err != nil {
		return models.QualificationResult{}, fmt.Errorf("malformed JSON from AI: %w", err)
	}

	if raw.IsLead == nil || raw.IntentScore == nil {
		return models.QualificationResult{}, fmt.Errorf("invalid response format from AI")
	}
	urgency := models.LeadUrgency(raw.Urgency)
	switch urgency {
	case models.UrgencyHigh, models.UrgencyMedium, models.UrgencyLow:
	default:
		return models.QualificationResult{}, fmt.Errorf("invalid urgency %q from AI", raw.Urgency)
	}

	language := models.Language(raw.LanguageDetected)
	switch language {
	case models.LanguageEnglish, models.LanguageZulu, models.LanguageAfrikaans:
	default:
		language = models.LanguageUnknown
	}

	return models.QualificationResult{
		IsLead:           *raw.IsLead,
		Urgency:          urgency,
		IntentScore:      int(*raw.IntentScore),
		SuggestedReply:   raw.SuggestedReply,
		ExtractedData:    raw.ExtractedData,
		LanguageDetected: language,
		Reasoning:        raw.Reasoning,
	}, nil
}

// FallbackVerdict is the conservative default returned whenever qualification
// cannot complete: not a lead, Low urgency, zero score.
func FallbackVerdict(reason string) models.QualificationResult {
	return models.QualificationResult{
		IsLead:           false,
		Urgency:          models.UrgencyLow,
		IntentScore:      0,
		SuggestedReply:   fallbackReply,
		ExtractedData:    models.ExtractedData{},
		LanguageDetected: models.LanguageUnknown,
		Reasoning:        fmt.Sprintf("AI processing failed: %s", reason),
	}
}

var (
	afrikaansKeywords = []string{"ek", "jy", "die", "is", "asseblief", "dankie", "goeie"}
	zuluKeywords      = []string{"ngiyabonga", "sawubona", "yebo", "cha", "ngicela"}
)

// DetectLanguage guesses the message language with keyword matching. It is a
// cheap helper; the model's own language field is authoritative.
func DetectLanguage(text string) models.Language {
	lower := strings.ToLower(text)
	for _, kw := range afrikaansKeywords {
		if strings.Contains(lower, kw) {
			return models.LanguageAfrikaans
		}
	}
	for _, kw := range zuluKeywords {
		if strings.Contains(lower, kw) {
			return models.LanguageZulu
		}
	}
	return models.LanguageEnglish
}
