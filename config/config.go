package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log" // Use global logger
)

// Config holds all configuration fields for the application.
type Config struct {
	// Server
	Port      string
	LogLevel  string
	LogFormat string // "console" or "json"

	// Storage
	DatabaseURL string

	// Pipeline behaviour
	DedupWindowHours     int
	MaxProcessingRetries int
	EnableAutoReply      bool
	WorkerAuthSecret     string

	// OpenAI (lead qualification)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// HubSpot CRM
	HubspotAccessToken string
	HubspotBaseURL     string
	HubspotDealStage   string
	HubspotPipelineID  string

	// Twilio (WhatsApp notifications)
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioBaseURL      string
	TwilioWhatsappFrom string
	TwilioWhatsappTo   string

	// Meta (Facebook/Instagram webhooks and auto-replies)
	MetaPageAccessToken string
	MetaAppSecret       string
	MetaVerifyToken     string
	MetaGraphBaseURL    string

	// Proxycurl (LinkedIn prospect search)
	ProxycurlAPIKey  string
	ProxycurlBaseURL string
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present; environment variables take precedence.
// Absence of an integration credential is NOT an error here: each integration
// raises its own configuration error on first use.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("No .env file found or error loading it, relying on environment variables")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		Port:      os.Getenv("PORT"),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		DedupWindowHours:     envInt("DEDUPLICATION_HOURS", 2),
		MaxProcessingRetries: envInt("MAX_PROCESSING_RETRIES", 3),
		EnableAutoReply:      os.Getenv("ENABLE_AUTO_REPLY") == "true",
		WorkerAuthSecret:     os.Getenv("WORKER_AUTH_SECRET"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),

		HubspotAccessToken: os.Getenv("HUBSPOT_ACCESS_TOKEN"),
		HubspotBaseURL:     os.Getenv("HUBSPOT_BASE_URL"),
		HubspotDealStage:   os.Getenv("HUBSPOT_DEAL_STAGE"),
		HubspotPipelineID:  os.Getenv("HUBSPOT_PIPELINE_ID"),

		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioBaseURL:      os.Getenv("TWILIO_BASE_URL"),
		TwilioWhatsappFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),
		TwilioWhatsappTo:   os.Getenv("TWILIO_WHATSAPP_TO"),

		MetaPageAccessToken: os.Getenv("META_PAGE_ACCESS_TOKEN"),
		MetaAppSecret:       os.Getenv("META_APP_SECRET"),
		MetaVerifyToken:     os.Getenv("META_VERIFY_TOKEN"),
		MetaGraphBaseURL:    os.Getenv("META_GRAPH_BASE_URL"),

		ProxycurlAPIKey:  os.Getenv("PROXYCURL_API_KEY"),
		ProxycurlBaseURL: os.Getenv("PROXYCURL_BASE_URL"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "maru-leads.db"
		log.Info().Str("database_url", cfg.DatabaseURL).Msg("DATABASE_URL not set, using default")
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o"
	}
	if cfg.HubspotBaseURL == "" {
		cfg.HubspotBaseURL = "https://api.hubapi.com"
	}
	if cfg.HubspotDealStage == "" {
		cfg.HubspotDealStage = "appointmentscheduled"
	}
	if cfg.HubspotPipelineID == "" {
		cfg.HubspotPipelineID = "default"
	}
	if cfg.TwilioBaseURL == "" {
		cfg.TwilioBaseURL = "https://api.twilio.com"
	}
	if cfg.MetaGraphBaseURL == "" {
		cfg.MetaGraphBaseURL = "https://graph.facebook.com"
	}
	if cfg.ProxycurlBaseURL == "" {
		cfg.ProxycurlBaseURL = "https://nubela.co"
	}

	log.Info().
		Int("dedup_window_hours", cfg.DedupWindowHours).
		Int("max_processing_retries", cfg.MaxProcessingRetries).
		Bool("auto_reply_enabled", cfg.EnableAutoReply).
		Msg("Configuration loaded")
	return cfg, nil
}

// DedupWindow returns the deduplication window as a duration.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowHours) * time.Hour
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Int("fallback", fallback).Msg("Invalid integer in environment, using fallback")
		return fallback
	}
	return v
}
