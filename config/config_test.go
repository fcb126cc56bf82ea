package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "DEDUPLICATION_HOURS", "MAX_PROCESSING_RETRIES",
		"ENABLE_AUTO_REPLY", "OPENAI_MODEL", "HUBSPOT_DEAL_STAGE", "HUBSPOT_PIPELINE_ID",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DatabaseURL != "maru-leads.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.DedupWindowHours != 2 {
		t.Errorf("DedupWindowHours = %d, want 2", cfg.DedupWindowHours)
	}
	if cfg.MaxProcessingRetries != 3 {
		t.Errorf("MaxProcessingRetries = %d, want 3", cfg.MaxProcessingRetries)
	}
	if cfg.EnableAutoReply {
		t.Error("auto-reply should default to off")
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("OpenAIModel = %q", cfg.OpenAIModel)
	}
	if cfg.HubspotDealStage != "appointmentscheduled" || cfg.HubspotPipelineID != "default" {
		t.Errorf("hubspot defaults wrong: %q / %q", cfg.HubspotDealStage, cfg.HubspotPipelineID)
	}
	if cfg.DedupWindow() != 2*time.Hour {
		t.Errorf("DedupWindow = %v, want 2h", cfg.DedupWindow())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "/tmp/test.db")
	t.Setenv("DEDUPLICATION_HOURS", "6")
	t.Setenv("MAX_PROCESSING_RETRIES", "5")
	t.Setenv("ENABLE_AUTO_REPLY", "true")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabaseURL != "/tmp/test.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.DedupWindowHours != 6 || cfg.DedupWindow() != 6*time.Hour {
		t.Errorf("dedup window override lost: %d", cfg.DedupWindowHours)
	}
	if cfg.MaxProcessingRetries != 5 {
		t.Errorf("MaxProcessingRetries = %d", cfg.MaxProcessingRetries)
	}
	if !cfg.EnableAutoReply {
		t.Error("ENABLE_AUTO_REPLY=true should enable auto-reply")
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("OpenAIModel = %q", cfg.OpenAIModel)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("DEDUPLICATION_HOURS", "two")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DedupWindowHours != 2 {
		t.Errorf("invalid integer should fall back to 2, got %d", cfg.DedupWindowHours)
	}
}
