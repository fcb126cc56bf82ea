package main

import (
	"net/http"
	"time"

	"maru-lead-engine/config"
	"maru-lead-engine/internal/adapters/hubspot"
	"maru-lead-engine/internal/adapters/meta"
	"maru-lead-engine/internal/adapters/openai"
	"maru-lead-engine/internal/adapters/proxycurl"
	"maru-lead-engine/internal/adapters/twilio"
	"maru-lead-engine/internal/db"
	"maru-lead-engine/internal/handlers"
	"maru-lead-engine/internal/models"
	"maru-lead-engine/internal/queue"
	"maru-lead-engine/internal/services"
	"maru-lead-engine/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log" // zerolog's global logger
)

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Str("database_url", cfg.DatabaseURL).Msg("Initializing database...")
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := db.Migrate(database, models.All()...); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Outbound API clients. Credentials may be absent; each integration
	// raises its own configuration error on first use.
	openaiClient := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	hubspotClient := hubspot.NewClient(cfg.HubspotBaseURL, cfg.HubspotAccessToken)
	twilioClient := twilio.NewClient(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	metaClient := meta.NewClient(cfg.MetaGraphBaseURL, cfg.MetaPageAccessToken)
	proxycurlClient := proxycurl.NewClient(cfg.ProxycurlBaseURL, cfg.ProxycurlAPIKey)

	// Services.
	dedup, err := services.NewDeduplicator(database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Deduplicator")
	}
	audit, err := services.NewAuditLog(database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AuditLog")
	}
	qualifier, err := services.NewQualifier(openaiClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Qualifier")
	}
	crmSync, err := services.NewHubspotSyncService(hubspotClient, cfg.HubspotDealStage, cfg.HubspotPipelineID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize HubspotSyncService")
	}
	notifier, err := services.NewWhatsappNotifier(twilioClient, cfg.TwilioWhatsappFrom, cfg.TwilioWhatsappTo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize WhatsappNotifier")
	}
	autoReplier, err := services.NewAutoReplyService(metaClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AutoReplyService")
	}
	processor, err := services.NewLeadProcessor(database, qualifier, crmSync, notifier, autoReplier, audit, cfg.EnableAutoReply)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LeadProcessor")
	}
	leadQueue, err := queue.New(database, processor, cfg.MaxProcessingRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize queue")
	}

	// Handlers.
	eventCache := handlers.NewEventCache(24 * time.Hour)
	inboundHandler := handlers.NewInboundHandler(dedup, leadQueue, audit, cfg.DedupWindow())
	metaHandler := handlers.NewMetaWebhookHandler(inboundHandler, eventCache, cfg.MetaAppSecret, cfg.MetaVerifyToken)
	tiktokHandler := handlers.NewTikTokWebhookHandler(inboundHandler, eventCache)
	webFormHandler := handlers.NewWebFormHandler(inboundHandler)
	workerHandler := handlers.NewWorkerHandler(leadQueue)
	linkedinHandler := handlers.NewLinkedInSearchHandler(proxycurlClient)

	base := alice.New(handlers.RequestLogger)
	workerChain := base.Append(handlers.WorkerAuth(cfg.WorkerAuthSecret))

	router := mux.NewRouter()
	router.Handle("/", base.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"maru-lead-engine","status":"running"}`))
	})).Methods(http.MethodGet)

	router.Handle("/webhooks/social-inbound", base.ThenFunc(inboundHandler.Handle)).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/webhooks/meta", base.ThenFunc(metaHandler.Handle)).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/webhooks/tiktok", base.ThenFunc(tiktokHandler.Handle)).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/webhooks/web-form", base.ThenFunc(webFormHandler.Handle)).Methods(http.MethodPost)
	router.Handle("/worker/process-queue", workerChain.ThenFunc(workerHandler.Handle)).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/linkedin/search", base.ThenFunc(linkedinHandler.Handle)).Methods(http.MethodGet, http.MethodPost)

	port := cfg.Port
	if port == "" {
		port = "8080"
		log.Info().Str("port", port).Msg("Defaulting to port")
	}

	log.Info().Str("port", port).Msg("Server starting")
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
