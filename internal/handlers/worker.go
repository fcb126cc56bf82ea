package handlers

import (
	"net/http"
	"time"

	"maru-lead-engine/internal/queue"

	"github.com/rs/zerolog/log"
)

// WorkerHandler runs one dequeue-batch tick per trigger. The trigger itself is
// external (a cron hitting this endpoint); the handler only defines what one
// tick does.
type WorkerHandler struct {
	queue *queue.Queue
}

// NewWorkerHandler creates a new WorkerHandler.
func NewWorkerHandler(q *queue.Queue) *WorkerHandler {
	if q == nil {
		log.Fatal().Msg("Queue cannot be nil for WorkerHandler")
	}
	return &WorkerHandler{queue: q}
}

// Handle triggers one worker tick on POST; GET returns endpoint info.
func (h *WorkerHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"endpoint":  "process-queue",
			"message":   "Use POST to trigger queue processing",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	result, err := h.queue.ProcessBatch(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Worker tick failed")
		respondError(w, http.StatusInternalServerError, "worker processing failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"processed": result.Processed,
		"failed":    result.Failed,
		"errors":    result.Errors,
	})
}
