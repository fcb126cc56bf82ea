package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs one line per request with method, path and duration.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// WorkerAuth guards the worker-trigger endpoint with a shared bearer secret.
// An empty configured secret rejects everything: the worker endpoint must not
// be open by accident.
func WorkerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			expected := "Bearer " + secret
			if secret == "" || subtle.ConstantTimeCompare([]byte(authHeader), []byte(expected)) != 1 {
				log.Warn().Str("path", r.URL.Path).Msg("Worker trigger rejected: bad or missing authorization")
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EventCache remembers channel event ids recently seen, so webhook redeliveries
// are dropped cheaply before touching the database.
type EventCache struct {
	seen *cache.Cache
}

// NewEventCache creates an EventCache with the given retention.
func NewEventCache(retention time.Duration) *EventCache {
	return &EventCache{seen: cache.New(retention, retention)}
}

// SeenAndMark reports whether the event id was already observed and records it.
func (c *EventCache) SeenAndMark(source, eventID string) bool {
	if eventID == "" {
		return false
	}
	key := source + ":" + eventID
	if _, found := c.seen.Get(key); found {
		return true
	}
	c.seen.SetDefault(key, struct{}{})
	return false
}
