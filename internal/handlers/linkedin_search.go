package handlers

import (
	"encoding/json"
	"net/http"

	"maru-lead-engine/internal/adapters/proxycurl"

	"github.com/rs/zerolog/log"
)

// LinkedInSearchRequest is the prospect-search request body.
type LinkedInSearchRequest struct {
	JobTitle string `json:"job_title" validate:"required"`
	Location string `json:"location" validate:"required"`
	Limit    int    `json:"limit,omitempty"`
}

// LinkedInProfile is the outward shape of one search hit.
type LinkedInProfile struct {
	PublicIdentifier string `json:"public_identifier"`
	ProfilePicURL    string `json:"profile_pic_url,omitempty"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Headline         string `json:"headline,omitempty"`
	Summary          string `json:"summary,omitempty"`
	Occupation       string `json:"occupation,omitempty"`
	Location         string `json:"location,omitempty"`
	Connections      int    `json:"connections,omitempty"`
}

// LinkedInSearchHandler searches LinkedIn prospects through Proxycurl.
type LinkedInSearchHandler struct {
	client *proxycurl.Client
}

// NewLinkedInSearchHandler creates a new LinkedInSearchHandler.
func NewLinkedInSearchHandler(client *proxycurl.Client) *LinkedInSearchHandler {
	if client == nil {
		log.Fatal().Msg("Proxycurl client cannot be nil for LinkedInSearchHandler")
	}
	return &LinkedInSearchHandler{client: client}
}

// Handle runs a prospect search on POST; GET returns endpoint info.
func (h *LinkedInSearchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"endpoint":        "linkedin-search",
			"description":     "Search for LinkedIn profiles by job title and location",
			"required_fields": []string{"job_title", "location"},
			"optional_fields": []string{"limit"},
		})
		return
	}

	var req LinkedInSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "missing required fields: job_title, location")
		return
	}

	log.Info().Str("jobTitle", req.JobTitle).Str("location", req.Location).Msg("LinkedIn prospect search")

	profiles, err := h.client.SearchPeople(r.Context(), req.JobTitle, req.Location, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	out := make([]LinkedInProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, LinkedInProfile{
			PublicIdentifier: p.PublicIdentifier,
			ProfilePicURL:    p.ProfilePicURL,
			FirstName:        p.FirstName,
			LastName:         p.LastName,
			Headline:         p.Headline,
			Summary:          p.Summary,
			Occupation:       p.Occupation,
			Location:         p.City,
			Connections:      p.Connections,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"count":    len(out),
		"profiles": out,
	})
}
