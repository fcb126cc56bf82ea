package proxycurl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"maru-lead-engine/pkg/httputil"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Profile is a LinkedIn profile as returned by Proxycurl's person search.
type Profile struct {
	PublicIdentifier string `json:"public_identifier"`
	ProfilePicURL    string `json:"profile_pic_url,omitempty"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Headline         string `json:"headline,omitempty"`
	Summary          string `json:"summary,omitempty"`
	Occupation       string `json:"occupation,omitempty"`
	City             string `json:"city,omitempty"`
	Connections      int    `json:"connections,omitempty"`
}

// searchResponse is the envelope around person search results.
type searchResponse struct {
	Results []Profile `json:"results"`
}

// Client queries the Proxycurl person search API.
type Client struct {
	httpClient *resty.Client
	apiKey     string
}

// NewClient creates a new Proxycurl client. A missing API key is not an error
// here: it becomes a configuration error on first use.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httputil.NewRestyClient(baseURL, 30*time.Second),
		apiKey:     apiKey,
	}
}

// SearchPeople searches South African LinkedIn profiles by current job title
// and region, with enriched profile data.
func (c *Client) SearchPeople(ctx context.Context, jobTitle, region string, limit int) ([]Profile, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("Proxycurl API key is not configured")
	}
	if limit <= 0 {
		limit = 10
	}

	var result searchResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetQueryParams(map[string]string{
			"country":           "za",
			"current_job_title": jobTitle,
			"region":            region,
			"enrich_profiles":   "enrich",
			"page_size":         strconv.Itoa(limit),
		}).
		SetResult(&result).
		Get("/proxycurl/api/search/person/")

	if err != nil {
		log.Error().Err(err).Str("jobTitle", jobTitle).Str("region", region).Msg("Proxycurl API: person search request failed")
		return nil, fmt.Errorf("Proxycurl person search request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("jobTitle", jobTitle).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Proxycurl API: person search returned an error")
		return nil, fmt.Errorf("Proxycurl person search error: status %s, body: %s", resp.Status(), resp.String())
	}

	log.Info().Str("jobTitle", jobTitle).Str("region", region).Int("count", len(result.Results)).Msg("Proxycurl person search completed")
	return result.Results, nil
}
