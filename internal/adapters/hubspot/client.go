package hubspot

import (
	"context"
	"fmt"
	"time"

	"maru-lead-engine/pkg/httputil"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client is a HubSpot CRM v3 API client covering the objects this integration
// touches: contacts, deals and notes.
type Client struct {
	httpClient  *resty.Client
	accessToken string
}

// NewClient creates a new HubSpot client. A missing access token is not an
// error here: it becomes a configuration error on first use.
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		httpClient:  httputil.NewRestyClient(baseURL, 15*time.Second),
		accessToken: accessToken,
	}
}

func (c *Client) checkConfigured() error {
	if c.accessToken == "" {
		return fmt.Errorf("HubSpot access token is not configured")
	}
	return nil
}

// SearchContactByEmail looks up a contact by exact email. Returns nil when no
// contact matches.
func (c *Client) SearchContactByEmail(ctx context.Context, email string) (*ObjectResult, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}

	req := SearchRequest{
		FilterGroups: []SearchFilterGroup{{
			Filters: []SearchFilter{{PropertyName: "email", Operator: "EQ", Value: email}},
		}},
		Properties: []string{"email", "firstname", "lastname"},
		Limit:      1,
	}

	var result SearchResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.accessToken).
		SetBody(req).
		SetResult(&result).
		Post("/crm/v3/objects/contacts/search")

	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("HubSpot API: contact search request failed")
		return nil, fmt.Errorf("HubSpot contact search request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("email", email).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("HubSpot API: contact search returned an error")
		return nil, fmt.Errorf("HubSpot contact search error: status %s, body: %s", resp.Status(), resp.String())
	}

	if len(result.Results) == 0 {
		return nil, nil
	}
	return &result.Results[0], nil
}

// CreateContact creates a contact and returns its id.
func (c *Client) CreateContact(ctx context.Context, properties map[string]string) (*ObjectResult, error) {
	return c.createObject(ctx, "contacts", CreateObjectRequest{Properties: properties})
}

// UpdateContact patches an existing contact's properties.
func (c *Client) UpdateContact(ctx context.Context, contactID string, properties map[string]string) error {
	if err := c.checkConfigured(); err != nil {
		return err
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.accessToken).
		SetBody(CreateObjectRequest{Properties: properties}).
		Patch(fmt.Sprintf("/crm/v3/objects/contacts/%s", contactID))

	if err != nil {
		log.Error().Err(err).Str("contactID", contactID).Msg("HubSpot API: contact update request failed")
		return fmt.Errorf("HubSpot contact update request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("contactID", contactID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("HubSpot API: contact update returned an error")
		return fmt.Errorf("HubSpot contact update error: status %s, body: %s", resp.Status(), resp.String())
	}
	return nil
}

// CreateDeal creates a deal, optionally associated to a contact.
func (c *Client) CreateDeal(ctx context.Context, properties map[string]string, associations []Association) (*ObjectResult, error) {
	return c.createObject(ctx, "deals", CreateObjectRequest{Properties: properties, Associations: associations})
}

// CreateNote creates a note associated to a contact and, when known, a deal.
func (c *Client) CreateNote(ctx context.Context, properties map[string]string, associations []Association) (*ObjectResult, error) {
	return c.createObject(ctx, "notes", CreateObjectRequest{Properties: properties, Associations: associations})
}

func (c *Client) createObject(ctx context.Context, objectType string, req CreateObjectRequest) (*ObjectResult, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}

	var result ObjectResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.accessToken).
		SetBody(req).
		SetResult(&result).
		Post(fmt.Sprintf("/crm/v3/objects/%s", objectType))

	if err != nil {
		log.Error().Err(err).Str("objectType", objectType).Msg("HubSpot API: create request failed")
		return nil, fmt.Errorf("HubSpot create %s request failed: %w", objectType, err)
	}
	if resp.IsError() {
		log.Error().Str("objectType", objectType).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("HubSpot API: create returned an error")
		return nil, fmt.Errorf("HubSpot create %s error: status %s, body: %s", objectType, resp.Status(), resp.String())
	}
	if result.ID == "" {
		return nil, fmt.Errorf("HubSpot create %s returned no id", objectType)
	}

	log.Info().Str("objectType", objectType).Str("id", result.ID).Msg("Created HubSpot object")
	return &result, nil
}
