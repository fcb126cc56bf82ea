package httputil

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// NewRestyClient creates a Resty client with the common configuration shared by
// all outbound API adapters (OpenAI, HubSpot, Twilio, Meta, Proxycurl).
// Individual adapters layer their own base URL, auth headers and timeouts on top.
func NewRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "maru-lead-engine")
}
