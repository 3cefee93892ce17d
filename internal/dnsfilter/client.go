// Package dnsfilter provides the DNSFilter integration. Blocked threat
// events (malware, phishing, botnet lookups) surface as alerts.
package dnsfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client provides access to the DNSFilter API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds configuration for the DNSFilter client.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://api.dnsfilter.com/v1",
		Timeout: 30 * time.Second,
	}
}

// NewClient creates a new DNSFilter client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ThreatEvent represents a blocked threat lookup.
type ThreatEvent struct {
	ID               string    `json:"id"`
	Domain           string    `json:"domain"`
	ThreatCategory   string    `json:"threat_category"` // malware, phishing, botnet, cryptomining
	AgentHostname    string    `json:"agent_hostname"`
	OrganizationName string    `json:"organization_name"`
	OccurredAt       time.Time `json:"occurred_at"`

	Raw json.RawMessage `json:"-"`
}

// ListThreatEvents retrieves recent blocked threat lookups.
func (c *Client) ListThreatEvents(ctx context.Context, since time.Time, limit int) ([]ThreatEvent, error) {
	path := fmt.Sprintf("/security/events?since=%s&limit=%d", since.UTC().Format(time.RFC3339), limit)
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode events response: %w", err)
	}

	events := make([]ThreatEvent, 0, len(result.Data))
	for _, raw := range result.Data {
		var e ThreatEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		e.Raw = raw
		events = append(events, e)
	}
	return events, nil
}
