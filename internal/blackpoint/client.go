// Package blackpoint provides the Blackpoint MDR integration. Blackpoint's
// SOC enriches endpoint detections with analyst context, which the
// correlation engine folds into the matching EDR alert.
package blackpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client provides access to the Blackpoint portal API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds configuration for the Blackpoint client.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://portal.blackpointcyber.com/api",
		Timeout: 30 * time.Second,
	}
}

// NewClient creates a new Blackpoint client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SOCAlert represents a Blackpoint SOC alert.
type SOCAlert struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Severity     string    `json:"severity"` // critical, high, medium, low, info
	Hostname     string    `json:"hostname"`
	CustomerName string    `json:"customerName"`
	Category     string    `json:"category"`
	FileSHA256   string    `json:"fileSha256,omitempty"`
	SOCNotes     string    `json:"socNotes,omitempty"`
	Status       string    `json:"status"`
	DetectedAt   time.Time `json:"detectedAt"`

	Raw json.RawMessage `json:"-"`
}

// ListAlerts retrieves open SOC alerts.
func (c *Client) ListAlerts(ctx context.Context, limit int) ([]SOCAlert, error) {
	path := fmt.Sprintf("/v1/alerts?status=%s&limit=%d", url.QueryEscape("open"), limit)
	resp, err := c.doRequest(ctx, "GET", path)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode alerts response: %w", err)
	}

	alerts := make([]SOCAlert, 0, len(result.Alerts))
	for _, raw := range result.Alerts {
		var a SOCAlert
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		a.Raw = raw
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// GetAlert retrieves a single SOC alert by id.
func (c *Client) GetAlert(ctx context.Context, id string) (*SOCAlert, error) {
	resp, err := c.doRequest(ctx, "GET", "/v1/alerts/"+url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert response: %w", err)
	}

	var a SOCAlert
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode alert: %w", err)
	}
	a.Raw = raw
	return &a, nil
}

// doRequest performs an HTTP request to the portal API.
func (c *Client) doRequest(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}
