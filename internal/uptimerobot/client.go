// Package uptimerobot provides the UptimeRobot integration. UptimeRobot has
// no alert objects of its own; a monitor that is currently failing implies an
// alert, which the normalizer synthesizes from monitor state on every poll.
package uptimerobot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Monitor status codes as reported by the API.
const (
	StatusPaused       = 0
	StatusNotChecked   = 1
	StatusUp           = 2
	StatusSeemsDown    = 8
	StatusDown         = 9
)

// Client provides access to the UptimeRobot API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds configuration for the UptimeRobot client.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://api.uptimerobot.com/v2",
		Timeout: 30 * time.Second,
	}
}

// NewClient creates a new UptimeRobot client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Monitor represents an UptimeRobot monitor with its current status.
type Monitor struct {
	ID           int64  `json:"id"`
	FriendlyName string `json:"friendly_name"`
	URL          string `json:"url"`
	Type         int    `json:"type"`
	Status       int    `json:"status"`
	// LastDownAt is a unix timestamp of the start of the current outage,
	// zero when the monitor is up.
	LastDownAt int64 `json:"last_down_at"`

	Raw json.RawMessage `json:"-"`
}

// Down reports whether the monitor's current status implies an outage.
func (m *Monitor) Down() bool {
	return m.Status == StatusSeemsDown || m.Status == StatusDown
}

// ListMonitors retrieves all monitors with their current status.
// The UptimeRobot API is POST-based with form-encoded parameters.
func (c *Client) ListMonitors(ctx context.Context) ([]Monitor, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("format", "json")
	form.Set("logs", "0")

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/getMonitors",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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
		Stat     string            `json:"stat"`
		Monitors []json.RawMessage `json:"monitors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode monitors response: %w", err)
	}
	if result.Stat != "ok" {
		return nil, fmt.Errorf("API returned stat %q", result.Stat)
	}

	monitors := make([]Monitor, 0, len(result.Monitors))
	for _, raw := range result.Monitors {
		var m Monitor
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		m.Raw = raw
		monitors = append(monitors, m)
	}
	return monitors, nil
}
