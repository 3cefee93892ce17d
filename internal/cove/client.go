// Package cove provides the Cove Data Protection (backup) integration.
// Failed or overdue backup jobs surface as alerts in the unified feed.
package cove

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client provides access to the Cove backup management API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds configuration for the Cove client.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://api.backup.management",
		Timeout: 60 * time.Second,
	}
}

// NewClient creates a new Cove client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// DeviceStatus represents a backup device's latest session summary.
type DeviceStatus struct {
	DeviceID     int64     `json:"deviceId"`
	DeviceName   string    `json:"deviceName"`
	PartnerName  string    `json:"partnerName"`
	SessionState string    `json:"sessionState"` // Completed, CompletedWithErrors, Failed, Interrupted, Overdue
	ErrorCount   int       `json:"errorCount"`
	LastSession  time.Time `json:"lastSessionTime"`

	Raw json.RawMessage `json:"-"`
}

// Failing reports whether the device's latest session warrants an alert.
func (d *DeviceStatus) Failing() bool {
	switch d.SessionState {
	case "Failed", "Interrupted", "Overdue", "CompletedWithErrors":
		return true
	}
	return false
}

// ListDeviceStatuses retrieves the latest session summary for every device.
func (c *Client) ListDeviceStatuses(ctx context.Context) ([]DeviceStatus, error) {
	body := map[string]any{
		"jsonrpc": "2.0",
		"method":  "EnumerateAccountStatistics",
		"params": map[string]any{
			"query": map[string]any{
				"SelectionMode": "Merged",
			},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/jsonapi", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		Result struct {
			Devices []json.RawMessage `json:"result"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode statuses response: %w", err)
	}

	statuses := make([]DeviceStatus, 0, len(result.Result.Devices))
	for _, raw := range result.Result.Devices {
		var d DeviceStatus
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		d.Raw = raw
		statuses = append(statuses, d)
	}
	return statuses, nil
}
