// Package sentinelone provides the SentinelOne EDR integration: threat
// polling, normalization to the canonical alert model, and pass-through
// mitigation commands.
package sentinelone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client provides access to the SentinelOne management API.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// ClientConfig holds configuration for the SentinelOne client.
type ClientConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://usea1.sentinelone.net",
		Timeout: 30 * time.Second,
	}
}

// NewClient creates a new SentinelOne client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Threat represents a SentinelOne threat record.
type Threat struct {
	ID             string     `json:"id"`
	ThreatName     string     `json:"threatName"`
	AgentHostname  string     `json:"agentComputerName"`
	AgentID        string     `json:"agentId"`
	SiteName       string     `json:"siteName"`
	AccountName    string     `json:"accountName"`
	Classification string     `json:"classification"`
	ConfidenceLevel string    `json:"confidenceLevel"`
	RiskScore      float64    `json:"riskScore"`
	FileSHA256     string     `json:"fileSha256"`
	MitigationStatus string   `json:"mitigationStatus"`
	IncidentStatus string     `json:"incidentStatus"`
	AnalystVerdict string     `json:"analystVerdict"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`

	// Raw is the untouched vendor record as received, carried into the
	// canonical alert's vendor payload.
	Raw json.RawMessage `json:"-"`
}

// ListThreats retrieves unresolved threats.
func (c *Client) ListThreats(ctx context.Context, limit int) ([]Threat, error) {
	path := fmt.Sprintf("/web/api/v2.1/threats?resolved=false&limit=%d&sortBy=createdAt&sortOrder=desc", limit)
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list threats: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode threats response: %w", err)
	}

	threats := make([]Threat, 0, len(result.Data))
	for _, raw := range result.Data {
		var t Threat
		if err := json.Unmarshal(raw, &t); err != nil {
			// Malformed entries are skipped, not fatal for the batch.
			continue
		}
		t.Raw = raw
		threats = append(threats, t)
	}
	return threats, nil
}

// GetThreat retrieves a single threat by id.
func (c *Client) GetThreat(ctx context.Context, id string) (*Threat, error) {
	path := "/web/api/v2.1/threats?ids=" + id
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get threat: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode threat response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("threat not found: %s", id)
	}

	var t Threat
	if err := json.Unmarshal(result.Data[0], &t); err != nil {
		return nil, fmt.Errorf("failed to decode threat: %w", err)
	}
	t.Raw = result.Data[0]
	return &t, nil
}

// MitigateThreat dispatches a mitigation action (kill, quarantine, remediate,
// rollback-remediation) against a threat. The vendor response is surfaced
// verbatim; no retries.
func (c *Client) MitigateThreat(ctx context.Context, threatID, action string) error {
	body := map[string]any{
		"filter": map[string]any{"ids": []string{threatID}},
	}
	path := "/web/api/v2.1/threats/mitigate/" + action
	resp, err := c.doRequest(ctx, "POST", path, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// UpdateIncidentStatus sets the incident status for a set of threats.
func (c *Client) UpdateIncidentStatus(ctx context.Context, threatIDs []string, status string) error {
	body := map[string]any{
		"filter": map[string]any{"ids": threatIDs},
		"data":   map[string]any{"incidentStatus": status},
	}
	resp, err := c.doRequest(ctx, "POST", "/web/api/v2.1/threats/incident", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// UpdateVerdict sets the analyst verdict for a set of threats.
func (c *Client) UpdateVerdict(ctx context.Context, threatIDs []string, verdict string) error {
	body := map[string]any{
		"filter": map[string]any{"ids": threatIDs},
		"data":   map[string]any{"analystVerdict": verdict},
	}
	resp, err := c.doRequest(ctx, "POST", "/web/api/v2.1/threats/analyst-verdict", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// IsolateDevice disconnects an agent from the network.
func (c *Client) IsolateDevice(ctx context.Context, agentID string) error {
	return c.agentAction(ctx, agentID, "disconnect")
}

// ReconnectDevice reconnects an isolated agent to the network.
func (c *Client) ReconnectDevice(ctx context.Context, agentID string) error {
	return c.agentAction(ctx, agentID, "connect")
}

// TriggerScan starts a full disk scan on an agent.
func (c *Client) TriggerScan(ctx context.Context, agentID string) error {
	return c.agentAction(ctx, agentID, "initiate-scan")
}

func (c *Client) agentAction(ctx context.Context, agentID, action string) error {
	body := map[string]any{
		"filter": map[string]any{"ids": []string{agentID}},
	}
	path := "/web/api/v2.1/agents/actions/" + action
	resp, err := c.doRequest(ctx, "POST", path, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// doRequest performs an HTTP request to the management API.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "ApiToken "+c.apiToken)

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
