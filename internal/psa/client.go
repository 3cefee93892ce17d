// Package psa talks to the ticketing system: company resolution, ticket
// lookup and ticket creation. The console never owns PSA data; tickets and
// companies are read-only projections except for createTicket.
package psa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig holds PSA connection settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the HTTP client for the PSA REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a PSA API client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Company is a PSA company record.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TicketCandidate is a read-only projection of a PSA ticket.
type TicketCandidate struct {
	SourceID string `json:"id"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// TicketRequest is the create-ticket payload.
type TicketRequest struct {
	CompanyID   string `json:"companyId"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Board       string `json:"board,omitempty"`
}

// APIError is a PSA API error response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("psa api error (status %d): %s", e.StatusCode, e.Message)
}

// FindCompanyByMapping resolves a company via the vendor-to-company
// organization mapping. Returns nil when no mapping exists.
func (c *Client) FindCompanyByMapping(ctx context.Context, organizationSourceID string) (*Company, error) {
	query := url.Values{"organizationSourceId": {organizationSourceID}}
	var companies []Company
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/companies/mappings?"+query.Encode(), nil, &companies); err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}

// FindCompanyByHostname resolves a company through the PSA's known-device
// inventory. Returns nil when the hostname is unknown.
func (c *Client) FindCompanyByHostname(ctx context.Context, hostname string) (*Company, error) {
	query := url.Values{"hostname": {hostname}}
	var companies []Company
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/companies/devices?"+query.Encode(), nil, &companies); err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}

// SearchCompaniesByName returns companies whose name resembles the query.
func (c *Client) SearchCompaniesByName(ctx context.Context, name string) ([]Company, error) {
	query := url.Values{"name": {name}}
	var companies []Company
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/companies/search?"+query.Encode(), nil, &companies); err != nil {
		return nil, err
	}
	return companies, nil
}

// ListTickets returns the open tickets for a company.
func (c *Client) ListTickets(ctx context.Context, companyID string) ([]TicketCandidate, error) {
	query := url.Values{"companyId": {companyID}}
	var tickets []TicketCandidate
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/tickets?"+query.Encode(), nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// CreateTicket creates a ticket and returns the created record.
func (c *Client) CreateTicket(ctx context.Context, req TicketRequest) (*TicketCandidate, error) {
	var ticket TicketCandidate
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/tickets", req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("psa request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
