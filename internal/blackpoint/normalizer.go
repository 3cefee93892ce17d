package blackpoint

import (
	"context"

	"opsconsole/internal/schema"
)

// Normalizer converts Blackpoint SOC alerts to canonical alerts.
type Normalizer struct{}

// NewNormalizer creates a new normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeAlert converts a SOCAlert to a canonical alert.
func (n *Normalizer) NormalizeAlert(a *SOCAlert) schema.Alert {
	title := a.Title
	if title == "" {
		title = "Blackpoint SOC alert"
	}

	return schema.Alert{
		Source:           schema.SourceBlackpoint,
		SourceID:         a.ID,
		Title:            title,
		Severity:         mapSeverity(a.Severity),
		DeviceHostname:   a.Hostname,
		OrganizationName: a.CustomerName,
		DetectedAt:       a.DetectedAt,
		FileHash:         a.FileSHA256,
		RuleID:           a.Category,
		VendorPayload:    a.Raw,
	}
}

// mapSeverity maps Blackpoint severities to the canonical scale. Values
// absent from the table map to medium.
func mapSeverity(v string) schema.Severity {
	switch v {
	case "critical":
		return schema.SeverityCritical
	case "high":
		return schema.SeverityHigh
	case "medium":
		return schema.SeverityMedium
	case "low":
		return schema.SeverityLow
	case "info", "informational":
		return schema.SeverityInformational
	default:
		return schema.SeverityMedium
	}
}

// Source adapts the Blackpoint client to the alert feed's source contract.
type Source struct {
	client     *Client
	normalizer *Normalizer
	configured bool
	batchSize  int
}

// NewSource creates a feed source backed by the Blackpoint client.
func NewSource(client *Client, configured bool) *Source {
	return &Source{
		client:     client,
		normalizer: NewNormalizer(),
		configured: configured,
		batchSize:  200,
	}
}

// Name returns the vendor tag.
func (s *Source) Name() schema.Source { return schema.SourceBlackpoint }

// Configured reports whether the integration has credentials.
func (s *Source) Configured() bool { return s.configured }

// Fetch retrieves and normalizes the currently open SOC alerts.
func (s *Source) Fetch(ctx context.Context) ([]schema.Alert, error) {
	socAlerts, err := s.client.ListAlerts(ctx, s.batchSize)
	if err != nil {
		return nil, err
	}

	alerts := make([]schema.Alert, 0, len(socAlerts))
	for i := range socAlerts {
		alerts = append(alerts, s.normalizer.NormalizeAlert(&socAlerts[i]))
	}
	return alerts, nil
}
