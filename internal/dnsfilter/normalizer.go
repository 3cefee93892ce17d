package dnsfilter

import (
	"context"
	"fmt"
	"time"

	"opsconsole/internal/schema"
)

// Normalizer converts DNSFilter threat events to canonical alerts.
type Normalizer struct{}

// NewNormalizer creates a new normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeEvent converts a ThreatEvent to a canonical alert.
func (n *Normalizer) NormalizeEvent(e *ThreatEvent) schema.Alert {
	return schema.Alert{
		Source:           schema.SourceDNSFilter,
		SourceID:         e.ID,
		Title:            fmt.Sprintf("Blocked %s lookup: %s", e.ThreatCategory, e.Domain),
		Severity:         mapThreatCategory(e.ThreatCategory),
		DeviceHostname:   e.AgentHostname,
		OrganizationName: e.OrganizationName,
		DetectedAt:       e.OccurredAt,
		RuleID:           e.ThreatCategory,
		VendorPayload:    e.Raw,
	}
}

// mapThreatCategory maps DNSFilter threat categories to the canonical
// scale. Values absent from the table map to medium.
func mapThreatCategory(category string) schema.Severity {
	switch category {
	case "botnet":
		return schema.SeverityCritical
	case "malware":
		return schema.SeverityHigh
	case "phishing":
		return schema.SeverityHigh
	case "cryptomining":
		return schema.SeverityMedium
	default:
		return schema.SeverityMedium
	}
}

// Source adapts the DNSFilter client to the alert feed's source contract.
type Source struct {
	client     *Client
	normalizer *Normalizer
	configured bool
	lookback   time.Duration
	batchSize  int
}

// NewSource creates a feed source backed by the DNSFilter client.
func NewSource(client *Client, configured bool) *Source {
	return &Source{
		client:     client,
		normalizer: NewNormalizer(),
		configured: configured,
		lookback:   24 * time.Hour,
		batchSize:  200,
	}
}

// Name returns the vendor tag.
func (s *Source) Name() schema.Source { return schema.SourceDNSFilter }

// Configured reports whether the integration has credentials.
func (s *Source) Configured() bool { return s.configured }

// Fetch retrieves and normalizes recent blocked threat lookups.
func (s *Source) Fetch(ctx context.Context) ([]schema.Alert, error) {
	events, err := s.client.ListThreatEvents(ctx, time.Now().Add(-s.lookback), s.batchSize)
	if err != nil {
		return nil, err
	}

	alerts := make([]schema.Alert, 0, len(events))
	for i := range events {
		alerts = append(alerts, s.normalizer.NormalizeEvent(&events[i]))
	}
	return alerts, nil
}
