package cove

import (
	"context"
	"fmt"

	"opsconsole/internal/schema"
)

// Normalizer synthesizes canonical alerts from failing backup devices,
// re-derived on every poll like the uptime source.
type Normalizer struct{}

// NewNormalizer creates a new normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// SynthesizeAlert builds a canonical alert for a failing backup device.
func (n *Normalizer) SynthesizeAlert(d *DeviceStatus) schema.Alert {
	return schema.Alert{
		Source:           schema.SourceCove,
		SourceID:         fmt.Sprintf("%d", d.DeviceID),
		Title:            fmt.Sprintf("Backup %s: %s", stateLabel(d.SessionState), d.DeviceName),
		Severity:         mapSessionState(d.SessionState),
		DeviceHostname:   d.DeviceName,
		OrganizationName: d.PartnerName,
		DetectedAt:       d.LastSession,
		VendorPayload:    d.Raw,
	}
}

// mapSessionState maps backup session states to the canonical scale.
// Values absent from the table map to medium.
func mapSessionState(state string) schema.Severity {
	switch state {
	case "Failed":
		return schema.SeverityHigh
	case "Overdue":
		return schema.SeverityHigh
	case "Interrupted":
		return schema.SeverityMedium
	case "CompletedWithErrors":
		return schema.SeverityLow
	default:
		return schema.SeverityMedium
	}
}

func stateLabel(state string) string {
	switch state {
	case "Failed":
		return "failed"
	case "Overdue":
		return "overdue"
	case "Interrupted":
		return "interrupted"
	case "CompletedWithErrors":
		return "completed with errors"
	default:
		return state
	}
}

// Source adapts the Cove client to the alert feed's source contract.
type Source struct {
	client     *Client
	normalizer *Normalizer
	configured bool
}

// NewSource creates a feed source backed by the Cove client.
func NewSource(client *Client, configured bool) *Source {
	return &Source{
		client:     client,
		normalizer: NewNormalizer(),
		configured: configured,
	}
}

// Name returns the vendor tag.
func (s *Source) Name() schema.Source { return schema.SourceCove }

// Configured reports whether the integration has credentials.
func (s *Source) Configured() bool { return s.configured }

// Fetch polls device statuses and synthesizes alerts for failing backups.
func (s *Source) Fetch(ctx context.Context) ([]schema.Alert, error) {
	statuses, err := s.client.ListDeviceStatuses(ctx)
	if err != nil {
		return nil, err
	}

	var alerts []schema.Alert
	for i := range statuses {
		if statuses[i].Failing() {
			alerts = append(alerts, s.normalizer.SynthesizeAlert(&statuses[i]))
		}
	}
	return alerts, nil
}
