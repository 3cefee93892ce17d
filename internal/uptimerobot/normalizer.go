package uptimerobot

import (
	"context"
	"fmt"
	"time"

	"opsconsole/internal/schema"
)

// Normalizer synthesizes canonical alerts from failing monitors. The
// synthesis is deterministic and re-derived every poll; an alert's identity
// is the monitor's own id, so a monitor that recovers and fails again maps
// to the same alert.
type Normalizer struct{}

// NewNormalizer creates a new normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// SynthesizeAlert builds a canonical alert for a down monitor.
func (n *Normalizer) SynthesizeAlert(m *Monitor) schema.Alert {
	detectedAt := time.Unix(m.LastDownAt, 0).UTC()
	if m.LastDownAt == 0 {
		detectedAt = time.Now().UTC()
	}

	severity := schema.SeverityHigh
	if m.Status == StatusSeemsDown {
		severity = schema.SeverityMedium
	}

	return schema.Alert{
		Source:     schema.SourceUptimeRobot,
		SourceID:   fmt.Sprintf("%d", m.ID),
		Title:      fmt.Sprintf("Monitor down: %s", m.FriendlyName),
		Severity:   severity,
		DetectedAt: detectedAt,
		// Monitor names follow "<hostname> - <service>" by MSP convention;
		// the raw name is the best hostname signal available.
		DeviceHostname: m.FriendlyName,
		VendorPayload:  m.Raw,
	}
}

// Source adapts the UptimeRobot client to the alert feed's source contract.
type Source struct {
	client     *Client
	normalizer *Normalizer
	configured bool
}

// NewSource creates a feed source backed by the UptimeRobot client.
func NewSource(client *Client, configured bool) *Source {
	return &Source{
		client:     client,
		normalizer: NewNormalizer(),
		configured: configured,
	}
}

// Name returns the vendor tag.
func (s *Source) Name() schema.Source { return schema.SourceUptimeRobot }

// Configured reports whether the integration has credentials.
func (s *Source) Configured() bool { return s.configured }

// Fetch polls all monitors and synthesizes alerts for the failing ones.
func (s *Source) Fetch(ctx context.Context) ([]schema.Alert, error) {
	monitors, err := s.client.ListMonitors(ctx)
	if err != nil {
		return nil, err
	}

	var alerts []schema.Alert
	for i := range monitors {
		if monitors[i].Down() {
			alerts = append(alerts, s.normalizer.SynthesizeAlert(&monitors[i]))
		}
	}
	return alerts, nil
}
