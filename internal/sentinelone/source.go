package sentinelone

import (
	"context"
	"fmt"

	"opsconsole/internal/schema"
)

// Source adapts the SentinelOne client to the alert feed's source contract.
type Source struct {
	client     *Client
	normalizer *Normalizer
	configured bool
	batchSize  int
}

// NewSource creates a feed source backed by the SentinelOne client.
// configured=false marks the integration as "not connected".
func NewSource(client *Client, configured bool) *Source {
	return &Source{
		client:     client,
		normalizer: NewNormalizer(),
		configured: configured,
		batchSize:  200,
	}
}

// Name returns the vendor tag.
func (s *Source) Name() schema.Source { return schema.SourceSentinelOne }

// Configured reports whether the integration has credentials.
func (s *Source) Configured() bool { return s.configured }

// Fetch retrieves and normalizes the current unresolved threats.
func (s *Source) Fetch(ctx context.Context) ([]schema.Alert, error) {
	threats, err := s.client.ListThreats(ctx, s.batchSize)
	if err != nil {
		return nil, err
	}

	alerts := make([]schema.Alert, 0, len(threats))
	for i := range threats {
		alerts = append(alerts, s.normalizer.NormalizeThreat(&threats[i]))
	}
	return alerts, nil
}

// Mitigate forwards a mitigation or device command for a threat. Threat
// actions go straight to the threat endpoint; device actions need the
// owning agent, resolved from the threat record.
func (s *Source) Mitigate(ctx context.Context, sourceID, action string) error {
	switch action {
	case "kill", "quarantine", "remediate", "rollback":
		return s.client.MitigateThreat(ctx, sourceID, action)
	case "isolate", "reconnect", "scan":
		threat, err := s.client.GetThreat(ctx, sourceID)
		if err != nil {
			return err
		}
		switch action {
		case "isolate":
			return s.client.IsolateDevice(ctx, threat.AgentID)
		case "reconnect":
			return s.client.ReconnectDevice(ctx, threat.AgentID)
		default:
			return s.client.TriggerScan(ctx, threat.AgentID)
		}
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}
