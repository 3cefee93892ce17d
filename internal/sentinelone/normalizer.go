package sentinelone

import (
	"opsconsole/internal/schema"
)

// Normalizer converts SentinelOne threats to canonical alerts.
type Normalizer struct{}

// NewNormalizer creates a new normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeThreat converts a Threat to a canonical alert. The conversion is
// total: missing optional fields stay absent and unmapped values fall back
// to safe defaults, never an error.
func (n *Normalizer) NormalizeThreat(t *Threat) schema.Alert {
	title := t.ThreatName
	if title == "" {
		title = "SentinelOne threat"
	}

	return schema.Alert{
		Source:           schema.SourceSentinelOne,
		SourceID:         t.ID,
		Title:            title,
		Severity:         n.severityFor(t),
		DeviceHostname:   t.AgentHostname,
		OrganizationName: t.SiteName,
		DetectedAt:       t.CreatedAt,
		FileHash:         t.FileSHA256,
		RuleID:           t.Classification,
		VendorPayload:    t.Raw,
	}
}

// severityFor derives canonical severity. The risk score takes precedence
// when the vendor reports one; the confidence level table covers the rest.
func (n *Normalizer) severityFor(t *Threat) schema.Severity {
	if t.RiskScore > 0 {
		return schema.SeverityFromScore(t.RiskScore)
	}
	return mapConfidenceLevel(t.ConfidenceLevel)
}

// mapConfidenceLevel maps SentinelOne confidence levels to canonical
// severity. Values absent from the table map to medium.
func mapConfidenceLevel(level string) schema.Severity {
	switch level {
	case "malicious":
		return schema.SeverityCritical
	case "suspicious":
		return schema.SeverityHigh
	case "n/a":
		return schema.SeverityLow
	default:
		return schema.SeverityMedium
	}
}
