package schema

// Severity is the canonical five-value severity scale shared by every vendor.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
)

// Rank returns the severity's position in the canonical total order.
// Higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInformational:
		return 0
	}
	return -1
}

// IsValid checks if the severity is a valid canonical value.
func (s Severity) IsValid() bool {
	return s.Rank() >= 0
}

// ParseSeverity maps a vendor severity string to the canonical scale.
// Unrecognized values map to medium so they are never silently dropped.
func ParseSeverity(v string) Severity {
	switch Severity(v) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational:
		return Severity(v)
	}
	return SeverityMedium
}

// SeverityFromScore converts a 0-100 risk score to the canonical scale.
// This is the single thresholding function used everywhere a scoring
// vendor's data is surfaced, so list, detail and aggregate counts agree.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 80:
		return SeverityCritical
	case score >= 60:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	case score >= 20:
		return SeverityLow
	default:
		return SeverityInformational
	}
}
