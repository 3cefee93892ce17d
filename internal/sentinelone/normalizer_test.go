package sentinelone

import (
	"encoding/json"
	"testing"
	"time"

	"opsconsole/internal/schema"
)

func TestNormalizeThreat_SeverityFromScore(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		expected schema.Severity
	}{
		{"score 85 critical", 85, schema.SeverityCritical},
		{"score 80 boundary critical", 80, schema.SeverityCritical},
		{"score 60 boundary high", 60, schema.SeverityHigh},
		{"score 45 medium", 45, schema.SeverityMedium},
		{"score 20 boundary low", 20, schema.SeverityLow},
		{"score 5 informational", 5, schema.SeverityInformational},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threat := &Threat{
				ID:        "T1",
				RiskScore: tt.score,
				CreatedAt: time.Now(),
			}
			alert := n.NormalizeThreat(threat)
			if alert.Severity != tt.expected {
				t.Errorf("severity = %s, want %s", alert.Severity, tt.expected)
			}
		})
	}
}

func TestNormalizeThreat_ConfidenceLevelTable(t *testing.T) {
	tests := []struct {
		level    string
		expected schema.Severity
	}{
		{"malicious", schema.SeverityCritical},
		{"suspicious", schema.SeverityHigh},
		{"n/a", schema.SeverityLow},
		{"", schema.SeverityMedium},
		{"something-new", schema.SeverityMedium},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			threat := &Threat{ID: "T1", ConfidenceLevel: tt.level}
			alert := n.NormalizeThreat(threat)
			if alert.Severity != tt.expected {
				t.Errorf("severity = %s, want %s", alert.Severity, tt.expected)
			}
			if !alert.Severity.IsValid() {
				t.Errorf("severity %s not in canonical set", alert.Severity)
			}
		})
	}
}

func TestNormalizeThreat_Fields(t *testing.T) {
	detected := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := json.RawMessage(`{"id":"T42","threatName":"Emotet"}`)

	threat := &Threat{
		ID:             "T42",
		ThreatName:     "Emotet",
		AgentHostname:  "WS-01",
		SiteName:       "Acme Corp",
		Classification: "Malware",
		RiskScore:      91,
		FileSHA256:     "abc123",
		CreatedAt:      detected,
		Raw:            raw,
	}

	alert := NewNormalizer().NormalizeThreat(threat)

	if alert.Source != schema.SourceSentinelOne {
		t.Errorf("source = %s", alert.Source)
	}
	if alert.SourceID != "T42" {
		t.Errorf("source id = %s", alert.SourceID)
	}
	if alert.Title != "Emotet" {
		t.Errorf("title = %s", alert.Title)
	}
	if alert.DeviceHostname != "WS-01" {
		t.Errorf("hostname = %s", alert.DeviceHostname)
	}
	if alert.OrganizationName != "Acme Corp" {
		t.Errorf("organization = %s", alert.OrganizationName)
	}
	if !alert.DetectedAt.Equal(detected) {
		t.Errorf("detected at = %v", alert.DetectedAt)
	}
	if alert.RuleID != "Malware" {
		t.Errorf("rule id = %s", alert.RuleID)
	}
	if string(alert.VendorPayload) != string(raw) {
		t.Errorf("vendor payload not preserved")
	}
}

func TestNormalizeThreat_MissingOptionalFields(t *testing.T) {
	threat := &Threat{ID: "T1"}
	alert := NewNormalizer().NormalizeThreat(threat)

	if alert.Title == "" {
		t.Error("title should have a fallback")
	}
	if alert.DeviceHostname != "" || alert.OrganizationName != "" || alert.FileHash != "" {
		t.Error("missing optional fields should stay empty")
	}
}
