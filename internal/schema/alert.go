// Package schema defines the canonical alert model for the operations console.
// Every vendor adapter normalizes its native records to this structure before
// correlation or display.
package schema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Source identifies the vendor backend an alert originated from.
type Source string

const (
	SourceSentinelOne Source = "sentinelone"
	SourceBlackpoint  Source = "blackpoint"
	SourceUptimeRobot Source = "uptimerobot"
	SourceCove        Source = "cove"
	SourceDNSFilter   Source = "dnsfilter"
)

// KnownSource reports whether s is a recognized vendor tag.
func (s Source) KnownSource() bool {
	switch s {
	case SourceSentinelOne, SourceBlackpoint, SourceUptimeRobot, SourceCove, SourceDNSFilter:
		return true
	}
	return false
}

// ShortCode returns the short vendor code used in ticket summaries.
func (s Source) ShortCode() string {
	switch s {
	case SourceSentinelOne:
		return "S1"
	case SourceBlackpoint:
		return "BP"
	case SourceUptimeRobot:
		return "UR"
	case SourceCove:
		return "CV"
	case SourceDNSFilter:
		return "DNS"
	default:
		return strings.ToUpper(string(s))
	}
}

// Label returns the human name for the vendor, used for merged-source
// disambiguation in the UI.
func (s Source) Label() string {
	switch s {
	case SourceSentinelOne:
		return "SentinelOne"
	case SourceBlackpoint:
		return "Blackpoint SOC"
	case SourceUptimeRobot:
		return "UptimeRobot"
	case SourceCove:
		return "Cove Backup"
	case SourceDNSFilter:
		return "DNSFilter"
	default:
		return string(s)
	}
}

// Alert is the canonical, vendor-normalized alert record. It is immutable
// once constructed for a poll cycle; correlation only groups and annotates.
type Alert struct {
	Source   Source `json:"source" validate:"required"`
	SourceID string `json:"source_id" validate:"required"`

	Title    string   `json:"title" validate:"required,max=1024"`
	Severity Severity `json:"severity" validate:"required,oneof=critical high medium low informational"`

	DeviceHostname   string    `json:"device_hostname,omitempty" validate:"max=256"`
	OrganizationName string    `json:"organization_name,omitempty" validate:"max=256"`
	DetectedAt       time.Time `json:"detected_at" validate:"required"`
	FileHash         string    `json:"file_hash,omitempty" validate:"max=128"`

	// RuleID is the vendor's rule/classification identifier when one exists.
	// Two alerts with distinct non-empty RuleIDs are treated as different
	// incidents by the correlation engine.
	RuleID string `json:"rule_id,omitempty"`

	// VendorPayload is the untouched vendor record, retained for detail
	// rendering. The core never interprets it.
	VendorPayload json.RawMessage `json:"vendor_payload,omitempty"`

	// MergedSources is set only on the primary record of a merged group.
	MergedSources []MergedSource `json:"merged_sources,omitempty"`
}

// MergedSource identifies a non-primary member of a merged group.
type MergedSource struct {
	Source   Source `json:"source"`
	SourceID string `json:"source_id"`
	Label    string `json:"label"`
}

// ID returns the stable operator-facing identifier for the alert.
func (a *Alert) ID() string {
	return AlertID(a.Source, a.SourceID)
}

// AlertID derives the internal alert identifier from the vendor natural key.
// The derivation is deterministic so the same vendor record maps to the same
// id on every poll, and ids never collide across vendors.
func AlertID(source Source, sourceID string) string {
	sum := blake2b.Sum256([]byte(string(source) + "\x00" + sourceID))
	return hex.EncodeToString(sum[:12])
}

// SourceKey is the vendor natural key (source, sourceId).
type SourceKey struct {
	Source   Source `json:"source"`
	SourceID string `json:"source_id"`
}

// ID returns the derived alert id for the key.
func (k SourceKey) ID() string {
	return AlertID(k.Source, k.SourceID)
}

// Validate checks the key for use in write operations.
func (k SourceKey) Validate() error {
	if !k.Source.KnownSource() {
		return fmt.Errorf("unknown source %q", k.Source)
	}
	if k.SourceID == "" {
		return fmt.Errorf("empty source id")
	}
	return nil
}
