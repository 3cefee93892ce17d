// Package state holds the mutable, operator-authored side of an alert:
// ownership, closure and ticket linkage. It is keyed by the alert id derived
// from the vendor natural key and survives the vendor record aging out of
// the vendor's retention window. Absence of a row means open, unowned and
// unlinked.
package state

import (
	"context"
	"time"

	"opsconsole/internal/errs"
	"opsconsole/internal/schema"
)

// AlertState is the operator-authored record for one alert. Vendor data is
// never stored here; the two sides are joined at read time.
type AlertState struct {
	AlertID  string        `json:"alert_id"`
	Source   schema.Source `json:"source"`
	SourceID string        `json:"source_id"`

	Closed    bool       `json:"closed"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CloseNote string     `json:"close_note,omitempty"`
	ClosedBy  string     `json:"closed_by,omitempty"`

	Owner string `json:"owner,omitempty"`

	LinkedTicketID      string `json:"linked_ticket_id,omitempty"`
	LinkedTicketSummary string `json:"linked_ticket_summary,omitempty"`

	MatchedCompanyID   string `json:"matched_company_id,omitempty"`
	MatchedCompanyName string `json:"matched_company_name,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultState returns the explicit open/unowned/unlinked state used when no
// persisted row exists, so call sites never null-coalesce.
func DefaultState(key schema.SourceKey) *AlertState {
	return &AlertState{
		AlertID:  key.ID(),
		Source:   key.Source,
		SourceID: key.SourceID,
	}
}

// Store persists alert state. Writes are keyed by alert id with
// last-write-wins semantics; there is no cross-alert transaction. Batch
// operations validate every key before touching anything and never
// partially commit a malformed batch.
type Store interface {
	// Get returns the state for one alert, or the explicit default when no
	// row exists.
	Get(ctx context.Context, key schema.SourceKey) (*AlertState, error)

	// GetByID returns the state for an operator-facing alert id, or nil
	// when no row exists (the natural key is unknown in that case).
	GetByID(ctx context.Context, alertID string) (*AlertState, error)

	// GetBatch returns states keyed by alert id; keys with no row map to
	// the explicit default.
	GetBatch(ctx context.Context, keys []schema.SourceKey) (map[string]*AlertState, error)

	// TakeOwnership sets the owner for every alert in the batch. Last
	// writer wins when two actors race; both calls succeed.
	TakeOwnership(ctx context.Context, keys []schema.SourceKey, actor string) error

	// ReleaseOwnership clears the owner; a no-op for already unowned alerts.
	ReleaseOwnership(ctx context.Context, keys []schema.SourceKey) error

	// Close marks every alert in the batch closed with the given note.
	// The note must be non-empty.
	Close(ctx context.Context, keys []schema.SourceKey, actor, note string) error

	// Reopen clears the closure of a closed alert, preserving ownership.
	// Reopening an alert that has no closure record is a conflict.
	Reopen(ctx context.Context, key schema.SourceKey) error

	// LinkTicket records the linked ticket for every alert in the batch.
	LinkTicket(ctx context.Context, keys []schema.SourceKey, ticketID, summary string) error

	// SetCompanyMatch caches the ticket-correlation result for an alert.
	SetCompanyMatch(ctx context.Context, key schema.SourceKey, companyID, companyName string) error
}

// validateKeys rejects the whole batch before any write when a key is
// malformed.
func validateKeys(keys []schema.SourceKey) error {
	if len(keys) == 0 {
		return errs.Validationf("no alert ids supplied")
	}
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return errs.Validationf("invalid alert reference %s/%s: %v", key.Source, key.SourceID, err)
		}
		if !schema.ValidSourceID(key.SourceID) {
			return errs.Validationf("malformed source id %q", key.SourceID)
		}
	}
	return nil
}
