// Package feed assembles the unified operator-facing alert feed: it polls
// the vendor sources, correlates the results, joins in operator state and
// carries out operator actions.
package feed

import (
	"context"

	"opsconsole/internal/schema"
	"opsconsole/internal/storage"
)

// Source is a vendor integration that contributes normalized alerts to the
// feed. Vendor packages implement this over their own clients.
type Source interface {
	// Name returns the vendor tag.
	Name() schema.Source

	// Configured reports whether the integration has credentials. An
	// unconfigured source shows as "not connected", which is not an error.
	Configured() bool

	// Fetch retrieves the vendor's current alerts, normalized.
	Fetch(ctx context.Context) ([]schema.Alert, error)
}

// Mitigator dispatches mitigation and device commands to a vendor. Only
// vendors that support remote response implement it.
type Mitigator interface {
	Mitigate(ctx context.Context, sourceID, action string) error
}

// AuditSink records operator actions to the audit trail.
type AuditSink interface {
	Record(ctx context.Context, rec storage.ActionRecord) error
}

// EventPublisher broadcasts operator actions to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, rec storage.ActionRecord) error
}
