// Package correlate groups canonical alerts that describe the same
// underlying incident across vendors. Correlation is pure and synchronous:
// it runs over one poll cycle's in-memory alert set and never mutates a
// member's own fields, only groups and annotates.
package correlate

import (
	"sort"
	"strings"
	"time"

	"opsconsole/internal/schema"
)

// Pair designates one correlatable vendor pair. Only designated pairs are
// candidates for merging; the lead vendor's alert becomes the primary
// record of a merged group.
type Pair struct {
	Lead    schema.Source
	Context schema.Source
}

// Config holds correlation policy. The window and the pair table are
// configuration, not hardcoded per call.
type Config struct {
	Window time.Duration
	Pairs  []Pair
}

// DefaultConfig returns the default correlation policy: EDR leads MDR
// context within a four hour window.
func DefaultConfig() Config {
	return Config{
		Window: 4 * time.Hour,
		Pairs: []Pair{
			{Lead: schema.SourceSentinelOne, Context: schema.SourceBlackpoint},
		},
	}
}

// Group is an ordered set of alerts judged to describe one incident.
// Primary carries the MergedSources annotation; Members holds every
// member's original, unannotated record.
type Group struct {
	Primary schema.Alert
	Members []schema.Alert
}

// Engine evaluates the correlation policy over a poll cycle's alerts.
type Engine struct {
	config Config
	// leadFor maps a context vendor to its lead vendor.
	leadFor map[schema.Source]schema.Source
}

// New creates a correlation engine for the given policy.
func New(cfg Config) *Engine {
	leadFor := make(map[schema.Source]schema.Source, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		leadFor[p.Context] = p.Lead
	}
	return &Engine{config: cfg, leadFor: leadFor}
}

// Correlate partitions the input into merge groups. Every input alert
// appears in exactly one group; groups of size 1 are standalone alerts.
// The result is deterministic and independent of input order.
func (e *Engine) Correlate(alerts []schema.Alert) []Group {
	// Work on a canonical ordering so the output does not depend on how
	// the caller assembled the slice. Incoming MergedSources annotations
	// are dropped: they are an output of this function, never an input.
	sorted := make([]schema.Alert, len(alerts))
	copy(sorted, alerts)
	for i := range sorted {
		sorted[i].MergedSources = nil
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Source != sorted[j].Source {
			return sorted[i].Source < sorted[j].Source
		}
		return sorted[i].SourceID < sorted[j].SourceID
	})

	// Group seeds: every alert that is not a context alert of some pair
	// starts its own group. Context alerts attach to the best lead match
	// or stand alone.
	var leads []schema.Alert
	var contexts []schema.Alert
	for _, a := range sorted {
		if _, ok := e.leadFor[a.Source]; ok {
			contexts = append(contexts, a)
		} else {
			leads = append(leads, a)
		}
	}

	attached := make(map[int][]schema.Alert) // lead index -> context members
	var standalone []schema.Alert

	for _, ctx := range contexts {
		best := -1
		var bestDelta time.Duration
		for i, lead := range leads {
			if lead.Source != e.leadFor[ctx.Source] {
				continue
			}
			if !e.mergeable(lead, ctx) {
				continue
			}
			delta := absDuration(lead.DetectedAt.Sub(ctx.DetectedAt))
			// An alert merges into at most one group: the tightest time
			// match wins. Ties break toward the earlier lead record.
			if best == -1 || delta < bestDelta ||
				(delta == bestDelta && lead.DetectedAt.Before(leads[best].DetectedAt)) {
				best = i
				bestDelta = delta
			}
		}
		if best == -1 {
			standalone = append(standalone, ctx)
		} else {
			attached[best] = append(attached[best], ctx)
		}
	}

	groups := make([]Group, 0, len(leads)+len(standalone))
	for i, lead := range leads {
		groups = append(groups, buildGroup(lead, attached[i]))
	}
	for _, a := range standalone {
		groups = append(groups, buildGroup(a, nil))
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Primary.Source != groups[j].Primary.Source {
			return groups[i].Primary.Source < groups[j].Primary.Source
		}
		return groups[i].Primary.SourceID < groups[j].Primary.SourceID
	})

	return groups
}

// mergeable checks whether two alerts from a correlatable pair describe the
// same incident.
func (e *Engine) mergeable(lead, ctx schema.Alert) bool {
	if !sameSubject(lead, ctx) {
		return false
	}

	if absDuration(lead.DetectedAt.Sub(ctx.DetectedAt)) > e.config.Window {
		return false
	}

	// Distinct classification identifiers, when both vendors report one,
	// are an explicit "different incident" signal.
	if lead.RuleID != "" && ctx.RuleID != "" && !strings.EqualFold(lead.RuleID, ctx.RuleID) {
		return false
	}

	return true
}

// sameSubject matches on hostname case-insensitively, falling back to the
// organization name when the hostname is absent on either side.
func sameSubject(a, b schema.Alert) bool {
	if a.DeviceHostname != "" && b.DeviceHostname != "" {
		return strings.EqualFold(a.DeviceHostname, b.DeviceHostname)
	}
	if a.OrganizationName != "" && b.OrganizationName != "" {
		return strings.EqualFold(a.OrganizationName, b.OrganizationName)
	}
	return false
}

// buildGroup assembles a group around its primary, annotating a copy of the
// primary with the non-primary members.
func buildGroup(primary schema.Alert, others []schema.Alert) Group {
	members := make([]schema.Alert, 0, 1+len(others))
	members = append(members, primary)
	members = append(members, others...)

	annotated := primary
	if len(others) > 0 {
		sort.Slice(others, func(i, j int) bool {
			if !others[i].DetectedAt.Equal(others[j].DetectedAt) {
				return others[i].DetectedAt.Before(others[j].DetectedAt)
			}
			return others[i].SourceID < others[j].SourceID
		})
		merged := make([]schema.MergedSource, 0, len(others))
		for _, o := range others {
			merged = append(merged, schema.MergedSource{
				Source:   o.Source,
				SourceID: o.SourceID,
				Label:    o.Source.Label(),
			})
		}
		annotated.MergedSources = merged
	}

	return Group{Primary: annotated, Members: members}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
