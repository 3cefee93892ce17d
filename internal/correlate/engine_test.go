package correlate

import (
	"testing"
	"time"

	"opsconsole/internal/schema"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func edrAlert(id, host string, at time.Time) schema.Alert {
	return schema.Alert{
		Source:         schema.SourceSentinelOne,
		SourceID:       id,
		Title:          "EDR detection",
		Severity:       schema.SeverityCritical,
		DeviceHostname: host,
		DetectedAt:     at,
	}
}

func mdrAlert(id, host string, at time.Time) schema.Alert {
	return schema.Alert{
		Source:         schema.SourceBlackpoint,
		SourceID:       id,
		Title:          "SOC alert",
		Severity:       schema.SeverityHigh,
		DeviceHostname: host,
		DetectedAt:     at,
	}
}

func TestCorrelate_MergesCorrelatablePair(t *testing.T) {
	engine := New(DefaultConfig())

	alerts := []schema.Alert{
		edrAlert("T1", "WS-01", t0),
		mdrAlert("B1", "WS-01", t0.Add(10*time.Minute)),
	}

	groups := engine.Correlate(alerts)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}

	g := groups[0]
	if g.Primary.Source != schema.SourceSentinelOne || g.Primary.SourceID != "T1" {
		t.Errorf("primary = %s/%s, want sentinelone/T1", g.Primary.Source, g.Primary.SourceID)
	}
	if len(g.Members) != 2 {
		t.Errorf("members = %d, want 2", len(g.Members))
	}
	if len(g.Primary.MergedSources) != 1 {
		t.Fatalf("merged sources = %d, want 1", len(g.Primary.MergedSources))
	}
	ms := g.Primary.MergedSources[0]
	if ms.Source != schema.SourceBlackpoint || ms.SourceID != "B1" {
		t.Errorf("merged source = %s/%s, want blackpoint/B1", ms.Source, ms.SourceID)
	}
	if ms.Label == "" {
		t.Error("merged source needs a human label")
	}
}

func TestCorrelate_DifferentHostsStayStandalone(t *testing.T) {
	engine := New(DefaultConfig())

	groups := engine.Correlate([]schema.Alert{
		edrAlert("T1", "WS-01", t0),
		mdrAlert("B1", "WS-02", t0.Add(10*time.Minute)),
	})

	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 standalone", len(groups))
	}
	for _, g := range groups {
		if len(g.Members) != 1 {
			t.Errorf("group %s has %d members, want 1", g.Primary.SourceID, len(g.Members))
		}
		if g.Primary.MergedSources != nil {
			t.Errorf("standalone group %s must not carry merged sources", g.Primary.SourceID)
		}
	}
}

func TestCorrelate_HostnameCaseInsensitive(t *testing.T) {
	engine := New(DefaultConfig())

	groups := engine.Correlate([]schema.Alert{
		edrAlert("T1", "ws-01", t0),
		mdrAlert("B1", "WS-01", t0.Add(time.Minute)),
	})

	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
}

func TestCorrelate_OrganizationFallbackWhenHostnameAbsent(t *testing.T) {
	engine := New(DefaultConfig())

	a := edrAlert("T1", "", t0)
	a.OrganizationName = "Acme Corp"
	b := mdrAlert("B1", "", t0.Add(time.Hour))
	b.OrganizationName = "acme corp"

	groups := engine.Correlate([]schema.Alert{a, b})
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1 via organization match", len(groups))
	}
}

func TestCorrelate_WindowBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = time.Hour
	engine := New(cfg)

	tests := []struct {
		name   string
		offset time.Duration
		groups int
	}{
		{"inside window", 59 * time.Minute, 1},
		{"exactly at window", time.Hour, 1},
		{"outside window", 61 * time.Minute, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := engine.Correlate([]schema.Alert{
				edrAlert("T1", "WS-01", t0),
				mdrAlert("B1", "WS-01", t0.Add(tt.offset)),
			})
			if len(groups) != tt.groups {
				t.Errorf("groups = %d, want %d", len(groups), tt.groups)
			}
		})
	}
}

func TestCorrelate_ConflictingRuleIDsBlockMerge(t *testing.T) {
	engine := New(DefaultConfig())

	a := edrAlert("T1", "WS-01", t0)
	a.RuleID = "Malware"
	b := mdrAlert("B1", "WS-01", t0.Add(time.Minute))
	b.RuleID = "Ransomware"

	groups := engine.Correlate([]schema.Alert{a, b})
	if len(groups) != 2 {
		t.Fatalf("distinct classifications must not merge, groups = %d", len(groups))
	}

	// Matching or one-sided classifications still merge.
	b.RuleID = "malware"
	groups = engine.Correlate([]schema.Alert{a, b})
	if len(groups) != 1 {
		t.Fatalf("matching classifications should merge, groups = %d", len(groups))
	}
	b.RuleID = ""
	groups = engine.Correlate([]schema.Alert{a, b})
	if len(groups) != 1 {
		t.Fatalf("one-sided classification should merge, groups = %d", len(groups))
	}
}

func TestCorrelate_NonCorrelatableVendorsNeverMerge(t *testing.T) {
	engine := New(DefaultConfig())

	uptime := schema.Alert{
		Source:         schema.SourceUptimeRobot,
		SourceID:       "778",
		Title:          "Monitor down",
		Severity:       schema.SeverityHigh,
		DeviceHostname: "WS-01",
		DetectedAt:     t0,
	}
	backup := schema.Alert{
		Source:         schema.SourceCove,
		SourceID:       "42",
		Title:          "Backup failed",
		Severity:       schema.SeverityHigh,
		DeviceHostname: "WS-01",
		DetectedAt:     t0.Add(time.Minute),
	}

	groups := engine.Correlate([]schema.Alert{uptime, backup})
	if len(groups) != 2 {
		t.Fatalf("undesignated vendor pair merged, groups = %d", len(groups))
	}
}

func TestCorrelate_TightestTimeMatchWins(t *testing.T) {
	engine := New(DefaultConfig())

	groups := engine.Correlate([]schema.Alert{
		edrAlert("T1", "WS-01", t0),
		edrAlert("T2", "WS-01", t0.Add(30*time.Minute)),
		mdrAlert("B1", "WS-01", t0.Add(25*time.Minute)),
	})

	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}

	for _, g := range groups {
		switch g.Primary.SourceID {
		case "T1":
			if len(g.Members) != 1 {
				t.Errorf("T1 should be standalone, members = %d", len(g.Members))
			}
		case "T2":
			if len(g.Members) != 2 {
				t.Errorf("B1 should attach to T2 (5m vs 25m), members = %d", len(g.Members))
			}
		default:
			t.Errorf("unexpected primary %s", g.Primary.SourceID)
		}
	}
}

func TestCorrelate_PartitionProperty(t *testing.T) {
	engine := New(DefaultConfig())

	alerts := []schema.Alert{
		edrAlert("T1", "WS-01", t0),
		edrAlert("T2", "WS-02", t0),
		mdrAlert("B1", "WS-01", t0.Add(10*time.Minute)),
		mdrAlert("B2", "WS-03", t0),
		{Source: schema.SourceUptimeRobot, SourceID: "1", Title: "down", Severity: schema.SeverityHigh, DeviceHostname: "WS-01", DetectedAt: t0},
	}

	groups := engine.Correlate(alerts)

	total := 0
	seen := make(map[string]bool)
	for _, g := range groups {
		total += len(g.Members)
		for _, m := range g.Members {
			key := string(m.Source) + "/" + m.SourceID
			if seen[key] {
				t.Errorf("alert %s appears in more than one group", key)
			}
			seen[key] = true
		}
	}
	if total != len(alerts) {
		t.Errorf("sum of members = %d, want %d", total, len(alerts))
	}
}

func TestCorrelate_OrderIndependent(t *testing.T) {
	engine := New(DefaultConfig())

	alerts := []schema.Alert{
		edrAlert("T1", "WS-01", t0),
		edrAlert("T2", "WS-01", t0.Add(30*time.Minute)),
		mdrAlert("B1", "WS-01", t0.Add(25*time.Minute)),
		mdrAlert("B2", "WS-02", t0),
	}
	reversed := []schema.Alert{alerts[3], alerts[2], alerts[1], alerts[0]}

	a := engine.Correlate(alerts)
	b := engine.Correlate(reversed)

	if len(a) != len(b) {
		t.Fatalf("group counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Primary.SourceID != b[i].Primary.SourceID {
			t.Errorf("group %d primary differs: %s vs %s", i, a[i].Primary.SourceID, b[i].Primary.SourceID)
		}
		if len(a[i].Members) != len(b[i].Members) {
			t.Errorf("group %d member counts differ", i)
		}
	}
}

func TestCorrelate_IdempotentOnFlattenedOutput(t *testing.T) {
	engine := New(DefaultConfig())

	alerts := []schema.Alert{
		edrAlert("T1", "WS-01", t0),
		mdrAlert("B1", "WS-01", t0.Add(10*time.Minute)),
		mdrAlert("B2", "WS-02", t0),
	}

	first := engine.Correlate(alerts)

	var flattened []schema.Alert
	for _, g := range first {
		flattened = append(flattened, g.Members...)
	}

	second := engine.Correlate(flattened)
	if len(second) != len(first) {
		t.Fatalf("regrouping changed group count: %d vs %d", len(second), len(first))
	}
	for i := range first {
		if first[i].Primary.ID() != second[i].Primary.ID() {
			t.Errorf("group %d primary changed on re-run", i)
		}
		if len(first[i].Members) != len(second[i].Members) {
			t.Errorf("group %d members changed on re-run", i)
		}
	}
}

func TestCorrelate_MembersNeverMutated(t *testing.T) {
	engine := New(DefaultConfig())

	alerts := []schema.Alert{
		edrAlert("T1", "WS-01", t0),
		mdrAlert("B1", "WS-01", t0.Add(10*time.Minute)),
	}

	groups := engine.Correlate(alerts)
	for _, m := range groups[0].Members {
		if m.MergedSources != nil {
			t.Error("member records must stay unannotated")
		}
	}
	if alerts[0].MergedSources != nil || alerts[1].MergedSources != nil {
		t.Error("input slice must not be mutated")
	}
}
