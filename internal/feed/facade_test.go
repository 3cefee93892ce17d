package feed

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"opsconsole/internal/correlate"
	"opsconsole/internal/errs"
	"opsconsole/internal/psa"
	"opsconsole/internal/schema"
	"opsconsole/internal/state"
	"opsconsole/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	name       schema.Source
	configured bool
	alerts     []schema.Alert
	err        error
	fetches    int
}

func (s *fakeSource) Name() schema.Source { return s.name }
func (s *fakeSource) Configured() bool    { return s.configured }
func (s *fakeSource) Fetch(context.Context) ([]schema.Alert, error) {
	s.fetches++
	return s.alerts, s.err
}

type fakeMitigator struct {
	calls []string
	err   error
}

func (m *fakeMitigator) Mitigate(_ context.Context, sourceID, action string) error {
	m.calls = append(m.calls, sourceID+":"+action)
	return m.err
}

type fakeAudit struct {
	records []storage.ActionRecord
}

func (a *fakeAudit) Record(_ context.Context, rec storage.ActionRecord) error {
	a.records = append(a.records, rec)
	return nil
}

func edr(id, host string, at time.Time) schema.Alert {
	return schema.Alert{
		Source:         schema.SourceSentinelOne,
		SourceID:       id,
		Title:          "EDR detection",
		Severity:       schema.SeverityCritical,
		DeviceHostname: host,
		DetectedAt:     at,
	}
}

func newFacade(t *testing.T, opts Options) *Facade {
	t.Helper()
	if opts.Engine == nil {
		opts.Engine = correlate.New(correlate.DefaultConfig())
	}
	if opts.Store == nil {
		opts.Store = state.NewMemoryStore()
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(time.Minute, nil)
	}
	opts.Logger = slog.New(slog.DiscardHandler)
	return New(opts)
}

func TestList_DegradedSourceStillRendersFeed(t *testing.T) {
	healthy := &fakeSource{
		name:       schema.SourceSentinelOne,
		configured: true,
		alerts:     []schema.Alert{edr("T1", "WS-01", t0)},
	}
	broken := &fakeSource{
		name:       schema.SourceUptimeRobot,
		configured: true,
		err:        errors.New("api timeout"),
	}
	unconfigured := &fakeSource{name: schema.SourceCove}

	f := newFacade(t, Options{Sources: []Source{healthy, broken, unconfigured}})

	result, err := f.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(result.Alerts) != 1 || result.Alerts[0].Alert.SourceID != "T1" {
		t.Errorf("feed must render the healthy source, got %+v", result.Alerts)
	}

	stateOf := map[schema.Source]SourceState{}
	for _, s := range result.Sources {
		stateOf[s.Source] = s.State
	}
	if stateOf[schema.SourceSentinelOne] != SourceOK {
		t.Errorf("sentinelone state = %s, want ok", stateOf[schema.SourceSentinelOne])
	}
	if stateOf[schema.SourceUptimeRobot] != SourceError {
		t.Errorf("uptimerobot state = %s, want error", stateOf[schema.SourceUptimeRobot])
	}
	if stateOf[schema.SourceCove] != SourceNotConnected {
		t.Errorf("cove state = %s, want not_connected", stateOf[schema.SourceCove])
	}
}

func TestList_JoinsDefaultStateAndHidesClosed(t *testing.T) {
	src := &fakeSource{
		name:       schema.SourceSentinelOne,
		configured: true,
		alerts:     []schema.Alert{edr("T1", "WS-01", t0), edr("T2", "WS-02", t0)},
	}
	store := state.NewMemoryStore()
	f := newFacade(t, Options{Sources: []Source{src}, Store: store})
	ctx := context.Background()

	k1 := schema.SourceKey{Source: schema.SourceSentinelOne, SourceID: "T1"}
	if err := store.Close(ctx, []schema.SourceKey{k1}, "alice", "handled"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err := f.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Alerts) != 1 || result.Alerts[0].Alert.SourceID != "T2" {
		t.Fatalf("closed alerts must be hidden by default, got %+v", result.Alerts)
	}
	if result.Alerts[0].State.Closed || result.Alerts[0].State.Owner != "" {
		t.Error("unstated alert must join the default open/unowned state")
	}

	result, err = f.List(ctx, Filter{IncludeClosed: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Alerts) != 2 {
		t.Errorf("IncludeClosed must show both, got %d", len(result.Alerts))
	}
}

func TestList_ServesFromCacheWithinTTL(t *testing.T) {
	src := &fakeSource{
		name:       schema.SourceSentinelOne,
		configured: true,
		alerts:     []schema.Alert{edr("T1", "WS-01", t0)},
	}
	f := newFacade(t, Options{Sources: []Source{src}})
	ctx := context.Background()

	if _, err := f.List(ctx, Filter{}); err != nil {
		t.Fatalf("first List: %v", err)
	}
	if _, err := f.List(ctx, Filter{}); err != nil {
		t.Fatalf("second List: %v", err)
	}
	if src.fetches != 1 {
		t.Errorf("fetches = %d, want 1 (second read served from cache)", src.fetches)
	}
}

func TestDispatchMitigation_InvalidatesCache(t *testing.T) {
	src := &fakeSource{
		name:       schema.SourceSentinelOne,
		configured: true,
		alerts:     []schema.Alert{edr("T1", "WS-01", t0)},
	}
	mit := &fakeMitigator{}
	f := newFacade(t, Options{
		Sources:    []Source{src},
		Mitigators: map[schema.Source]Mitigator{schema.SourceSentinelOne: mit},
	})
	ctx := context.Background()

	if _, err := f.List(ctx, Filter{}); err != nil {
		t.Fatalf("List: %v", err)
	}

	key := schema.SourceKey{Source: schema.SourceSentinelOne, SourceID: "T1"}
	if err := f.DispatchMitigation(ctx, key, "quarantine", "alice"); err != nil {
		t.Fatalf("DispatchMitigation: %v", err)
	}
	if len(mit.calls) != 1 || mit.calls[0] != "T1:quarantine" {
		t.Errorf("dispatch calls = %v", mit.calls)
	}

	if _, err := f.List(ctx, Filter{}); err != nil {
		t.Fatalf("List after dispatch: %v", err)
	}
	if src.fetches != 2 {
		t.Errorf("fetches = %d, want 2 (dispatch must invalidate the cache)", src.fetches)
	}
}

func TestDispatchMitigation_IllegalActionRejected(t *testing.T) {
	mit := &fakeMitigator{}
	f := newFacade(t, Options{
		Mitigators: map[schema.Source]Mitigator{schema.SourceSentinelOne: mit},
	})

	key := schema.SourceKey{Source: schema.SourceUptimeRobot, SourceID: "778"}
	err := f.DispatchMitigation(context.Background(), key, "quarantine", "alice")
	if !errs.IsValidation(err) {
		t.Fatalf("uptime monitors cannot be quarantined, got %v", err)
	}
	if len(mit.calls) != 0 {
		t.Error("rejected action must not reach any vendor")
	}
}

func TestDispatchMitigation_VendorErrorSurfacedVerbatim(t *testing.T) {
	vendorErr := errors.New("threat already mitigated")
	mit := &fakeMitigator{err: vendorErr}
	f := newFacade(t, Options{
		Mitigators: map[schema.Source]Mitigator{schema.SourceSentinelOne: mit},
	})

	key := schema.SourceKey{Source: schema.SourceSentinelOne, SourceID: "T1"}
	err := f.DispatchMitigation(context.Background(), key, "kill", "alice")
	if !errs.IsMitigationDispatch(err) {
		t.Fatalf("want MitigationDispatchError, got %v", err)
	}
	if !errors.Is(err, vendorErr) {
		t.Error("vendor error must be preserved verbatim in the chain")
	}
}

type stubTicketAPI struct {
	created []psa.TicketRequest
}

func (s *stubTicketAPI) FindCompanyByMapping(context.Context, string) (*psa.Company, error) {
	return nil, nil
}
func (s *stubTicketAPI) FindCompanyByHostname(context.Context, string) (*psa.Company, error) {
	return &psa.Company{ID: "19", Name: "Acme Corp"}, nil
}
func (s *stubTicketAPI) SearchCompaniesByName(context.Context, string) ([]psa.Company, error) {
	return nil, nil
}
func (s *stubTicketAPI) ListTickets(context.Context, string) ([]psa.TicketCandidate, error) {
	return nil, nil
}
func (s *stubTicketAPI) CreateTicket(_ context.Context, req psa.TicketRequest) (*psa.TicketCandidate, error) {
	s.created = append(s.created, req)
	return &psa.TicketCandidate{SourceID: "TKT-77", Summary: req.Summary}, nil
}

func TestCreateAndLinkTicket_LinksEveryMember(t *testing.T) {
	src := &fakeSource{
		name:       schema.SourceSentinelOne,
		configured: true,
		alerts:     []schema.Alert{edr("T1", "WS-01", t0)},
	}
	api := &stubTicketAPI{}
	store := state.NewMemoryStore()
	audit := &fakeAudit{}
	f := newFacade(t, Options{
		Sources: []Source{src},
		Store:   store,
		Tickets: psa.NewCorrelator(api, "", slog.New(slog.DiscardHandler)),
		Audit:   audit,
	})
	ctx := context.Background()

	keys := []schema.SourceKey{{Source: schema.SourceSentinelOne, SourceID: "T1"}}
	ticket, err := f.CreateAndLinkTicket(ctx, keys, "19", "alice")
	if err != nil {
		t.Fatalf("CreateAndLinkTicket: %v", err)
	}
	if ticket.SourceID != "TKT-77" {
		t.Errorf("ticket = %+v", ticket)
	}

	st, _ := store.Get(ctx, keys[0])
	if st.LinkedTicketID != "TKT-77" {
		t.Errorf("ticket link not persisted: %+v", st)
	}
	if len(audit.records) != 1 || audit.records[0].Action != "create_ticket" {
		t.Errorf("audit records = %+v", audit.records)
	}
}

func TestCreateAndLinkTicket_RefusesWhenAlreadyLinked(t *testing.T) {
	src := &fakeSource{
		name:       schema.SourceSentinelOne,
		configured: true,
		alerts:     []schema.Alert{edr("T1", "WS-01", t0)},
	}
	api := &stubTicketAPI{}
	store := state.NewMemoryStore()
	f := newFacade(t, Options{
		Sources: []Source{src},
		Store:   store,
		Tickets: psa.NewCorrelator(api, "", slog.New(slog.DiscardHandler)),
	})
	ctx := context.Background()

	keys := []schema.SourceKey{{Source: schema.SourceSentinelOne, SourceID: "T1"}}
	if err := store.LinkTicket(ctx, keys, "TKT-1", "existing"); err != nil {
		t.Fatalf("LinkTicket: %v", err)
	}

	_, err := f.CreateAndLinkTicket(ctx, keys, "19", "alice")
	if !errs.IsConflict(err) {
		t.Fatalf("second escalation must refuse, got %v", err)
	}
	if len(api.created) != 0 {
		t.Error("refused escalation must not create a ticket")
	}
}

func TestWriteOps_RecordAuditTrail(t *testing.T) {
	audit := &fakeAudit{}
	f := newFacade(t, Options{Audit: audit})
	ctx := context.Background()

	keys := []schema.SourceKey{
		{Source: schema.SourceSentinelOne, SourceID: "T1"},
		{Source: schema.SourceBlackpoint, SourceID: "B1"},
	}
	if err := f.TakeOwnership(ctx, keys, "alice"); err != nil {
		t.Fatalf("TakeOwnership: %v", err)
	}
	if err := f.Close(ctx, keys, "alice", "bulk closed"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(audit.records) != 4 {
		t.Fatalf("audit records = %d, want one per alert per action", len(audit.records))
	}
	if audit.records[2].Action != "close" || audit.records[2].Note != "bulk closed" {
		t.Errorf("close record = %+v", audit.records[2])
	}
}
