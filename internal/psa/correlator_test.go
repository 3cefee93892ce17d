package psa

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"opsconsole/internal/errs"
	"opsconsole/internal/schema"
)

type fakeAPI struct {
	mappings  map[string]Company // organizationSourceId -> company
	devices   map[string]Company // hostname -> company
	companies []Company
	tickets   map[string][]TicketCandidate

	created []TicketRequest
}

func (f *fakeAPI) FindCompanyByMapping(_ context.Context, id string) (*Company, error) {
	if c, ok := f.mappings[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeAPI) FindCompanyByHostname(_ context.Context, hostname string) (*Company, error) {
	if c, ok := f.devices[hostname]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeAPI) SearchCompaniesByName(_ context.Context, name string) ([]Company, error) {
	var out []Company
	for _, c := range f.companies {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(name)) ||
			strings.Contains(strings.ToLower(name), strings.ToLower(c.Name)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeAPI) ListTickets(_ context.Context, companyID string) ([]TicketCandidate, error) {
	return f.tickets[companyID], nil
}

func (f *fakeAPI) CreateTicket(_ context.Context, req TicketRequest) (*TicketCandidate, error) {
	f.created = append(f.created, req)
	return &TicketCandidate{SourceID: "TKT-9000", Summary: req.Summary, Status: "New", Priority: req.Priority}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFindRelated_MappingTakesPrecedence(t *testing.T) {
	api := &fakeAPI{
		mappings: map[string]Company{"org-77": {ID: "1", Name: "Mapped Co"}},
		devices:  map[string]Company{"WS-01": {ID: "2", Name: "Device Co"}},
		tickets:  map[string][]TicketCandidate{"1": {{SourceID: "TKT-1", Summary: "existing"}}},
	}
	c := NewCorrelator(api, "", testLogger())

	m, err := c.FindRelated(context.Background(), Query{
		Hostname:             "WS-01",
		OrganizationSourceID: "org-77",
	})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if m.CompanyID != "1" {
		t.Errorf("company = %s, want the mapped company 1", m.CompanyID)
	}
	if len(m.Tickets) != 1 || m.Tickets[0].SourceID != "TKT-1" {
		t.Errorf("tickets = %+v, want the mapped company's tickets", m.Tickets)
	}
}

func TestFindRelated_HostnameFallback(t *testing.T) {
	api := &fakeAPI{
		devices: map[string]Company{"WS-01": {ID: "2", Name: "Device Co"}},
	}
	c := NewCorrelator(api, "", testLogger())

	m, err := c.FindRelated(context.Background(), Query{
		Hostname:             "WS-01",
		OrganizationSourceID: "unmapped",
	})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if m.CompanyID != "2" {
		t.Errorf("company = %s, want device lookup fallback 2", m.CompanyID)
	}
}

func TestFindRelated_FuzzyNameIsLastResort(t *testing.T) {
	api := &fakeAPI{
		companies: []Company{
			{ID: "3", Name: "Acme Corp"},
			{ID: "4", Name: "Zenith LLC"},
		},
	}
	c := NewCorrelator(api, "", testLogger())

	m, err := c.FindRelated(context.Background(), Query{OrganizationName: "acme corp"})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if m.CompanyID != "3" {
		t.Errorf("company = %s, want fuzzy name match 3", m.CompanyID)
	}
}

func TestFindRelated_NoMatchIsNotAnError(t *testing.T) {
	c := NewCorrelator(&fakeAPI{}, "", testLogger())

	m, err := c.FindRelated(context.Background(), Query{
		Hostname:         "unknown-host",
		OrganizationName: "Unknown Org",
	})
	if err != nil {
		t.Fatalf("no match must not error: %v", err)
	}
	if m.Matched() {
		t.Errorf("match = %+v, want explicit no-match", m)
	}
	if len(m.Tickets) != 0 {
		t.Error("no-match result must carry no tickets")
	}
}

func TestCreateTicket_RequiresResolvedCompany(t *testing.T) {
	api := &fakeAPI{}
	c := NewCorrelator(api, "", testLogger())

	alert := schema.Alert{Source: schema.SourceSentinelOne, SourceID: "T1", Title: "Malware detected"}
	_, err := c.CreateTicket(context.Background(), alert, "")
	if !errs.IsValidation(err) {
		t.Fatalf("create without a company should fail validation, got %v", err)
	}
	if len(api.created) != 0 {
		t.Error("rejected create must not write to the ticketing system")
	}
}

func TestCreateTicket_BuildsDeterministicFields(t *testing.T) {
	api := &fakeAPI{}
	c := NewCorrelator(api, "Security", testLogger())

	alert := schema.Alert{
		Source:         schema.SourceSentinelOne,
		SourceID:       "T1",
		Title:          "Malware detected on endpoint",
		Severity:       schema.SeverityCritical,
		DeviceHostname: "WS-01",
		DetectedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	ticket, err := c.CreateTicket(context.Background(), alert, "19")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.SourceID == "" {
		t.Error("created ticket needs an id")
	}

	req := api.created[0]
	if req.Summary != "[S1] Malware detected on endpoint" {
		t.Errorf("summary = %q", req.Summary)
	}
	if req.Priority != "Priority 1 - Critical" {
		t.Errorf("priority = %q", req.Priority)
	}
	if req.Board != "Security" {
		t.Errorf("board = %q", req.Board)
	}
	for _, want := range []string{"WS-01", "critical", "T1"} {
		if !strings.Contains(req.Description, want) {
			t.Errorf("description missing %q:\n%s", want, req.Description)
		}
	}
}

func TestTicketSummary_TruncatesLongTitles(t *testing.T) {
	alert := schema.Alert{
		Source: schema.SourceBlackpoint,
		Title:  strings.Repeat("suspicious activity ", 20),
	}
	got := TicketSummary(alert)
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Errorf("summary length = %d runes, want exactly 100", n)
	}
	if !strings.HasPrefix(got, "[BP] ") {
		t.Errorf("summary must keep the vendor short code prefix, got %q", got)
	}
}
