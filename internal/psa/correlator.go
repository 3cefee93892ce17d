package psa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"opsconsole/internal/errs"
	"opsconsole/internal/schema"
)

// maxSummaryRunes bounds the ticket summary for PSA field limits.
const maxSummaryRunes = 100

// TicketAPI is the slice of the PSA client the correlator needs.
type TicketAPI interface {
	FindCompanyByMapping(ctx context.Context, organizationSourceID string) (*Company, error)
	FindCompanyByHostname(ctx context.Context, hostname string) (*Company, error)
	SearchCompaniesByName(ctx context.Context, name string) ([]Company, error)
	ListTickets(ctx context.Context, companyID string) ([]TicketCandidate, error)
	CreateTicket(ctx context.Context, req TicketRequest) (*TicketCandidate, error)
}

// Query carries the device/organization context of an alert into company
// resolution. All fields are optional; an empty query yields no match.
type Query struct {
	Hostname             string
	OrganizationName     string
	ToolScopeID          string
	OrganizationSourceID string
}

// Match is the correlation result. A zero CompanyID means nothing
// correlated; that is an answer, not an error.
type Match struct {
	CompanyID   string
	CompanyName string
	Tickets     []TicketCandidate
}

// Matched reports whether a company was resolved.
func (m *Match) Matched() bool { return m.CompanyID != "" }

// Correlator resolves alerts to PSA companies and their tickets, and
// creates escalation tickets.
type Correlator struct {
	api          TicketAPI
	defaultBoard string
	maxSummary   int
	logger       *slog.Logger
}

// NewCorrelator creates a ticket correlator.
func NewCorrelator(api TicketAPI, defaultBoard string, logger *slog.Logger) *Correlator {
	return &Correlator{
		api:          api,
		defaultBoard: defaultBoard,
		maxSummary:   maxSummaryRunes,
		logger:       logger.With("component", "ticket_correlator"),
	}
}

// WithMaxSummary overrides the summary length cap.
func (c *Correlator) WithMaxSummary(n int) *Correlator {
	if n > 0 {
		c.maxSummary = n
	}
	return c
}

// FindRelated resolves the alert context to a company and lists that
// company's tickets. Resolution precedence: exact organization-source-id
// mapping, then hostname device lookup, then fuzzy organization name.
func (c *Correlator) FindRelated(ctx context.Context, q Query) (*Match, error) {
	company, err := c.resolveCompany(ctx, q)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return &Match{}, nil
	}

	tickets, err := c.api.ListTickets(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets for company %s: %w", company.ID, err)
	}

	c.logger.Debug("correlated alert context to company",
		"company_id", company.ID,
		"company_name", company.Name,
		"tickets", len(tickets))

	return &Match{
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Tickets:     tickets,
	}, nil
}

func (c *Correlator) resolveCompany(ctx context.Context, q Query) (*Company, error) {
	if q.OrganizationSourceID != "" {
		company, err := c.api.FindCompanyByMapping(ctx, q.OrganizationSourceID)
		if err != nil {
			return nil, fmt.Errorf("company mapping lookup failed: %w", err)
		}
		if company != nil {
			return company, nil
		}
	}

	if q.Hostname != "" {
		company, err := c.api.FindCompanyByHostname(ctx, q.Hostname)
		if err != nil {
			return nil, fmt.Errorf("company device lookup failed: %w", err)
		}
		if company != nil {
			return company, nil
		}
	}

	if q.OrganizationName != "" {
		companies, err := c.api.SearchCompaniesByName(ctx, q.OrganizationName)
		if err != nil {
			return nil, fmt.Errorf("company name search failed: %w", err)
		}
		if best := bestNameMatch(q.OrganizationName, companies); best != nil {
			return best, nil
		}
	}

	return nil, nil
}

// bestNameMatch picks the closest company by normalized name: exact match
// first, then a containment match in either direction.
func bestNameMatch(name string, companies []Company) *Company {
	want := normalizeName(name)
	if want == "" {
		return nil
	}

	var contained *Company
	for i := range companies {
		got := normalizeName(companies[i].Name)
		if got == want {
			return &companies[i]
		}
		if contained == nil && (strings.Contains(got, want) || strings.Contains(want, got)) {
			contained = &companies[i]
		}
	}
	return contained
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range []string{", inc.", ", inc", " inc.", " inc", " llc", " ltd", " corp.", " corp"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

// CreateTicket escalates an alert to a new PSA ticket for the resolved
// company. The caller is responsible for checking the alert's existing
// ticket link first; this method never deduplicates.
func (c *Correlator) CreateTicket(ctx context.Context, alert schema.Alert, companyID string) (*TicketCandidate, error) {
	if companyID == "" {
		return nil, errs.Validationf("ticket creation requires a resolved company")
	}

	ticket, err := c.api.CreateTicket(ctx, TicketRequest{
		CompanyID:   companyID,
		Summary:     summaryFor(alert, c.maxSummary),
		Description: ticketDescription(alert),
		Priority:    priorityFor(alert.Severity),
		Board:       c.defaultBoard,
	})
	if err != nil {
		return nil, fmt.Errorf("ticket creation failed: %w", err)
	}

	c.logger.Info("created escalation ticket",
		"ticket_id", ticket.SourceID,
		"company_id", companyID,
		"source", alert.Source,
		"source_id", alert.SourceID)

	return ticket, nil
}

// TicketSummary builds the deterministic ticket summary for an alert with
// the default length cap.
func TicketSummary(alert schema.Alert) string {
	return summaryFor(alert, maxSummaryRunes)
}

func summaryFor(alert schema.Alert, maxRunes int) string {
	summary := fmt.Sprintf("[%s] %s", alert.Source.ShortCode(), alert.Title)
	if utf8.RuneCountInString(summary) <= maxRunes {
		return summary
	}
	runes := []rune(summary)
	return string(runes[:maxRunes])
}

func ticketDescription(alert schema.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert escalated from the operations console.\n\n")
	fmt.Fprintf(&b, "Source: %s\n", alert.Source.Label())
	fmt.Fprintf(&b, "Source alert ID: %s\n", alert.SourceID)
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Detected at: %s\n", alert.DetectedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if alert.DeviceHostname != "" {
		fmt.Fprintf(&b, "Device: %s\n", alert.DeviceHostname)
	}
	if alert.OrganizationName != "" {
		fmt.Fprintf(&b, "Organization: %s\n", alert.OrganizationName)
	}
	if alert.RuleID != "" {
		fmt.Fprintf(&b, "Classification: %s\n", alert.RuleID)
	}
	return b.String()
}

// priorityFor maps canonical severity to the PSA priority vocabulary.
func priorityFor(sev schema.Severity) string {
	switch sev {
	case schema.SeverityCritical:
		return "Priority 1 - Critical"
	case schema.SeverityHigh:
		return "Priority 2 - High"
	case schema.SeverityMedium:
		return "Priority 3 - Medium"
	default:
		return "Priority 4 - Low"
	}
}
