package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"opsconsole/internal/correlate"
	"opsconsole/internal/errs"
	"opsconsole/internal/metrics"
	"opsconsole/internal/psa"
	"opsconsole/internal/schema"
	"opsconsole/internal/state"
	"opsconsole/internal/storage"
)

// SourceState is the health of one vendor integration in the feed.
type SourceState string

const (
	SourceOK           SourceState = "ok"
	SourceNotConnected SourceState = "not_connected"
	SourceError        SourceState = "error"
)

// SourceStatus reports one source's contribution to the current feed.
type SourceStatus struct {
	Source schema.Source `json:"source"`
	State  SourceState   `json:"state"`
	Alerts int           `json:"alerts"`
	Err    string        `json:"error,omitempty"`
}

// FeedAlert is one visible alert: the merged vendor record joined with its
// operator state.
type FeedAlert struct {
	Alert schema.Alert      `json:"alert"`
	State *state.AlertState `json:"state"`
}

// FeedResult is the unified feed for one read.
type FeedResult struct {
	Alerts  []FeedAlert    `json:"alerts"`
	Sources []SourceStatus `json:"sources"`
}

// Filter narrows the feed read.
type Filter struct {
	Sources       []schema.Source
	MinSeverity   schema.Severity
	IncludeClosed bool
}

// mitigationActions lists every dispatchable command per vendor. A vendor
// absent from the map supports no remote response.
var mitigationActions = map[schema.Source]map[string]bool{
	schema.SourceSentinelOne: {
		"kill": true, "quarantine": true, "remediate": true, "rollback": true,
		"isolate": true, "reconnect": true, "scan": true,
	},
}

// Options wires the facade's collaborators. Audit, Events, Tickets and
// Metrics are optional.
type Options struct {
	Sources      []Source
	Mitigators   map[schema.Source]Mitigator
	Engine       *correlate.Engine
	Store        state.Store
	Tickets      *psa.Correlator
	Cache        *Cache
	Audit        AuditSink
	Events       EventPublisher
	Metrics      *metrics.Metrics
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Facade is the single entry point the presentation layer talks to.
type Facade struct {
	sources      []Source
	mitigators   map[schema.Source]Mitigator
	engine       *correlate.Engine
	store        state.Store
	tickets      *psa.Correlator
	cache        *Cache
	audit        AuditSink
	events       EventPublisher
	metrics      *metrics.Metrics
	validator    *schema.Validator
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// New creates the alert feed facade.
func New(opts Options) *Facade {
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		sources:      opts.Sources,
		mitigators:   opts.Mitigators,
		engine:       opts.Engine,
		store:        opts.Store,
		tickets:      opts.Tickets,
		cache:        opts.Cache,
		audit:        opts.Audit,
		events:       opts.Events,
		metrics:      opts.Metrics,
		validator:    schema.NewValidator(),
		fetchTimeout: fetchTimeout,
		logger:       logger.With("component", "alert_feed"),
	}
}

// List returns the unified alert feed. One vendor failing degrades that
// source to zero alerts; the feed still renders from the rest.
func (f *Facade) List(ctx context.Context, filter Filter) (*FeedResult, error) {
	alerts, statuses := f.poll(ctx)

	groups := f.engine.Correlate(alerts)

	merged := 0
	keys := make([]schema.SourceKey, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, schema.SourceKey{Source: g.Primary.Source, SourceID: g.Primary.SourceID})
		if len(g.Members) > 1 {
			merged++
		}
	}
	if f.metrics != nil {
		f.metrics.MergedGroups.Set(float64(merged))
	}

	states := map[string]*state.AlertState{}
	if len(keys) > 0 {
		var err error
		states, err = f.store.GetBatch(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("state join failed: %w", err)
		}
	}

	result := &FeedResult{Sources: statuses}
	for _, g := range groups {
		st := states[g.Primary.ID()]
		if st == nil {
			st = state.DefaultState(schema.SourceKey{Source: g.Primary.Source, SourceID: g.Primary.SourceID})
		}
		fa := FeedAlert{Alert: g.Primary, State: st}
		if !visible(fa, filter) {
			continue
		}
		result.Alerts = append(result.Alerts, fa)
	}

	sort.SliceStable(result.Alerts, func(i, j int) bool {
		ri, rj := result.Alerts[i].Alert.Severity.Rank(), result.Alerts[j].Alert.Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return result.Alerts[i].Alert.DetectedAt.After(result.Alerts[j].Alert.DetectedAt)
	})

	return result, nil
}

// poll fetches every source concurrently, serving fresh cache entries
// without a network call.
func (f *Facade) poll(ctx context.Context) ([]schema.Alert, []SourceStatus) {
	type pollResult struct {
		alerts []schema.Alert
		status SourceStatus
	}

	results := make([]pollResult, len(f.sources))
	var wg sync.WaitGroup
	for i, src := range f.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i].alerts, results[i].status = f.pollOne(ctx, src)
		}(i, src)
	}
	wg.Wait()

	var alerts []schema.Alert
	statuses := make([]SourceStatus, 0, len(results))
	for _, r := range results {
		alerts = append(alerts, r.alerts...)
		statuses = append(statuses, r.status)
	}
	return alerts, statuses
}

func (f *Facade) pollOne(ctx context.Context, src Source) ([]schema.Alert, SourceStatus) {
	name := src.Name()
	status := SourceStatus{Source: name, State: SourceOK}

	if !src.Configured() {
		status.State = SourceNotConnected
		status.Err = (&errs.NotConfiguredError{Source: name}).Error()
		return nil, status
	}

	if cached, ok := f.cache.Get(name); ok {
		if f.metrics != nil {
			f.metrics.CacheHits.WithLabelValues(string(name), "hit").Inc()
		}
		status.Alerts = len(cached)
		return cached, status
	}
	if f.metrics != nil {
		f.metrics.CacheHits.WithLabelValues(string(name), "miss").Inc()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	start := time.Now()
	alerts, err := src.Fetch(fetchCtx)
	if f.metrics != nil {
		f.metrics.FetchDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		wrapped := &errs.VendorUnavailableError{Source: name, Err: err}
		f.logger.Warn("source fetch failed, feed degrades",
			"source", name,
			"error", err)
		if f.metrics != nil {
			f.metrics.FetchErrors.WithLabelValues(string(name)).Inc()
		}
		status.State = SourceError
		status.Err = wrapped.Error()
		return nil, status
	}

	// A vendor record the normalizer could not shape into a valid canonical
	// alert is dropped at the boundary, not propagated half-formed.
	valid := alerts[:0]
	for i := range alerts {
		if err := f.validator.ValidateAlert(&alerts[i]); err != nil {
			f.logger.Warn("dropping malformed alert",
				"source", name,
				"source_id", alerts[i].SourceID,
				"error", err)
			continue
		}
		valid = append(valid, alerts[i])
	}
	alerts = valid

	f.cache.Put(name, alerts)
	if f.metrics != nil {
		f.metrics.AlertsFetched.WithLabelValues(string(name)).Set(float64(len(alerts)))
	}
	status.Alerts = len(alerts)
	return alerts, status
}

func visible(fa FeedAlert, filter Filter) bool {
	if len(filter.Sources) > 0 {
		found := false
		for _, s := range filter.Sources {
			if fa.Alert.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.MinSeverity != "" && fa.Alert.Severity.Rank() < filter.MinSeverity.Rank() {
		return false
	}
	if !filter.IncludeClosed && fa.State.Closed {
		return false
	}
	return true
}

// TakeOwnership assigns every alert in the batch to the actor.
func (f *Facade) TakeOwnership(ctx context.Context, keys []schema.SourceKey, actor string) error {
	if err := f.store.TakeOwnership(ctx, keys, actor); err != nil {
		return err
	}
	f.recordAction(ctx, keys, "take_ownership", actor, "", "")
	return nil
}

// ReleaseOwnership unassigns every alert in the batch.
func (f *Facade) ReleaseOwnership(ctx context.Context, keys []schema.SourceKey, actor string) error {
	if err := f.store.ReleaseOwnership(ctx, keys); err != nil {
		return err
	}
	f.recordAction(ctx, keys, "release_ownership", actor, "", "")
	return nil
}

// Close closes every alert in the batch with the given note.
func (f *Facade) Close(ctx context.Context, keys []schema.SourceKey, actor, note string) error {
	if err := f.store.Close(ctx, keys, actor, note); err != nil {
		return err
	}
	f.recordAction(ctx, keys, "close", actor, note, "")
	return nil
}

// Reopen clears the closure of one alert.
func (f *Facade) Reopen(ctx context.Context, key schema.SourceKey, actor string) error {
	if err := f.store.Reopen(ctx, key); err != nil {
		return err
	}
	f.recordAction(ctx, []schema.SourceKey{key}, "reopen", actor, "", "")
	return nil
}

// LinkTicket attaches an existing ticket to every alert in the batch.
func (f *Facade) LinkTicket(ctx context.Context, keys []schema.SourceKey, ticketID, summary, actor string) error {
	if err := f.store.LinkTicket(ctx, keys, ticketID, summary); err != nil {
		return err
	}
	f.recordAction(ctx, keys, "link_ticket", actor, "", "ticket="+ticketID)
	return nil
}

// CreateAndLinkTicket escalates an alert group to a new PSA ticket. It
// refuses when any member already carries a ticket link; the operator links
// the existing ticket instead.
func (f *Facade) CreateAndLinkTicket(ctx context.Context, keys []schema.SourceKey, companyID, actor string) (*psa.TicketCandidate, error) {
	if f.tickets == nil {
		return nil, errs.Validationf("ticketing integration is not configured")
	}
	if len(keys) == 0 {
		return nil, errs.Validationf("no alert ids supplied")
	}

	states, err := f.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if st.LinkedTicketID != "" {
			return nil, errs.Conflictf("alert %s is already linked to ticket %s", st.AlertID, st.LinkedTicketID)
		}
	}

	alert, err := f.findAlert(ctx, keys[0])
	if err != nil {
		return nil, err
	}

	if companyID == "" {
		if st := states[keys[0].ID()]; st != nil {
			companyID = st.MatchedCompanyID
		}
	}

	ticket, err := f.tickets.CreateTicket(ctx, *alert, companyID)
	if err != nil {
		return nil, err
	}

	if err := f.store.LinkTicket(ctx, keys, ticket.SourceID, ticket.Summary); err != nil {
		return nil, fmt.Errorf("ticket %s created but linking failed: %w", ticket.SourceID, err)
	}

	f.recordAction(ctx, keys, "create_ticket", actor, "", "ticket="+ticket.SourceID)
	return ticket, nil
}

// TicketsFor resolves an alert's company and related tickets, caching the
// company match on the alert's state row.
func (f *Facade) TicketsFor(ctx context.Context, alertID string) (*psa.Match, error) {
	if f.tickets == nil {
		return nil, errs.Validationf("ticketing integration is not configured")
	}

	alert, err := f.findAlertByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	match, err := f.tickets.FindRelated(ctx, psa.Query{
		Hostname:         alert.DeviceHostname,
		OrganizationName: alert.OrganizationName,
	})
	if err != nil {
		return nil, err
	}

	if match.Matched() {
		key := schema.SourceKey{Source: alert.Source, SourceID: alert.SourceID}
		if err := f.store.SetCompanyMatch(ctx, key, match.CompanyID, match.CompanyName); err != nil {
			f.logger.Warn("failed to cache company match", "alert_id", alertID, "error", err)
		}
	}
	return match, nil
}

// DispatchMitigation forwards a mitigation or device command to the alert's
// vendor. The vendor's answer is surfaced verbatim; nothing is retried.
func (f *Facade) DispatchMitigation(ctx context.Context, key schema.SourceKey, action, actor string) error {
	if err := key.Validate(); err != nil {
		return errs.Validationf("invalid alert reference: %v", err)
	}

	legal := mitigationActions[key.Source]
	if !legal[action] {
		return errs.Validationf("action %q is not supported by %s", action, key.Source)
	}

	mitigator, ok := f.mitigators[key.Source]
	if !ok {
		return errs.Validationf("vendor %s has no mitigation dispatcher", key.Source)
	}

	if err := mitigator.Mitigate(ctx, key.SourceID, action); err != nil {
		if f.metrics != nil {
			f.metrics.OperatorActions.WithLabelValues("mitigate_"+action, "error").Inc()
		}
		return &errs.MitigationDispatchError{Source: key.Source, Action: action, Err: err}
	}

	// The vendor-side status changed; drop the stale snapshot so the next
	// read re-fetches.
	f.cache.Invalidate(key.Source)

	f.recordAction(ctx, []schema.SourceKey{key}, "mitigate_"+action, actor, "", "")
	f.logger.Info("mitigation dispatched",
		"source", key.Source,
		"source_id", key.SourceID,
		"action", action,
		"actor", actor)
	return nil
}

// findAlert locates an alert by its vendor natural key in the current feed.
func (f *Facade) findAlert(ctx context.Context, key schema.SourceKey) (*schema.Alert, error) {
	return f.findAlertByID(ctx, key.ID())
}

func (f *Facade) findAlertByID(ctx context.Context, alertID string) (*schema.Alert, error) {
	alerts, _ := f.poll(ctx)
	for i := range alerts {
		if alerts[i].ID() == alertID {
			return &alerts[i], nil
		}
	}
	return nil, errs.Validationf("alert %s is not visible in the current feed", alertID)
}

// recordAction writes the audit trail and publishes the action event. Both
// sinks are best-effort; failures never fail the operator's action.
func (f *Facade) recordAction(ctx context.Context, keys []schema.SourceKey, action, actor, note, detail string) {
	if f.metrics != nil {
		f.metrics.OperatorActions.WithLabelValues(action, "ok").Inc()
	}
	if f.audit == nil && f.events == nil {
		return
	}
	for _, key := range keys {
		rec := storage.NewActionRecord(key.ID(), action, actor, note, detail)
		if f.audit != nil {
			if err := f.audit.Record(ctx, rec); err != nil {
				f.logger.Warn("audit record failed", "action", action, "error", err)
			}
		}
		if f.events != nil {
			if err := f.events.Publish(ctx, rec); err != nil {
				f.logger.Warn("action publish failed", "action", action, "error", err)
			}
		}
	}
}
