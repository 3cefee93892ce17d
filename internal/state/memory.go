package state

import (
	"context"
	"sync"
	"time"

	"opsconsole/internal/errs"
	"opsconsole/internal/schema"
)

// MemoryStore is an in-memory Store used for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*AlertState // keyed by alert id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*AlertState),
	}
}

// Get returns the state for one alert, or the explicit default.
func (s *MemoryStore) Get(_ context.Context, key schema.SourceKey) (*AlertState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.states[key.ID()]; ok {
		copied := *st
		return &copied, nil
	}
	return DefaultState(key), nil
}

// GetByID returns the state for an operator-facing alert id, nil when no
// row exists.
func (s *MemoryStore) GetByID(_ context.Context, alertID string) (*AlertState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.states[alertID]; ok {
		copied := *st
		return &copied, nil
	}
	return nil, nil
}

// GetBatch returns states keyed by alert id.
func (s *MemoryStore) GetBatch(_ context.Context, keys []schema.SourceKey) (map[string]*AlertState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*AlertState, len(keys))
	for _, key := range keys {
		id := key.ID()
		if st, ok := s.states[id]; ok {
			copied := *st
			out[id] = &copied
		} else {
			out[id] = DefaultState(key)
		}
	}
	return out, nil
}

// TakeOwnership sets the owner for every alert in the batch.
func (s *MemoryStore) TakeOwnership(_ context.Context, keys []schema.SourceKey, actor string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if actor == "" {
		return errs.Validationf("ownership requires an actor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, key := range keys {
		st := s.upsertLocked(key)
		st.Owner = actor
		st.UpdatedAt = now
	}
	return nil
}

// ReleaseOwnership clears the owner; no-op for unowned alerts.
func (s *MemoryStore) ReleaseOwnership(_ context.Context, keys []schema.SourceKey) error {
	if err := validateKeys(keys); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, key := range keys {
		if st, ok := s.states[key.ID()]; ok && st.Owner != "" {
			st.Owner = ""
			st.UpdatedAt = now
		}
	}
	return nil
}

// Close marks every alert in the batch closed.
func (s *MemoryStore) Close(_ context.Context, keys []schema.SourceKey, actor, note string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if note == "" {
		return errs.Validationf("close requires a note")
	}
	if actor == "" {
		return errs.Validationf("close requires an actor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, key := range keys {
		st := s.upsertLocked(key)
		st.Closed = true
		st.ClosedAt = &now
		st.CloseNote = note
		st.ClosedBy = actor
		st.UpdatedAt = now
	}
	return nil
}

// Reopen clears the closure of a closed alert, preserving ownership.
func (s *MemoryStore) Reopen(_ context.Context, key schema.SourceKey) error {
	if err := validateKeys([]schema.SourceKey{key}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key.ID()]
	if !ok || !st.Closed {
		return errs.Conflictf("alert %s has no closure to reopen", key.ID())
	}

	st.Closed = false
	st.ClosedAt = nil
	st.CloseNote = ""
	st.UpdatedAt = time.Now().UTC()
	return nil
}

// LinkTicket records the linked ticket for every alert in the batch.
func (s *MemoryStore) LinkTicket(_ context.Context, keys []schema.SourceKey, ticketID, summary string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if ticketID == "" {
		return errs.Validationf("link requires a ticket id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, key := range keys {
		st := s.upsertLocked(key)
		st.LinkedTicketID = ticketID
		st.LinkedTicketSummary = summary
		st.UpdatedAt = now
	}
	return nil
}

// SetCompanyMatch caches the ticket-correlation result for an alert.
func (s *MemoryStore) SetCompanyMatch(_ context.Context, key schema.SourceKey, companyID, companyName string) error {
	if err := validateKeys([]schema.SourceKey{key}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.upsertLocked(key)
	st.MatchedCompanyID = companyID
	st.MatchedCompanyName = companyName
	st.UpdatedAt = time.Now().UTC()
	return nil
}

// upsertLocked fetches or lazily creates the row for a key. Caller must
// hold the write lock.
func (s *MemoryStore) upsertLocked(key schema.SourceKey) *AlertState {
	id := key.ID()
	if st, ok := s.states[id]; ok {
		return st
	}
	st := DefaultState(key)
	s.states[id] = st
	return st
}
