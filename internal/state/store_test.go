package state

import (
	"context"
	"testing"

	"opsconsole/internal/errs"
	"opsconsole/internal/schema"
)

func key(source schema.Source, id string) schema.SourceKey {
	return schema.SourceKey{Source: source, SourceID: id}
}

func TestStore_DefaultStateForUnknownAlert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	k := key(schema.SourceSentinelOne, "T1")
	st, err := store.Get(ctx, k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Closed || st.Owner != "" || st.LinkedTicketID != "" {
		t.Errorf("default state must be open/unowned/unlinked, got %+v", st)
	}
	if st.AlertID != k.ID() {
		t.Errorf("AlertID = %s, want %s", st.AlertID, k.ID())
	}

	byID, err := store.GetByID(ctx, k.ID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID != nil {
		t.Error("GetByID must return nil when no row was ever written")
	}
}

func TestStore_CloseReopenRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	k := key(schema.SourceSentinelOne, "T1")

	if err := store.TakeOwnership(ctx, []schema.SourceKey{k}, "alice"); err != nil {
		t.Fatalf("TakeOwnership: %v", err)
	}
	if err := store.Close(ctx, []schema.SourceKey{k}, "alice", "false positive"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, _ := store.Get(ctx, k)
	if !st.Closed || st.ClosedAt == nil || st.CloseNote != "false positive" || st.ClosedBy != "alice" {
		t.Fatalf("closure not recorded: %+v", st)
	}

	if err := store.Reopen(ctx, k); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	st, _ = store.Get(ctx, k)
	if st.Closed || st.ClosedAt != nil || st.CloseNote != "" {
		t.Errorf("reopen must clear the closure, got %+v", st)
	}
	if st.Owner != "alice" {
		t.Errorf("reopen must preserve ownership, owner = %q", st.Owner)
	}
}

func TestStore_ReopenWithoutClosureConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Reopen(ctx, key(schema.SourceSentinelOne, "never-closed"))
	if !errs.IsConflict(err) {
		t.Fatalf("reopening an open alert should conflict, got %v", err)
	}
}

func TestStore_BulkCloseAppliesIdenticalNote(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	keys := []schema.SourceKey{
		key(schema.SourceSentinelOne, "T1"),
		key(schema.SourceBlackpoint, "B1"),
	}
	if err := store.Close(ctx, keys, "bob", "resolved after patching"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	states, err := store.GetBatch(ctx, keys)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	for id, st := range states {
		if !st.Closed || st.CloseNote != "resolved after patching" {
			t.Errorf("alert %s missing the shared close note: %+v", id, st)
		}
	}
}

func TestStore_CloseRequiresNote(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	k := key(schema.SourceSentinelOne, "T1")

	err := store.Close(ctx, []schema.SourceKey{k}, "alice", "")
	if !errs.IsValidation(err) {
		t.Fatalf("close without a note should fail validation, got %v", err)
	}
	st, _ := store.Get(ctx, k)
	if st.Closed {
		t.Error("rejected close must not write")
	}
}

func TestStore_OwnershipLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	k := key(schema.SourceSentinelOne, "T1")

	if err := store.TakeOwnership(ctx, []schema.SourceKey{k}, "userX"); err != nil {
		t.Fatalf("first TakeOwnership: %v", err)
	}
	if err := store.TakeOwnership(ctx, []schema.SourceKey{k}, "userY"); err != nil {
		t.Fatalf("second TakeOwnership must also succeed: %v", err)
	}

	st, _ := store.Get(ctx, k)
	if st.Owner != "userY" {
		t.Errorf("owner = %q, want the last writer userY", st.Owner)
	}
}

func TestStore_ReleaseOwnershipNoOpWhenUnowned(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	k := key(schema.SourceCove, "42")

	if err := store.ReleaseOwnership(ctx, []schema.SourceKey{k}); err != nil {
		t.Fatalf("releasing an unowned alert must succeed: %v", err)
	}
	st, _ := store.Get(ctx, k)
	if st.Owner != "" {
		t.Errorf("owner = %q, want empty", st.Owner)
	}
}

func TestStore_MalformedKeyAbortsWholeBatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	good := key(schema.SourceSentinelOne, "T1")
	bad := key(schema.SourceSentinelOne, "id with spaces")

	err := store.Close(ctx, []schema.SourceKey{good, bad}, "alice", "note")
	if !errs.IsValidation(err) {
		t.Fatalf("batch with malformed id should fail validation, got %v", err)
	}

	st, _ := store.Get(ctx, good)
	if st.Closed {
		t.Error("no key in a rejected batch may be written")
	}
}

func TestStore_EmptyBatchRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.TakeOwnership(ctx, nil, "alice")
	if !errs.IsValidation(err) {
		t.Fatalf("empty batch should fail validation, got %v", err)
	}
}

func TestStore_LinkTicket(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	k := key(schema.SourceBlackpoint, "B1")

	if err := store.LinkTicket(ctx, []schema.SourceKey{k}, "TKT-1001", "[BP] SOC alert"); err != nil {
		t.Fatalf("LinkTicket: %v", err)
	}
	st, _ := store.Get(ctx, k)
	if st.LinkedTicketID != "TKT-1001" || st.LinkedTicketSummary != "[BP] SOC alert" {
		t.Errorf("ticket link not recorded: %+v", st)
	}

	err := store.LinkTicket(ctx, []schema.SourceKey{k}, "", "summary")
	if !errs.IsValidation(err) {
		t.Fatalf("link without a ticket id should fail validation, got %v", err)
	}
}

func TestStore_SetCompanyMatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	k := key(schema.SourceSentinelOne, "T1")

	if err := store.SetCompanyMatch(ctx, k, "19", "Acme Corp"); err != nil {
		t.Fatalf("SetCompanyMatch: %v", err)
	}
	st, _ := store.Get(ctx, k)
	if st.MatchedCompanyID != "19" || st.MatchedCompanyName != "Acme Corp" {
		t.Errorf("company match not recorded: %+v", st)
	}
}
