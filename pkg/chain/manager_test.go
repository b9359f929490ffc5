// ABOUTME: Tests for the version chain manager
// ABOUTME: Insertion, idempotence, rollback on violations, deletion and queries

package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nainya/orgstore/pkg/accountability"
	"github.com/nainya/orgstore/pkg/storage"
)

// stepClock advances by one minute on every reading
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func (c *stepClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *stepClock) current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// countingIdentity records how often the acting user is resolved
type countingIdentity struct {
	mu    sync.Mutex
	calls int
}

func (i *countingIdentity) CurrentUser(ctx context.Context) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	return UserFromContext(ctx)
}

type testEnv struct {
	m     *Manager
	accs  *accountability.Store
	kv    *storage.KV
	clock *stepClock
}

func setupTestManager(t *testing.T) *testEnv {
	t.Helper()
	kv := &storage.KV{InMemory: true}
	if err := kv.Open(); err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	accs := accountability.NewStore(kv)
	clock := &stepClock{now: time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC)}
	return &testEnv{
		m:     NewManager(kv, accs, WithClock(clock)),
		accs:  accs,
		kv:    kv,
		clock: clock,
	}
}

func (e *testEnv) newAccountability(t *testing.T, id string) string {
	t.Helper()
	acc := &accountability.Accountability{ID: id, Type: "membership", Parent: "unit-1", Child: "person-" + id}
	if err := e.accs.Create(acc); err != nil {
		t.Fatalf("Failed to create accountability: %v", err)
	}
	return acc.ID
}

func (e *testEnv) insert(t *testing.T, ctx context.Context, accID string, attrs Attributes) (*Version, bool) {
	t.Helper()
	v, created, err := e.m.InsertVersion(ctx, accID, attrs)
	if err != nil {
		t.Fatalf("InsertVersion failed: %v", err)
	}
	return v, created
}

func (e *testEnv) history(t *testing.T, accID string) []*Version {
	t.Helper()
	versions, err := e.m.History(accID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	return versions
}

func TestInsertFirstVersion(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := WithUser(context.Background(), "alice")

	v, created := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	if !created {
		t.Fatal("Expected a new version")
	}
	if v.Accountability != accID || v.Previous != "" || v.SupersededBy != "" {
		t.Errorf("First version must be a detached head: %+v", v)
	}
	if v.CreatedBy != "alice" {
		t.Errorf("Expected creator alice, got %q", v.CreatedBy)
	}
	if !v.CreatedAt.Equal(time.Date(2020, 1, 1, 8, 1, 0, 0, time.UTC)) {
		t.Errorf("Unexpected creation time %v", v.CreatedAt)
	}

	acc, _ := env.accs.Get(accID)
	if acc.Head != v.ID {
		t.Errorf("Accountability head should be %s, got %s", v.ID, acc.Head)
	}

	head, err := env.m.Head(accID)
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if head.ID != v.ID || head.BeginDate != date(t, "2020-01-01") || head.EndDate != nil || head.Erased {
		t.Errorf("Unexpected head %+v", head)
	}
}

func TestInsertWithoutUser(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")

	v, _ := env.insert(t, context.Background(), accID, Attributes{BeginDate: date(t, "2020-01-01")})
	if v.CreatedBy != "" {
		t.Errorf("Expected no creator, got %q", v.CreatedBy)
	}
}

func TestEndToEndScenario(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := WithUser(context.Background(), "alice")

	first, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	if got := env.history(t, accID); len(got) != 1 {
		t.Fatalf("Expected length 1, got %d", len(got))
	}

	correction := Attributes{
		BeginDate:     date(t, "2020-01-01"),
		EndDate:       datePtr(t, "2020-06-30"),
		Erased:        true,
		Justification: "correction",
	}
	second, created := env.insert(t, ctx, accID, correction)
	if !created {
		t.Fatal("Expected a new head")
	}

	versions := env.history(t, accID)
	if len(versions) != 2 {
		t.Fatalf("Expected length 2, got %d", len(versions))
	}
	if versions[0].ID != second.ID || versions[1].ID != first.ID {
		t.Fatalf("Unexpected order: %s, %s", versions[0].ID, versions[1].ID)
	}
	if versions[0].Previous != first.ID || versions[0].Accountability != accID {
		t.Errorf("New head not linked: %+v", versions[0])
	}
	if versions[1].Accountability != "" || versions[1].SupersededBy != second.ID {
		t.Errorf("Former head should only be reachable through the chain: %+v", versions[1])
	}
	if versions[0].Justification != "correction" || !versions[0].Erased {
		t.Errorf("Unexpected head state: %+v", versions[0])
	}

	again, created := env.insert(t, ctx, accID, correction)
	if created {
		t.Fatal("Identical insert must be a no-op")
	}
	if again.ID != second.ID {
		t.Errorf("No-op should return the current head %s, got %s", second.ID, again.ID)
	}
	if got := env.history(t, accID); len(got) != 2 {
		t.Errorf("Expected length to remain 2, got %d", len(got))
	}

	if err := env.m.Verify(accID); err != nil {
		t.Errorf("Chain should be valid: %v", err)
	}
}

func TestInsertRedundantIgnoresJustification(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	head, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2021-03-01"), EndDate: datePtr(t, "2021-12-31")})
	same, created := env.insert(t, ctx, accID, Attributes{
		BeginDate:     date(t, "2021-03-01"),
		EndDate:       datePtr(t, "2021-12-31"),
		Justification: "different reason, same state",
	})
	if created || same.ID != head.ID {
		t.Errorf("Expected no-op returning %s, got created=%v id=%s", head.ID, created, same.ID)
	}
	if same.Justification != "" {
		t.Error("No-op must not alter the head")
	}
}

func TestInsertRedundantStampsNothing(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ids := 0
	identity := &countingIdentity{}
	m := NewManager(env.kv, env.accs, WithClock(env.clock), WithIdentity(identity))
	m.newID = func() string {
		ids++
		return fmt.Sprintf("v%d", ids)
	}
	ctx := WithUser(context.Background(), "alice")
	attrs := Attributes{BeginDate: date(t, "2020-01-01")}

	if _, _, err := m.InsertVersion(ctx, accID, attrs); err != nil {
		t.Fatalf("InsertVersion failed: %v", err)
	}
	before := env.clock.current()

	head, created, err := m.InsertVersion(ctx, accID, attrs)
	if err != nil || created {
		t.Fatalf("Expected no-op, got created=%v err=%v", created, err)
	}
	if head.ID != "v1" {
		t.Errorf("Expected head v1, got %s", head.ID)
	}
	if ids != 1 {
		t.Errorf("No-op consumed an ID: %d generated", ids)
	}
	if !env.clock.current().Equal(before) {
		t.Error("No-op advanced the clock")
	}
	if identity.calls != 1 {
		t.Errorf("No-op resolved the acting user: %d calls", identity.calls)
	}
}

func TestInsertClockStepBack(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	v1, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	env.clock.set(v1.CreatedAt.Add(-time.Hour))
	v2, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-02-01")})

	if v2.CreatedAt.Before(v1.CreatedAt) {
		t.Errorf("Head stamped %v before its predecessor %v", v2.CreatedAt, v1.CreatedAt)
	}
	got, err := env.m.VersionAsOf(accID, v2.CreatedAt)
	if err != nil || got.ID != v2.ID {
		t.Errorf("Expected head %s as of its creation, got %v %v", v2.ID, got, err)
	}
}

func TestInsertClosedStore(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()
	v, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})

	if err := env.kv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, _, err := env.m.InsertVersion(ctx, accID, Attributes{BeginDate: date(t, "2020-02-01")}); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Expected ErrClosed from InsertVersion, got %v", err)
	}
	if err := env.m.Delete(ctx, v.ID); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Expected ErrClosed from Delete, got %v", err)
	}
	if _, err := env.m.Purge(ctx, accID); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Expected ErrClosed from Purge, got %v", err)
	}
}

func TestInsertMonotonicGrowth(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	states := []Attributes{
		{BeginDate: date(t, "2020-01-01")},
		{BeginDate: date(t, "2020-02-01")},
		{BeginDate: date(t, "2020-02-01"), EndDate: datePtr(t, "2020-12-31")},
		{BeginDate: date(t, "2020-02-01"), EndDate: datePtr(t, "2021-12-31")},
		{BeginDate: date(t, "2020-02-01")},
	}

	var prev *Version
	for i, attrs := range states {
		v, created := env.insert(t, ctx, accID, attrs)
		if !created {
			t.Fatalf("state %d: expected new version", i)
		}

		versions := env.history(t, accID)
		if len(versions) != i+1 {
			t.Fatalf("state %d: expected length %d, got %d", i, i+1, len(versions))
		}
		if versions[0].ID != v.ID {
			t.Errorf("state %d: new version is not the head", i)
		}
		if prev != nil {
			if v.Previous != prev.ID {
				t.Errorf("state %d: expected previous %s, got %s", i, prev.ID, v.Previous)
			}
			old, err := env.m.Get(prev.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if old.Accountability != "" || old.SupersededBy != v.ID {
				t.Errorf("state %d: former head still owns the accountability: %+v", i, old)
			}
		}
		if err := env.m.Verify(accID); err != nil {
			t.Fatalf("state %d: chain invalid: %v", i, err)
		}
		prev = v
	}
}

func TestInsertErasedFirstVersionRejected(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")

	_, _, err := env.m.InsertVersion(context.Background(), accID, Attributes{BeginDate: date(t, "2020-01-01"), Erased: true})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument, got %v", err)
	}
	if errors.Is(err, ErrInvariantViolation) {
		t.Error("bad input must not be reported as a violation")
	}

	if got := env.history(t, accID); len(got) != 0 {
		t.Errorf("Nothing should be created, got %d versions", len(got))
	}
	acc, _ := env.accs.Get(accID)
	if acc.Head != "" {
		t.Errorf("Head reference should stay empty, got %q", acc.Head)
	}
}

func TestInsertRequiresAccountability(t *testing.T) {
	env := setupTestManager(t)

	_, _, err := env.m.InsertVersion(context.Background(), "", Attributes{BeginDate: date(t, "2020-01-01")})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}

	_, _, err = env.m.InsertVersion(context.Background(), "unknown", Attributes{BeginDate: date(t, "2020-01-01")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInsertInvalidDateInterval(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})

	_, _, err := env.m.InsertVersion(ctx, accID, Attributes{BeginDate: date(t, "2020-06-01"), EndDate: datePtr(t, "2020-05-31")})
	var iv *InvariantViolation
	if !errors.As(err, &iv) || iv.Invariant != InvariantDateInterval {
		t.Fatalf("Expected date-interval violation, got %v", err)
	}

	_, _, err = env.m.InsertVersion(ctx, accID, Attributes{})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Expected violation for missing begin date, got %v", err)
	}

	if got := env.history(t, accID); len(got) != 1 {
		t.Errorf("Chain must be unchanged, got %d versions", len(got))
	}
}

func TestInsertAboveErasedHeadRollsBack(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := WithUser(context.Background(), "alice")

	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	erased, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01"), Erased: true})

	_, _, err := env.m.InsertVersion(ctx, accID, Attributes{BeginDate: date(t, "2020-03-01")})
	var iv *InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("Expected invariant violation, got %v", err)
	}
	if iv.Invariant != InvariantErasedAtHead || iv.VersionID != erased.ID {
		t.Errorf("Unexpected violation: %+v", iv)
	}

	// Nothing of the rejected insert survives
	versions := env.history(t, accID)
	if len(versions) != 2 || versions[0].ID != erased.ID {
		t.Fatalf("Chain should be unchanged, got %d versions", len(versions))
	}
	if versions[0].Accountability != accID || versions[0].SupersededBy != "" {
		t.Errorf("Erased head lost its headship: %+v", versions[0])
	}
	created, err := env.m.CreatedBy("alice")
	if err != nil {
		t.Fatalf("CreatedBy failed: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("Expected 2 versions by alice, got %d", len(created))
	}

	// Repeating the erased state is still absorbed
	if _, created, err := env.m.InsertVersion(ctx, accID, Attributes{BeginDate: date(t, "2020-01-01"), Erased: true}); err != nil || created {
		t.Errorf("Expected no-op on erased head, got created=%v err=%v", created, err)
	}
}

func TestDeleteHeadPromotesPredecessor(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := WithUser(context.Background(), "alice")

	first, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	second, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01"), Erased: true})

	if err := env.m.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := env.m.Get(second.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deleted version should be gone, got %v", err)
	}

	head, err := env.m.Head(accID)
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if head.ID != first.ID || head.Accountability != accID || head.SupersededBy != "" {
		t.Errorf("Predecessor not promoted: %+v", head)
	}

	created, _ := env.m.CreatedBy("alice")
	if len(created) != 1 || created[0].ID != first.ID {
		t.Errorf("Creator association of deleted version should be cleared, got %d", len(created))
	}

	if err := env.m.Verify(accID); err != nil {
		t.Errorf("Chain should be valid: %v", err)
	}
}

func TestDeleteNonHeadRejected(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	first, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-02-01")})

	err := env.m.Delete(ctx, first.ID)
	if !errors.Is(err, ErrNotHead) {
		t.Fatalf("Expected ErrNotHead, got %v", err)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Error("ErrNotHead should be an invalid-argument condition")
	}
	if got := env.history(t, accID); len(got) != 2 {
		t.Errorf("Chain must be unchanged, got %d versions", len(got))
	}
}

func TestDeleteOnlyVersionEmptiesChain(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	only, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	if err := env.m.Delete(ctx, only.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := env.m.Head(accID); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("Expected ErrEmptyChain, got %v", err)
	}

	// An emptied chain starts over under the first-version rules
	_, _, err := env.m.InsertVersion(ctx, accID, Attributes{BeginDate: date(t, "2020-01-01"), Erased: true})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	if _, created := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")}); !created {
		t.Error("Expected a fresh chain")
	}
}

func TestDeleteMissing(t *testing.T) {
	env := setupTestManager(t)

	if err := env.m.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := env.m.Delete(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestPurge(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	other := env.newAccountability(t, "acc-2")
	ctx := WithUser(context.Background(), "alice")

	for i := 1; i <= 3; i++ {
		env.insert(t, ctx, accID, Attributes{BeginDate: date(t, fmt.Sprintf("2020-0%d-01", i))})
	}
	env.insert(t, ctx, other, Attributes{BeginDate: date(t, "2020-01-01")})

	removed, err := env.m.Purge(ctx, accID)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 removed, got %d", removed)
	}
	if got := env.history(t, accID); len(got) != 0 {
		t.Errorf("Expected empty chain, got %d", len(got))
	}
	if got := env.history(t, other); len(got) != 1 {
		t.Errorf("Other chains must be untouched, got %d", len(got))
	}
	created, _ := env.m.CreatedBy("alice")
	if len(created) != 1 {
		t.Errorf("Expected only the other chain's version by alice, got %d", len(created))
	}

	if removed, err := env.m.Purge(ctx, accID); err != nil || removed != 0 {
		t.Errorf("Purging an empty chain should remove nothing, got %d %v", removed, err)
	}
	if _, err := env.m.Purge(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVersionAsOf(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	v1, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	v2, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-02-01")})

	got, err := env.m.VersionAsOf(accID, v1.CreatedAt.Add(30*time.Second))
	if err != nil || got.ID != v1.ID {
		t.Errorf("Expected %s, got %v %v", v1.ID, got, err)
	}
	got, err = env.m.VersionAsOf(accID, v2.CreatedAt)
	if err != nil || got.ID != v2.ID {
		t.Errorf("Expected %s at its own creation instant, got %v %v", v2.ID, got, err)
	}
	if _, err := env.m.VersionAsOf(accID, v1.CreatedAt.Add(-time.Second)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before the first version, got %v", err)
	}
}

func TestActiveOn(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	if active, err := env.m.ActiveOn(accID, date(t, "2020-03-01")); err != nil || active {
		t.Errorf("Empty chain is never active, got %v %v", active, err)
	}

	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01"), EndDate: datePtr(t, "2020-06-30")})
	if active, _ := env.m.ActiveOn(accID, date(t, "2020-03-01")); !active {
		t.Error("Expected active inside interval")
	}
	if active, _ := env.m.ActiveOn(accID, date(t, "2020-07-01")); active {
		t.Error("Expected inactive after end date")
	}

	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01"), EndDate: datePtr(t, "2020-06-30"), Erased: true})
	if active, _ := env.m.ActiveOn(accID, date(t, "2020-03-01")); active {
		t.Error("Erased accountability is never active")
	}

	if _, err := env.m.ActiveOn("unknown", date(t, "2020-03-01")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDuplicates(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	a, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-02-01")})
	c, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})

	pairs, err := env.m.Duplicates(accID)
	if err != nil {
		t.Fatalf("Duplicates failed: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].Newer.ID != c.ID || pairs[0].Older.ID != a.ID {
		t.Errorf("Unexpected pair %s/%s", pairs[0].Newer.ID, pairs[0].Older.ID)
	}
}

func TestCreatedByOrdering(t *testing.T) {
	env := setupTestManager(t)
	a1 := env.newAccountability(t, "acc-1")
	a2 := env.newAccountability(t, "acc-2")
	alice := WithUser(context.Background(), "alice")
	bob := WithUser(context.Background(), "bob")

	v1, _ := env.insert(t, alice, a1, Attributes{BeginDate: date(t, "2020-01-01")})
	env.insert(t, bob, a2, Attributes{BeginDate: date(t, "2020-01-01")})
	v3, _ := env.insert(t, alice, a2, Attributes{BeginDate: date(t, "2020-05-01")})

	got, err := env.m.CreatedBy("alice")
	if err != nil {
		t.Fatalf("CreatedBy failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != v3.ID || got[1].ID != v1.ID {
		t.Errorf("Expected [%s %s] newest first, got %d versions", v3.ID, v1.ID, len(got))
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	first, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-02-01")})

	// Bypass the manager: mark the superseded version erased
	err := env.kv.Update(func(tx *storage.KVTX) error {
		v, err := getVersion(tx, first.ID)
		if err != nil {
			return err
		}
		v.Erased = true
		return putVersion(tx, v)
	})
	if err != nil {
		t.Fatalf("Corrupting failed: %v", err)
	}

	var iv *InvariantViolation
	if err := env.m.Verify(accID); !errors.As(err, &iv) || iv.Invariant != InvariantErasedAtHead {
		t.Errorf("Expected erased-at-head violation, got %v", err)
	}

	// Dangling head reference
	err = env.kv.Update(func(tx *storage.KVTX) error {
		return env.accs.SetHeadVersion(tx, accID, "missing")
	})
	if err != nil {
		t.Fatalf("Corrupting failed: %v", err)
	}
	if err := env.m.Verify(accID); !errors.As(err, &iv) || iv.Invariant != InvariantConnectivity {
		t.Errorf("Expected connectivity violation, got %v", err)
	}
	if _, err := env.m.History(accID); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("History over a broken chain should fail, got %v", err)
	}
	if _, _, err := env.m.InsertVersion(ctx, accID, Attributes{BeginDate: date(t, "2020-03-01")}); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Insert over a dangling head should fail, got %v", err)
	}

	if err := env.m.Verify("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVerifyDetectsBrokenBackLink(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	ctx := context.Background()

	first, _ := env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-01-01")})
	env.insert(t, ctx, accID, Attributes{BeginDate: date(t, "2020-02-01")})

	env.kv.Update(func(tx *storage.KVTX) error {
		v, _ := getVersion(tx, first.ID)
		v.SupersededBy = "someone-else"
		return putVersion(tx, v)
	})

	var iv *InvariantViolation
	if err := env.m.Verify(accID); !errors.As(err, &iv) || iv.Invariant != InvariantConnectivity || iv.VersionID != first.ID {
		t.Errorf("Expected connectivity violation on %s, got %v", first.ID, err)
	}
}

func TestConcurrentInsertsDifferentAccountabilities(t *testing.T) {
	env := setupTestManager(t)
	const workers, inserts = 8, 10

	ids := make([]string, workers)
	for i := range ids {
		ids[i] = env.newAccountability(t, fmt.Sprintf("acc-%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*inserts)
	begin := date(t, "2020-01-01")
	for _, id := range ids {
		wg.Add(1)
		go func(accID string) {
			defer wg.Done()
			for j := 0; j < inserts; j++ {
				attrs := Attributes{BeginDate: begin.AddDays(j)}
				if _, _, err := env.m.InsertVersion(context.Background(), accID, attrs); err != nil {
					errs <- err
				}
			}
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Insert on a separate accountability failed: %v", err)
	}
	for _, id := range ids {
		if got := env.history(t, id); len(got) != inserts {
			t.Errorf("%s: expected %d versions, got %d", id, inserts, len(got))
		}
	}
}

func TestConcurrentInsertsSameAccountability(t *testing.T) {
	env := setupTestManager(t)
	accID := env.newAccountability(t, "acc-1")
	env.insert(t, context.Background(), accID, Attributes{BeginDate: date(t, "2019-01-01")})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	begin := date(t, "2020-01-01")
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := env.m.InsertVersion(context.Background(), accID, Attributes{BeginDate: begin.AddDays(i)})
			if err != nil && !errors.Is(err, storage.ErrConflict) {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if created {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if err := env.m.Verify(accID); err != nil {
		t.Fatalf("Chain invalid after concurrent inserts: %v", err)
	}
	if got := env.history(t, accID); len(got) != 1+succeeded {
		t.Errorf("Expected %d versions, got %d", 1+succeeded, len(got))
	}
}

func TestHeadUnknownAccountability(t *testing.T) {
	env := setupTestManager(t)
	if _, err := env.m.Head("unknown"); !errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmptyChain) {
		t.Errorf("Expected plain ErrNotFound, got %v", err)
	}
	if _, err := env.m.History("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

var _ Anchors = (*accountability.Store)(nil)
