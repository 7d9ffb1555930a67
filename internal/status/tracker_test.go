package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

func waitFor[S any](t *testing.T, tr *Tracker[S], ok func(S) bool) S {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-tr.Updates():
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("status never matched, last %+v", tr.Status())
		}
	}
}

func TestTrackerStartsLoading(t *testing.T) {
	tr := NewApprovalTracker(session.NewStore(), &fakeApprovals{}, zap.NewNop().Sugar())
	assert.Equal(t, ApprovalStatus{Loading: true}, tr.Status())
}

func TestTrackerFollowsIdentity(t *testing.T) {
	store := session.NewStore()
	repo := &fakeApprovals{approved: map[string]bool{"1": true}}
	tr := NewApprovalTracker(store, repo, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()

	// the loading session has no user and settles without a lookup
	got := waitFor(t, tr, func(s ApprovalStatus) bool { return !s.Loading })
	assert.False(t, got.IsApproved)
	assert.Zero(t, repo.callCount())

	store.Set(session.Session{User: &session.Identity{ID: "1", UserType: session.UserTypeAgent}})
	waitFor(t, tr, func(s ApprovalStatus) bool { return s.IsApproved })
	assert.Equal(t, 1, repo.callCount())

	// a profile arriving for the same identity does not trigger a new lookup
	role := "agent"
	store.Set(session.Session{
		User:    &session.Identity{ID: "1", UserType: session.UserTypeAgent},
		Profile: &session.Profile{Role: &role},
	})

	store.Set(session.Session{User: &session.Identity{ID: "1", UserType: session.UserTypeClient}})
	waitFor(t, tr, func(s ApprovalStatus) bool { return !s.IsApproved })
	assert.Equal(t, 1, repo.callCount())

	cancel()
	<-done
}

func TestTrackerRefetch(t *testing.T) {
	store := session.NewStore()
	store.Set(session.Session{User: &session.Identity{ID: "9", UserType: session.UserTypeAgent}})
	repo := &fakeSubscriptions{}
	tr := NewSubscriptionTracker(store, repo, zap.NewNop().Sugar())

	first := tr.Refetch(context.Background())
	second := tr.Refetch(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, SubscriptionStatus{}, tr.Status())
	assert.Equal(t, 2, repo.calls)
}

// racingCheck blocks each check on a per-identity gate so tests can choose
// the order in which overlapping checks finish.
type racingCheck struct {
	store   *session.Store
	started chan string
	mu      sync.Mutex
	gates   map[string]chan struct{}
}

func newRacingCheck(store *session.Store, ids ...string) *racingCheck {
	rc := &racingCheck{store: store, started: make(chan string, len(ids)), gates: map[string]chan struct{}{}}
	for _, id := range ids {
		rc.gates[id] = make(chan struct{})
	}
	return rc
}

func (rc *racingCheck) check(ctx context.Context) string {
	id := rc.store.Current().User.ID
	rc.mu.Lock()
	gate := rc.gates[id]
	rc.mu.Unlock()
	rc.started <- id
	<-gate
	return id
}

func runOverlapping(t *testing.T, opts ...TrackerOption) string {
	t.Helper()
	store := session.NewStore()
	rc := newRacingCheck(store, "old", "new")
	tr := NewTracker(store, "", rc.check, opts...)

	var wg sync.WaitGroup
	start := func(id string) {
		store.Set(session.Session{User: &session.Identity{ID: id, UserType: session.UserTypeAgent}})
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Refetch(context.Background())
		}()
		require.Equal(t, id, <-rc.started)
	}
	start("old")
	start("new")

	close(rc.gates["new"])
	waitFor(t, tr, func(s string) bool { return s == "new" })
	close(rc.gates["old"])
	wg.Wait()
	return tr.Status()
}

func TestTrackerLastResolutionWins(t *testing.T) {
	assert.Equal(t, "old", runOverlapping(t))
}

func TestTrackerStaleGuardKeepsNewest(t *testing.T) {
	assert.Equal(t, "new", runOverlapping(t, WithStaleGuard()))
}
