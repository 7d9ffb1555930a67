package status

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

type trackerOptions struct {
	staleGuard bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*trackerOptions)

// WithStaleGuard drops results of checks that started before the most recent
// one. Without it the last check to finish wins, even if its identity is stale.
func WithStaleGuard() TrackerOption {
	return func(o *trackerOptions) { o.staleGuard = true }
}

// Tracker keeps a status current for a changing session. It starts at the
// loading value and re-runs its check whenever the identity key changes. Until
// a check finishes the previous value stays visible, so every published value
// after the first is terminal.
type Tracker[S any] struct {
	src   session.Subscriber
	check func(context.Context) S
	opts  trackerOptions

	mu      sync.Mutex
	cur     S
	started uint64
	updates chan S

	wg sync.WaitGroup
}

func NewTracker[S any](src session.Subscriber, loading S, check func(context.Context) S, opts ...TrackerOption) *Tracker[S] {
	t := &Tracker[S]{src: src, check: check, cur: loading, updates: make(chan S, 1)}
	for _, o := range opts {
		o(&t.opts)
	}
	return t
}

// NewApprovalTracker tracks ApprovalStatus for src.
func NewApprovalTracker(src session.Subscriber, repo ApprovalLookup, logger *zap.SugaredLogger, opts ...TrackerOption) *Tracker[ApprovalStatus] {
	c := NewApprovalChecker(src, repo, logger)
	return NewTracker(src, ApprovalStatus{Loading: true}, c.Check, opts...)
}

// NewSubscriptionTracker tracks SubscriptionStatus for src.
func NewSubscriptionTracker(src session.Subscriber, repo SubscriptionLookup, logger *zap.SugaredLogger, opts ...TrackerOption) *Tracker[SubscriptionStatus] {
	c := NewSubscriptionChecker(src, repo, logger)
	return NewTracker(src, SubscriptionStatus{Loading: true}, c.Check, opts...)
}

// Status returns the latest published value.
func (t *Tracker[S]) Status() S {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// Updates delivers published values; a slow reader only sees the latest.
func (t *Tracker[S]) Updates() <-chan S {
	return t.updates
}

// Refetch runs the check now and returns its result. With the stale guard a
// newer check started meanwhile takes precedence over this result.
func (t *Tracker[S]) Refetch(ctx context.Context) S {
	v, _ := t.runCheck(ctx)
	return v
}

// Run follows the session until ctx is done. It waits for in-flight checks
// before returning.
func (t *Tracker[S]) Run(ctx context.Context) {
	sessions, cancel := t.src.Subscribe()
	defer cancel()
	defer t.wg.Wait()

	var (
		last     session.Key
		lastUser bool
		primed   bool
	)
	trigger := func(s session.Session) {
		k, ok := s.Key()
		if primed && k == last && ok == lastUser {
			return
		}
		primed, last, lastUser = true, k, ok
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.runCheck(ctx)
		}()
	}

	trigger(t.src.Current())
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sessions:
			if !ok {
				return
			}
			trigger(s)
		}
	}
}

func (t *Tracker[S]) runCheck(ctx context.Context) (S, bool) {
	t.mu.Lock()
	t.started++
	seq := t.started
	t.mu.Unlock()

	v := t.check(ctx)
	if ctx.Err() != nil {
		return v, false
	}
	return v, t.publish(seq, v)
}

func (t *Tracker[S]) publish(seq uint64, v S) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opts.staleGuard && seq < t.started {
		return false
	}
	t.cur = v
	select {
	case <-t.updates:
	default:
	}
	t.updates <- v
	return true
}
