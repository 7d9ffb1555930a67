// Package session resolves who is signed in and hands that to consumers.
//
// Per-request HTTP code wraps the resolved Session in Static. Store and its
// subscriptions are for long-lived embedders that see the session change
// over time.
package session

import (
	"context"
	"sync"
)

// Source supplies the live Session. Consumers only read it.
type Source interface {
	Current() Session
}

// Subscriber is a Source that can push changes.
type Subscriber interface {
	Source
	// Subscribe returns a channel that always holds the latest Session set
	// after the call, and a func that releases it.
	Subscribe() (<-chan Session, func())
}

// Static is a Source fixed to one value, used for a single request.
type Static Session

func (s Static) Current() Session { return Session(s) }

// Store is a reactive in-memory Session. It reports Loading until the first Set.
type Store struct {
	mu   sync.RWMutex
	cur  Session
	subs map[int]chan Session
	next int
}

func NewStore() *Store {
	return &Store{cur: Session{Loading: true}, subs: make(map[int]chan Session)}
}

func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Set replaces the current session and notifies subscribers. Slow subscribers
// skip intermediate values and only see the latest one.
func (s *Store) Set(v Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = v
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (s *Store) Subscribe() (<-chan Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan Session, 1)
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

type contextKey struct{}

// WithSession stores s on the context for downstream handlers.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request session. A context that was never given one
// has not been resolved yet, so it reports a loading session.
func FromContext(ctx context.Context) Session {
	s, ok := ctx.Value(contextKey{}).(Session)
	if !ok {
		return Session{Loading: true}
	}
	return s
}
