package guard

import (
	"context"
	"sync"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

// Navigator executes redirect commands. Fire-and-forget.
type Navigator interface {
	Redirect(path string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Redirect(path string) { f(path) }

// Guard tracks one protected route over a changing session. Redirects are
// only emitted when the decision state changes, so re-evaluating the same
// session never redirects twice.
type Guard struct {
	dest         Destinations
	requiredRole string
	src          session.Source

	mu   sync.Mutex
	last State
	seen bool
}

func New(src session.Source, requiredRole string, dest Destinations) *Guard {
	return &Guard{dest: dest, requiredRole: requiredRole, src: src}
}

// Observe evaluates the current session. The returned decision carries a
// Redirect only on the evaluation that entered a redirecting state.
func (g *Guard) Observe() Decision {
	d := g.dest.Evaluate(g.requiredRole, g.src.Current())

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen && g.last == d.State {
		d.Redirect = nil
	}
	g.last = d.State
	g.seen = true
	return d
}

// Run follows sub until ctx is done, executing redirects through nav and
// handing every decision to render when it is non-nil.
func (g *Guard) Run(ctx context.Context, sub session.Subscriber, nav Navigator, render func(Decision)) {
	updates, cancel := sub.Subscribe()
	defer cancel()

	step := func() {
		d := g.Observe()
		if d.Redirect != nil && nav != nil {
			nav.Redirect(d.Redirect.Path)
		}
		if render != nil {
			render(d)
		}
	}

	step()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			step()
		}
	}
}
