// Package guard decides whether a protected route renders, redirects or
// denies access for the current session.
//
// HTTP routes evaluate once per request through Middleware and
// Destinations.Evaluate. Guard.Run re-evaluates on every session change and
// is meant for long-lived embedders holding a session.Store.
package guard

import (
	"os"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

type State int

const (
	StateLoading State = iota
	StateAuthorized
	StateUnauthenticated
	StateForbidden
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthorized:
		return "authorized"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Render is what the outer shell should draw for a decision.
type Render int

const (
	RenderLoading Render = iota
	RenderChildren
	RenderNothing
	RenderAccessDenied
)

// Redirect is a navigation command for the shell to execute.
type Redirect struct {
	Path string
}

// Decision is the outcome of evaluating a session against a route.
type Decision struct {
	State    State
	Render   Render
	Redirect *Redirect
}

// Destinations are the redirect targets.
type Destinations struct {
	SignIn string
	Home   string
}

// DefaultDestinations mirrors the marketplace routes.
var DefaultDestinations = Destinations{SignIn: "/auth", Home: "/"}

// DestinationsFromEnv reads GUARD_SIGNIN_PATH and GUARD_HOME_PATH.
func DestinationsFromEnv() Destinations {
	d := DefaultDestinations
	if v := os.Getenv("GUARD_SIGNIN_PATH"); v != "" {
		d.SignIn = v
	}
	if v := os.Getenv("GUARD_HOME_PATH"); v != "" {
		d.Home = v
	}
	return d
}

// Evaluate maps a session to a decision. The role is only judged once the
// profile is present; a user whose profile has not loaded yet is let through.
func (d Destinations) Evaluate(requiredRole string, s session.Session) Decision {
	switch {
	case s.Loading:
		return Decision{State: StateLoading, Render: RenderLoading}
	case s.User == nil:
		return Decision{State: StateUnauthenticated, Render: RenderNothing, Redirect: &Redirect{Path: d.SignIn}}
	case requiredRole != "" && s.Profile != nil && s.Role() != requiredRole:
		return Decision{State: StateForbidden, Render: RenderAccessDenied, Redirect: &Redirect{Path: d.Home}}
	default:
		return Decision{State: StateAuthorized, Render: RenderChildren}
	}
}
