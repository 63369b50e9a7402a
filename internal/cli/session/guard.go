package session

import (
	"context"
	"errors"

	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/nav"
)

// Decision is what the guard does with a snapshot
type Decision int

const (
	// DecisionDefer waits: validation has not finished yet
	DecisionDefer Decision = iota
	DecisionAllow
	DecisionRedirect
)

// ErrAccessDenied is returned when a protected operation runs without a
// signed-in user
var ErrAccessDenied = errors.New("not signed in. Please run 'aerosense login' first")

// Decide maps a snapshot to a guard decision
func Decide(s Session) Decision {
	switch s.State() {
	case StateUninitialized, StateValidating:
		return DecisionDefer
	case StateAuthenticated:
		return DecisionAllow
	default:
		return DecisionRedirect
	}
}

// Guard gates protected routes on the session
type Guard struct {
	store     *Store
	navigator nav.Navigator
}

// NewGuard creates a guard reading store
func NewGuard(store *Store, navigator nav.Navigator) *Guard {
	return &Guard{store: store, navigator: navigator}
}

// Enter waits until the session has settled, then either returns the
// signed-in user or redirects to sign-in, remembering route, and returns
// ErrAccessDenied.
func (g *Guard) Enter(ctx context.Context, route nav.Route) (*client.User, error) {
	settled := make(chan Session, 1)
	unsubscribe := g.store.Subscribe(func(s Session) {
		if Decide(s) == DecisionDefer {
			return
		}
		select {
		case settled <- s:
		default:
		}
	})
	defer unsubscribe()

	snap := g.store.Snapshot()
	if Decide(snap) == DecisionDefer {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case snap = <-settled:
		}
	}

	if Decide(snap) == DecisionAllow {
		return snap.User, nil
	}

	g.navigator.Navigate(nav.RouteSignIn, nav.GuardState{From: route})
	return nil, ErrAccessDenied
}
