// Package nav holds the client route table and the router that carries
// per-transition state between pages.
package nav

import (
	"sync"

	"github.com/rs/zerolog"
)

// Route identifies a page of the dashboard client
type Route string

const (
	RouteHome           Route = "/"
	RouteAbout          Route = "/about"
	RouteSignIn         Route = "/login"
	RouteSignUp         Route = "/register"
	RouteForgotPassword Route = "/forgot-password"
	RouteVerifyOTP      Route = "/otp-verification"
	RouteResetPassword  Route = "/reset-password"

	RouteDashboard  Route = "/dashboard"
	RoutePlots      Route = "/plots"
	RouteCrops      Route = "/crops"
	RouteAlerts     Route = "/alerts"
	RouteHistorical Route = "/historical"
	RouteAccount    Route = "/account"
	RouteSettings   Route = "/settings"
)

var protected = map[Route]bool{
	RouteDashboard:  true,
	RoutePlots:      true,
	RouteCrops:      true,
	RouteAlerts:     true,
	RouteHistorical: true,
	RouteAccount:    true,
	RouteSettings:   true,
}

// Protected reports whether route sits behind the access guard
func Protected(route Route) bool {
	return protected[route]
}

// Location is the current route plus the state handed over by the
// transition that led to it. State is never persisted.
type Location struct {
	Route Route
	State any
}

// Navigator performs page transitions
type Navigator interface {
	Navigate(route Route, state any)
}

// Router is an in-memory Navigator. Each transition replaces the
// location wholesale, so state from an earlier page never leaks forward.
type Router struct {
	mu      sync.Mutex
	current Location
	history []Route
	logger  zerolog.Logger
}

// NewRouter creates a router positioned at start
func NewRouter(start Route, logger zerolog.Logger) *Router {
	return &Router{
		current: Location{Route: start},
		history: []Route{start},
		logger:  logger,
	}
}

// Navigate moves to route carrying state
func (r *Router) Navigate(route Route, state any) {
	r.mu.Lock()
	from := r.current.Route
	r.current = Location{Route: route, State: state}
	r.history = append(r.history, route)
	r.mu.Unlock()

	r.logger.Debug().
		Str("from", string(from)).
		Str("to", string(route)).
		Bool("state", state != nil).
		Msg("Navigate")
}

// Location returns the current location
func (r *Router) Location() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns every route visited, oldest first
func (r *Router) History() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Route, len(r.history))
	copy(out, r.history)
	return out
}

// GuardState is the state attached to a redirect to the sign-in page made
// by the access guard.
type GuardState struct {
	From Route
}
