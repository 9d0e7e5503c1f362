// Package guard decides, per navigation, whether a target view renders, a
// placeholder shows, or the user is redirected.
package guard

import (
	"github.com/yourorg/labtrack/internal/permission"
	"github.com/yourorg/labtrack/internal/session"
)

// Decision is the outcome of evaluating one navigation attempt
type Decision int

const (
	// ShowLoading renders a placeholder; session or permissions are not
	// resolved yet and no terminal decision can be made.
	ShowLoading Decision = iota
	// RedirectLogin sends the user to the login view
	RedirectLogin
	// Render shows the target view
	Render
	// RedirectDenied sends the user to the fixed not-authorized view
	RedirectDenied
)

func (d Decision) String() string {
	switch d {
	case ShowLoading:
		return "loading"
	case RedirectLogin:
		return "redirect-login"
	case Render:
		return "render"
	case RedirectDenied:
		return "redirect-denied"
	default:
		return "unknown"
	}
}

// Route describes a navigation target. An empty Module leaves the route
// ungated beyond authentication.
type Route struct {
	Path    string
	Module  string
	Actions []permission.Action
}

// PermissionChecker is the slice of the permission cache the guard consults
type PermissionChecker interface {
	Allowed(module string, actions ...permission.Action) bool
	Loaded() bool
}

// Evaluate runs the guard state machine for one navigation attempt.
// A denial is only terminal once permissions are confirmed loaded; until
// then the guard keeps showing the placeholder rather than flashing the
// not-authorized view at a user whose grants are still in flight.
func Evaluate(s session.State, perms PermissionChecker, route Route) Decision {
	if s.IsLoading {
		return ShowLoading
	}
	if !s.IsAuthenticated {
		return RedirectLogin
	}
	if route.Module == "" {
		return Render
	}
	if !perms.Loaded() {
		return ShowLoading
	}
	if perms.Allowed(route.Module, route.Actions...) {
		return Render
	}
	return RedirectDenied
}
