// Package guard decides whether a protected view may render for a given auth snapshot.
package guard

import domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"

// Decision is the outcome of a route check.
type Decision int

const (
	// ShowLoading renders a neutral placeholder until the state settles.
	ShowLoading Decision = iota
	RedirectLogin
	RedirectHome
	Render
)

func (d Decision) String() string {
	switch d {
	case ShowLoading:
		return "show_loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decide is pure; callers re-evaluate it on every state change.
// A nil required role admits any signed-in user.
func Decide(snap domainauth.Snapshot, required *domainauth.Role) Decision {
	switch {
	case snap.Loading:
		return ShowLoading
	case snap.CurrentUser == nil:
		return RedirectLogin
	case required != nil && snap.CurrentUser.UserType != *required:
		return RedirectHome
	default:
		return Render
	}
}

// Role is a convenience for building the required-role argument.
func Role(r domainauth.Role) *domainauth.Role { return &r }
