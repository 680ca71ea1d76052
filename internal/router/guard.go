package router

// Status values stored in the userStatus session flag.
const (
	StatusExisting = "Existing"
	StatusNew      = "New"
)

// Flags is a snapshot of the two session flags the guard reads. A nil field
// means the flag is absent.
type Flags struct {
	UserAuthenticated *string
	UserStatus        *string
}

// Authenticated reports whether the userAuthenticated flag is truthy: present
// and non-empty. Any non-empty value counts, "false" included.
func (f Flags) Authenticated() bool {
	return f.UserAuthenticated != nil && *f.UserAuthenticated != ""
}

// Status returns the userStatus flag, or "" when absent.
func (f Flags) Status() string {
	if f.UserStatus == nil {
		return ""
	}
	return *f.UserStatus
}

// SessionContext supplies the flags for the navigation being guarded.
type SessionContext interface {
	Flags() Flags
}

// StaticSession is a SessionContext holding a fixed set of flags.
type StaticSession Flags

// Flags implements SessionContext.
func (s StaticSession) Flags() Flags { return Flags(s) }

// Decision is the outcome of guarding a navigation.
type Decision struct {
	// Requested is the route the path resolved to.
	Requested Match
	// View is the view to show. It differs from Requested.Route.View when the
	// guard redirected.
	View       View
	Redirected bool
}

// Guard decides whether a resolved route may be shown for a session.
type Guard struct {
	session SessionContext
	landing Route
}

// NewGuard returns a guard reading flags from session. Redirects go to the
// landing view.
func NewGuard(session SessionContext) *Guard {
	return &Guard{
		session: session,
		landing: Route{Pattern: "/", View: ViewLanding},
	}
}

// Allow reports whether route may be shown. Routes that do not require auth
// are always allowed. Guarded routes need a truthy userAuthenticated flag and
// a userStatus other than "New"; the status check wins over authentication.
func (g *Guard) Allow(route Route) bool {
	if !route.RequiresAuth {
		return true
	}
	var flags Flags
	if g.session != nil {
		flags = g.session.Flags()
	}
	if !flags.Authenticated() || flags.Status() == StatusNew {
		return false
	}
	return true
}

// Check guards match and returns the resulting decision.
func (g *Guard) Check(match Match) Decision {
	if g.Allow(match.Route) {
		return Decision{Requested: match, View: match.Route.View}
	}
	return Decision{Requested: match, View: g.landing.View, Redirected: true}
}

// Navigator resolves paths and guards the result.
type Navigator struct {
	table *Table
	guard *Guard
}

// NewNavigator combines a route table with a guard bound to session.
func NewNavigator(table *Table, session SessionContext) *Navigator {
	g := NewGuard(session)
	if r, ok := table.Lookup(ViewLanding); ok {
		g.landing = r
	}
	return &Navigator{table: table, guard: g}
}

// Navigate resolves path and applies the guard.
func (n *Navigator) Navigate(path string) Decision {
	return n.guard.Check(n.table.Resolve(path))
}

// RedirectPath returns the path of the landing route used for redirects.
func (n *Navigator) RedirectPath() string {
	return n.guard.landing.Pattern
}
