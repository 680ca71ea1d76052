// Package router maps request paths to the application's views and gates the
// chat view behind the session flags. Resolution and guarding are pure: the
// session state is handed to the guard explicitly instead of being read from
// ambient storage, so navigation decisions can be computed and tested without
// a browser, a cookie jar or Redis.
package router

import "strings"

// View identifies one of the pages the web client can show.
type View string

const (
	ViewLanding  View = "landing"
	ViewChat     View = "chat"
	ViewNotFound View = "not_found"
)

// CatchAll is the pattern that matches any path. It must be the last entry
// of a Table.
const CatchAll = "/*"

// Route binds a path pattern to a view.
type Route struct {
	Pattern      string
	View         View
	RequiresAuth bool
}

// Match is the outcome of resolving a path against a Table.
type Match struct {
	Route Route
	// Rest holds the portion of the path captured by the catch-all pattern,
	// without the leading slash. Empty for exact matches.
	Rest string
}

// Table is an ordered, immutable list of routes. Exact patterns are checked
// before the catch-all regardless of where they appear.
type Table struct {
	exact    []Route
	catchAll *Route
}

// NewTable builds a Table from routes. At most one CatchAll route is kept;
// later ones are ignored.
func NewTable(routes ...Route) *Table {
	t := &Table{}
	for _, r := range routes {
		if r.Pattern == CatchAll {
			if t.catchAll == nil {
				r := r
				t.catchAll = &r
			}
			continue
		}
		r.Pattern = normalize(r.Pattern)
		t.exact = append(t.exact, r)
	}
	return t
}

// DefaultTable returns the application's route table: landing at "/", the
// guarded chat page at "/chat", and a not-found catch-all.
func DefaultTable() *Table {
	return NewTable(
		Route{Pattern: "/", View: ViewLanding},
		Route{Pattern: "/chat", View: ViewChat, RequiresAuth: true},
		Route{Pattern: CatchAll, View: ViewNotFound},
	)
}

// Routes returns a copy of the table's routes in resolution order.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.exact)+1)
	out = append(out, t.exact...)
	if t.catchAll != nil {
		out = append(out, *t.catchAll)
	}
	return out
}

// Lookup returns the first route bound to view.
func (t *Table) Lookup(view View) (Route, bool) {
	for _, r := range t.Routes() {
		if r.View == view {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve matches path against the table. Matching ignores case and a single
// trailing slash. A path that matches nothing resolves to the catch-all, or
// to a bare not-found route when the table has no catch-all.
func (t *Table) Resolve(path string) Match {
	p := normalize(path)
	for _, r := range t.exact {
		if strings.EqualFold(r.Pattern, p) {
			return Match{Route: r}
		}
	}
	if t.catchAll != nil {
		return Match{Route: *t.catchAll, Rest: strings.TrimPrefix(p, "/")}
	}
	return Match{Route: Route{Pattern: CatchAll, View: ViewNotFound}, Rest: strings.TrimPrefix(p, "/")}
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}
