package router

import "testing"

func strp(s string) *string { return &s }

func TestNavigate_GuardedRoute(t *testing.T) {
	tests := []struct {
		name       string
		flags      Flags
		wantView   View
		redirected bool
	}{
		{"no flags", Flags{}, ViewLanding, true},
		{"authenticated new user", Flags{UserAuthenticated: strp("true"), UserStatus: strp("New")}, ViewLanding, true},
		{"authenticated existing user", Flags{UserAuthenticated: strp("true"), UserStatus: strp("Existing")}, ViewChat, false},
		{"existing but not authenticated", Flags{UserStatus: strp("Existing")}, ViewLanding, true},
		{"authenticated without status", Flags{UserAuthenticated: strp("true")}, ViewChat, false},
		{"empty auth flag is falsy", Flags{UserAuthenticated: strp(""), UserStatus: strp("Existing")}, ViewLanding, true},
		{"string false is truthy", Flags{UserAuthenticated: strp("false"), UserStatus: strp("Existing")}, ViewChat, false},
		{"status is case sensitive", Flags{UserAuthenticated: strp("true"), UserStatus: strp("new")}, ViewChat, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := NewNavigator(DefaultTable(), StaticSession(tt.flags))
			d := nav.Navigate("/chat")
			if d.View != tt.wantView {
				t.Errorf("Navigate(/chat).View = %q, want %q", d.View, tt.wantView)
			}
			if d.Redirected != tt.redirected {
				t.Errorf("Navigate(/chat).Redirected = %v, want %v", d.Redirected, tt.redirected)
			}
			if d.Requested.Route.View != ViewChat {
				t.Errorf("Requested view = %q, want %q", d.Requested.Route.View, ViewChat)
			}
		})
	}
}

func TestNavigate_UnguardedRoutesIgnoreFlags(t *testing.T) {
	sessions := []Flags{
		{},
		{UserAuthenticated: strp("true"), UserStatus: strp("New")},
		{UserAuthenticated: strp("true"), UserStatus: strp("Existing")},
	}
	for _, flags := range sessions {
		nav := NewNavigator(DefaultTable(), StaticSession(flags))
		if d := nav.Navigate("/"); d.View != ViewLanding || d.Redirected {
			t.Errorf("Navigate(/) with %+v = %+v, want landing without redirect", flags, d)
		}
		if d := nav.Navigate("/foo/bar"); d.View != ViewNotFound || d.Redirected {
			t.Errorf("Navigate(/foo/bar) with %+v = %+v, want not_found without redirect", flags, d)
		}
	}
}

func TestGuard_NilSessionDeniesGuardedRoutes(t *testing.T) {
	g := NewGuard(nil)
	if g.Allow(Route{Pattern: "/chat", View: ViewChat, RequiresAuth: true}) {
		t.Error("nil session must not open a guarded route")
	}
	if !g.Allow(Route{Pattern: "/", View: ViewLanding}) {
		t.Error("unguarded route must be allowed")
	}
}

func TestNavigator_RedirectPath(t *testing.T) {
	nav := NewNavigator(DefaultTable(), StaticSession{})
	if got := nav.RedirectPath(); got != "/" {
		t.Errorf("RedirectPath() = %q, want %q", got, "/")
	}

	custom := NewTable(
		Route{Pattern: "/welcome", View: ViewLanding},
		Route{Pattern: "/chat", View: ViewChat, RequiresAuth: true},
	)
	nav = NewNavigator(custom, StaticSession{})
	if got := nav.RedirectPath(); got != "/welcome" {
		t.Errorf("RedirectPath() = %q, want %q", got, "/welcome")
	}
}
