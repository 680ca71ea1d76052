package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, p *Pages, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func TestPages_RedirectsGuardedRoute(t *testing.T) {
	p := NewPages(DefaultTable(), func(*http.Request) (Flags, error) {
		return Flags{UserAuthenticated: strp("true"), UserStatus: strp("New")}, nil
	}, "DatViz AI")

	rec := serve(t, p, "/chat")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want %q", loc, "/")
	}
}

func TestPages_RendersChatForExistingUser(t *testing.T) {
	p := NewPages(DefaultTable(), func(*http.Request) (Flags, error) {
		return Flags{UserAuthenticated: strp("true"), UserStatus: strp("Existing")}, nil
	}, "DatViz AI")

	rec := serve(t, p, "/chat")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "<h1>Chat</h1>") {
		t.Errorf("body does not contain the chat view: %s", rec.Body.String())
	}
}

func TestPages_NotFound(t *testing.T) {
	p := NewPages(DefaultTable(), nil, "DatViz AI")

	rec := serve(t, p, "/foo/bar")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "/foo/bar") {
		t.Errorf("not-found body should echo the path")
	}
}

func TestPages_LoadErrorFailsClosed(t *testing.T) {
	p := NewPages(DefaultTable(), func(*http.Request) (Flags, error) {
		return Flags{UserAuthenticated: strp("true"), UserStatus: strp("Existing")}, errors.New("redis down")
	}, "DatViz AI")

	rec := serve(t, p, "/chat")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}

	rec = serve(t, p, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("landing status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `<canvas id="bg">`) {
		t.Errorf("landing page should carry the background canvas")
	}
}
