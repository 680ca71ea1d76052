package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/datviz/datviz-app/internal/config"
)

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base    string
		w, h    int
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", 0, 0, "ws://localhost:8080/ws/background", false},
		{"https://datviz.example/", 640, 480, "wss://datviz.example/ws/background?h=480&w=640", false},
		{"http://host/prefix", 10, 0, "ws://host/prefix/ws/background?w=10", false},
		{"ftp://host", 0, 0, "", true},
	}
	for _, tt := range tests {
		got, err := streamURL(tt.base, tt.w, tt.h)
		if (err != nil) != tt.wantErr {
			t.Fatalf("streamURL(%q) err = %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("streamURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestAPIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid authorization token."})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/api/user/check":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "Existing", "uuid": "u-" + body["public_ip"]})
		case "/api/user/register":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "New", "uuid": "u-1", "available_credits": 3000})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := newAPIClient(config.CLI{BaseURL: srv.URL + "/", AuthToken: "tok", Timeout: time.Second})

	got, err := c.check(ctx, "1.2.3.4")
	if err != nil || got.Status != "Existing" || got.UUID != "u-1.2.3.4" {
		t.Fatalf("check = %+v, %v", got, err)
	}
	reg, err := c.register(ctx, "a@example.com", "1.2.3.4")
	if err != nil || reg.AvailableCredits == nil || *reg.AvailableCredits != 3000 {
		t.Fatalf("register = %+v, %v", reg, err)
	}

	bad := newAPIClient(config.CLI{BaseURL: srv.URL, AuthToken: "nope", Timeout: time.Second})
	_, err = bad.check(ctx, "x")
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || apiErr.Message != "Invalid authorization token." {
		t.Fatalf("err = %v", err)
	}
}
