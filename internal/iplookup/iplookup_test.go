package iplookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantIP  string
		wantErr error
	}{
		{"success", http.StatusOK, `{"ip":"1.2.3.4"}`, "1.2.3.4", nil},
		{"ipv6", http.StatusOK, `{"ip":"2001:db8::1"}`, "2001:db8::1", nil},
		{"malformed body", http.StatusOK, `not json`, "", ErrDecode},
		{"missing ip", http.StatusOK, `{"addr":"1.2.3.4"}`, "", ErrShape},
		{"empty ip", http.StatusOK, `{"ip":""}`, "", ErrShape},
		{"server error", http.StatusInternalServerError, `{"ip":"1.2.3.4"}`, "", ErrStatus},
		{"rate limited", http.StatusTooManyRequests, ``, "", ErrStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("unexpected method %s", r.Method)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res := New(srv.URL, time.Second).Lookup(context.Background())
			if res.IP != tt.wantIP {
				t.Errorf("IP = %q, want %q", res.IP, tt.wantIP)
			}
			if tt.wantErr == nil {
				if !res.OK() || res.Err != nil {
					t.Errorf("expected success, got %v", res.Err)
				}
				return
			}
			if res.OK() {
				t.Fatal("expected failure")
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}
}

func TestLookup_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := New(url, time.Second).Lookup(context.Background())
	if res.OK() {
		t.Fatal("expected failure against closed server")
	}
	if !errors.Is(res.Err, ErrTransport) {
		t.Errorf("Err = %v, want ErrTransport", res.Err)
	}
}

func TestLookup_SingleRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	New(srv.URL, time.Second).Lookup(context.Background())
	if calls != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls)
	}
}

func TestPublicIP(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"1.2.3.4"}`))
	}))
	defer ok.Close()

	if ip, found := New(ok.URL, time.Second).PublicIP(context.Background()); !found || ip != "1.2.3.4" {
		t.Errorf("PublicIP = (%q, %v), want (1.2.3.4, true)", ip, found)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":`))
	}))
	defer bad.Close()

	if ip, found := New(bad.URL, time.Second).PublicIP(context.Background()); found || ip != "" {
		t.Errorf("PublicIP = (%q, %v), want (\"\", false)", ip, found)
	}
}

func TestNew_DefaultEndpoint(t *testing.T) {
	if c := New("", time.Second); c.Endpoint != DefaultEndpoint {
		t.Errorf("Endpoint = %q, want %q", c.Endpoint, DefaultEndpoint)
	}
}
