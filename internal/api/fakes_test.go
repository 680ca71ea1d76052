package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/datviz/datviz-app/internal/insights"
	"github.com/datviz/datviz-app/internal/ratelimit"
	"github.com/datviz/datviz-app/internal/users"
)

const testToken = "test-token"

type fakeUsers struct {
	mu     sync.Mutex
	byUUID map[string]*users.User
	byIP   map[string]*users.User
	err    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byUUID: map[string]*users.User{}, byIP: map[string]*users.User{}}
}

func (f *fakeUsers) add(uuid, ip string, credits int) *users.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &users.User{UUID: uuid, AvailableCredits: credits}
	f.byUUID[uuid] = u
	f.byIP[ip] = u
	return u
}

func (f *fakeUsers) credits(uuid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUUID[uuid].AvailableCredits
}

func (f *fakeUsers) FindByIP(_ context.Context, ip string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byIP[ip]; ok {
		c := *u
		return &c, nil
	}
	return nil, users.ErrNotFound
}

func (f *fakeUsers) FindByUUID(_ context.Context, uuid string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byUUID[uuid]; ok {
		c := *u
		return &c, nil
	}
	return nil, users.ErrNotFound
}

func (f *fakeUsers) Register(_ context.Context, email, ip string) (*users.User, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if u, err := f.FindByIP(context.Background(), ip); err == nil {
		return u, false, nil
	}
	u := f.add(users.UserUUID(email, ip), ip, users.DefaultFreeCredits)
	c := *u
	return &c, true, nil
}

func (f *fakeUsers) Deduct(_ context.Context, uuid string, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byUUID[uuid]
	if !ok {
		return 0, users.ErrNotFound
	}
	if u.AvailableCredits < amount {
		return u.AvailableCredits, users.ErrInsufficientCredits
	}
	u.AvailableCredits -= amount
	return u.AvailableCredits, nil
}

type fakeAnalyzer struct {
	summary    *insights.Summary
	summaryErr error
	graphs     *insights.GraphResult
	graphErr   error
	prompts    []string
	summarized []int // rows passed to each Summarize call
}

func (a *fakeAnalyzer) Summarize(_ context.Context, _ string, rows []map[string]any) (*insights.Summary, error) {
	a.summarized = append(a.summarized, len(rows))
	if a.summaryErr != nil {
		return nil, a.summaryErr
	}
	s := *a.summary
	return &s, nil
}

func (a *fakeAnalyzer) GenerateGraphs(_ context.Context, prompt string, _ []map[string]any) (*insights.GraphResult, error) {
	a.prompts = append(a.prompts, prompt)
	if a.graphErr != nil {
		return nil, a.graphErr
	}
	g := *a.graphs
	return &g, nil
}

type sessionCall struct {
	op, id, status, uuid string
}

type fakeSessions struct {
	mu    sync.Mutex
	calls []sessionCall
}

func (s *fakeSessions) MarkStatus(_ context.Context, id, status, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sessionCall{"status", id, status, uuid})
	return nil
}

func (s *fakeSessions) MarkAuthenticated(_ context.Context, id, status, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sessionCall{"auth", id, status, uuid})
	return nil
}

func (s *fakeSessions) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sessionCall{"clear", id, "", ""})
	return nil
}

type fakeLimiter struct {
	mu   sync.Mutex
	deny map[string]bool // rule key -> deny
	ids  []string
}

func (l *fakeLimiter) Allow(_ context.Context, id string, rule ratelimit.Rule) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
	return !l.deny[rule.Key], nil
}

func (l *fakeLimiter) RetryAfter(context.Context, string, ratelimit.Rule) time.Duration {
	return 42500 * time.Millisecond
}

type published struct {
	subject string
	event   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) PublishEvent(subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{subject, event})
	return nil
}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.subject
	}
	return out
}

type fakeIP struct {
	ip string
}

func (f fakeIP) PublicIP(context.Context) (string, bool) {
	return f.ip, f.ip != ""
}

type testEnv struct {
	users     *fakeUsers
	analyzer  *fakeAnalyzer
	sessions  *fakeSessions
	limiter   *fakeLimiter
	publisher *fakePublisher
	handler   http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users: newFakeUsers(),
		analyzer: &fakeAnalyzer{
			summary: &insights.Summary{Insights: "Sales grow.", Suggestions: []string{"a", "b", "c", "d", "e"}, Credits: 2},
			graphs: &insights.GraphResult{
				Status:  insights.StatusSuccess,
				Graphs:  []insights.RawGraph{{GraphJSON: map[string]any{"data": []any{}, "layout": map[string]any{}}, Title: "Monthly revenue by sales region"}},
				Credits: 5,
			},
		},
		sessions:  &fakeSessions{},
		limiter:   &fakeLimiter{deny: map[string]bool{}},
		publisher: &fakePublisher{},
	}
	h := New(Config{AuthToken: testToken, MaxUploadBytes: 1 << 20}, Deps{
		Users:     env.users,
		Analyzer:  env.analyzer,
		Sessions:  env.sessions,
		Limiter:   env.limiter,
		Publisher: env.publisher,
		IP:        fakeIP{ip: "203.0.113.9"},
	})
	env.handler = h.Routes()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
