package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/datviz/datviz-app/internal/config"
)

// apiClient calls the DatViz JSON API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(cfg config.CLI) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.AuthToken,
		http:  &http.Client{Timeout: cfg.Timeout},
	}
}

// apiError is a non-2xx API reply.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// do sends body as JSON (when non-nil) and decodes the reply into out. The
// status code is returned for callers that distinguish 200 from 201.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type userReply struct {
	Status           string `json:"status"`
	UUID             string `json:"uuid"`
	AvailableCredits *int   `json:"available_credits"`
}

func (c *apiClient) check(ctx context.Context, ip string) (*userReply, error) {
	var out userReply
	_, err := c.do(ctx, http.MethodPost, "/api/user/check", map[string]string{"public_ip": ip}, &out)
	return &out, err
}

func (c *apiClient) register(ctx context.Context, email, ip string) (*userReply, error) {
	var out userReply
	_, err := c.do(ctx, http.MethodPost, "/api/user/register", map[string]string{"email": email, "public_ip": ip}, &out)
	return &out, err
}

type historyReply struct {
	UUID      string `json:"uuid"`
	Exchanges []struct {
		Prompt  string   `json:"prompt"`
		Status  string   `json:"status"`
		Titles  []string `json:"titles"`
		Credits int      `json:"credits"`
		Ts      int64    `json:"ts"`
	} `json:"exchanges"`
}

func (c *apiClient) history(ctx context.Context, uuid string) (*historyReply, error) {
	var out historyReply
	_, err := c.do(ctx, http.MethodGet, "/api/history?uuid="+url.QueryEscape(uuid), nil, &out)
	return &out, err
}

// streamURL turns the HTTP base URL into the background WebSocket URL.
func streamURL(base string, width, height int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/background"
	q := url.Values{}
	if width > 0 {
		q.Set("w", fmt.Sprint(width))
	}
	if height > 0 {
		q.Set("h", fmt.Sprint(height))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
