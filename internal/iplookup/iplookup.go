// Package iplookup resolves the caller's public IP address through a JSON
// echo service such as ipify.
package iplookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/metrics"
)

// DefaultEndpoint returns {"ip": "<address>"} for the calling host.
const DefaultEndpoint = "https://api64.ipify.org?format=json"

// maxBody bounds how much of a response is read.
const maxBody = 4 << 10

// Failure kinds. A failed Result wraps exactly one of these.
var (
	ErrTransport = errors.New("iplookup: transport failure")
	ErrStatus    = errors.New("iplookup: non-success status")
	ErrDecode    = errors.New("iplookup: malformed response body")
	ErrShape     = errors.New("iplookup: response has no ip")
)

// Result is the outcome of one lookup. Exactly one of IP and Err is set.
type Result struct {
	IP  string
	Err error
}

// OK reports whether the lookup produced an address.
func (r Result) OK() bool { return r.Err == nil && r.IP != "" }

// Client performs lookups. The zero value uses DefaultEndpoint and
// http.DefaultClient.
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

// New returns a Client for endpoint with the given request timeout. An empty
// endpoint selects DefaultEndpoint.
func New(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

type payload struct {
	IP *string `json:"ip"`
}

// Lookup issues a single GET to the endpoint. It never retries and never
// caches.
func (c *Client) Lookup(ctx context.Context) Result {
	res := c.lookup(ctx)
	if res.OK() {
		metrics.IPLookups.WithLabelValues("ok").Inc()
	} else {
		metrics.IPLookups.WithLabelValues("failed").Inc()
	}
	return res
}

func (c *Client) lookup(ctx context.Context) Result {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: build request: %v", ErrTransport, err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return Result{Err: fmt.Errorf("%w: %s", ErrStatus, resp.Status)}
	}

	var p payload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&p); err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrDecode, err)}
	}
	if p.IP == nil || *p.IP == "" {
		return Result{Err: ErrShape}
	}
	return Result{IP: *p.IP}
}

// PublicIP looks up the address and reports failures only through the log:
// on any failure it returns ("", false).
func (c *Client) PublicIP(ctx context.Context) (string, bool) {
	res := c.Lookup(ctx)
	if !res.OK() {
		log.Warn().Err(res.Err).Msg("[iplookup] error fetching public IP")
		return "", false
	}
	return res.IP, true
}
