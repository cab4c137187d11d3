// Package restclient implements the gateway's pooled HTTP client: one
// instance per configured endpoint, shared by every connection handled by
// that endpoint's listener for the lifetime of the process.
package restclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/pfxrest/postfix-rest-api-connector/config"
	"github.com/pfxrest/postfix-rest-api-connector/logging"
)

// minIdleConnsPerHost is the floor spec §4.B sets for a warm keep-alive
// pool: "at least 4 idle connections retained per host."
const minIdleConnsPerHost = 4

// Result is one completed REST call.
type Result struct {
	StatusCode int
	Body       []byte
}

// Client is the pooled HTTP client for one endpoint.
type Client struct {
	endpoint  *config.Endpoint
	userAgent string
	http      *http.Client
	targetURL *url.URL
}

// New builds a Client for ep, configuring both HTTP/1.1 keep-alive and
// HTTP/2 (via golang.org/x/net/http2) on the same transport so a backend
// that negotiates h2 gets a single multiplexed connection instead of
// serializing on HTTP/1.1 keep-alive slots.
func New(ep *config.Endpoint, userAgent string) (*Client, error) {
	u, err := url.Parse(ep.Target)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: parsing target: %v", ep.Name, err)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost:   minIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		// HTTP/2 is an enhancement, not a requirement; keep going on HTTP/1.1.
		logging.Warnf("endpoint %q: could not configure HTTP/2 transport: %v", ep.Name, err)
	}

	return &Client{
		endpoint:  ep,
		userAgent: userAgent,
		targetURL: u,
		http: &http.Client{
			Transport: transport,
		},
	}, nil
}

// Get issues a GET request against the client's target URL with the given
// query parameters, enforcing the endpoint's request-timeout as a hard
// per-call deadline.
func (c *Client) Get(ctx context.Context, query url.Values, requestID string) (*Result, error) {
	u := *c.targetURL
	u.RawQuery = query.Encode()
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %v", err)
	}
	return c.do(ctx, req, requestID)
}

// Post issues a POST request with an application/x-www-form-urlencoded
// body, as the policy handler needs.
func (c *Client) Post(ctx context.Context, body string, requestID string) (*Result, error) {
	req, err := http.NewRequest(http.MethodPost, c.targetURL.String(), strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, req, requestID)
}

func (c *Client) do(ctx context.Context, req *http.Request, requestID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.endpoint.RequestTimeout)*time.Millisecond)
	defer cancel()

	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Auth-Token", c.endpoint.AuthToken)
	if requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %v", err)
	}

	return &Result{StatusCode: resp.StatusCode, Body: body}, nil
}

// Ping probes the endpoint's target host once at startup with a HEAD
// request and returns any transport error. Its error never fails startup —
// a backend coming up after the gateway is normal — the caller only logs a
// warning so an operator can see a misconfigured target immediately.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.targetURL.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Auth-Token", c.endpoint.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
