// Package ghostfolio is a small HTTP client for the Ghostfolio portfolio API.
// All failures surface as *ClientError values carrying one of the error codes
// the pipeline's error handler knows how to present to users.
package ghostfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ValidDateRanges lists the range tokens Ghostfolio accepts.
var ValidDateRanges = map[string]bool{
	"1d":  true,
	"wtd": true,
	"mtd": true,
	"ytd": true,
	"1y":  true,
	"5y":  true,
	"max": true,
}

// Error codes produced by this package.
const (
	CodeAPITimeout        = "API_TIMEOUT"
	CodeAPIError          = "API_ERROR"
	CodeAuthFailed        = "AUTH_FAILED"
	CodeInvalidTimePeriod = "INVALID_TIME_PERIOD"
)

// ClientError is the structured error consumed by capabilities as error codes.
type ClientError struct {
	Code   string
	Status int
	Detail string
}

func (e *ClientError) Error() string {
	parts := []string{e.Code}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, " | ")
}

// ErrorCode extracts the client error code from err, defaulting to API_ERROR.
func ErrorCode(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeAPIError
}

// ErrorStatus returns the HTTP status attached to err, or 0.
func ErrorStatus(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

const authEndpoint = "/api/v1/auth/anonymous"

// Client queries Ghostfolio portfolio endpoints with Bearer auth.
//
// Two auth modes are supported: a caller-supplied bearer token (the logged-in
// user's JWT, forwarded from the transport layer) or an access token that is
// exchanged via the anonymous auth endpoint and cached per base URL.
type Client struct {
	baseURL     string
	accessToken string
	bearerToken string
	httpClient  *http.Client
	tokens      *tokenCache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects a custom *http.Client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken pins the client to a caller-supplied JWT, skipping the
// anonymous-auth exchange entirely.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = strings.TrimSpace(token) }
}

// WithAccessToken sets the Ghostfolio security token used for the
// anonymous-auth exchange.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.accessToken = strings.TrimSpace(token) }
}

// WithTimeout overrides the default 15s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if normalized == "" {
		return nil, fmt.Errorf("ghostfolio: base URL is required")
	}
	c := &Client{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     sharedTokenCache,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bearerToken == "" && c.accessToken == "" {
		return nil, fmt.Errorf("ghostfolio: bearer token or access token is required")
	}
	return c, nil
}

// PortfolioDetails returns the portfolio details payload (holdings + summary).
func (c *Client) PortfolioDetails(ctx context.Context) (map[string]any, error) {
	return c.requestJSON(ctx, "/api/v1/portfolio/details", nil)
}

// PortfolioPerformance returns the v2 performance payload for a date range.
func (c *Client) PortfolioPerformance(ctx context.Context, dateRange string) (map[string]any, error) {
	if !ValidDateRanges[dateRange] {
		return nil, &ClientError{Code: CodeInvalidTimePeriod, Detail: "unsupported range: " + dateRange}
	}
	return c.requestJSON(ctx, "/api/v2/portfolio/performance", url.Values{"range": []string{dateRange}})
}

// Orders returns portfolio activities with an optional range filter.
// An empty dateRange returns all activities.
func (c *Client) Orders(ctx context.Context, dateRange string) (map[string]any, error) {
	var params url.Values
	if dateRange != "" {
		if !ValidDateRanges[dateRange] {
			return nil, &ClientError{Code: CodeInvalidTimePeriod, Detail: "unsupported range: " + dateRange}
		}
		params = url.Values{"range": []string{dateRange}}
	}
	return c.requestJSON(ctx, "/api/v1/order", params)
}

func (c *Client) requestJSON(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	token, err := c.currentToken(ctx, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.sendGet(ctx, path, params, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.tokens.Clear(c.baseURL)
		refreshed, err := c.currentToken(ctx, true)
		if err != nil {
			return nil, err
		}
		resp, err = c.sendGet(ctx, path, params, refreshed)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			return nil, &ClientError{Code: CodeAuthFailed, Status: http.StatusUnauthorized}
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ClientError{Code: CodeAPIError, Status: resp.StatusCode}
	}

	var payload map[string]any
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&payload); err != nil {
		return nil, &ClientError{Code: CodeAPIError, Detail: "Ghostfolio returned a non-JSON object response"}
	}
	return payload, nil
}

func (c *Client) sendGet(ctx context.Context, path string, params url.Values, bearer string) (*http.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &ClientError{Code: CodeAPIError, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	return resp, nil
}

// currentToken returns the caller-supplied bearer token when set, otherwise
// performs (or reuses) the anonymous-auth exchange.
func (c *Client) currentToken(ctx context.Context, forceRefresh bool) (string, error) {
	if c.bearerToken != "" {
		return c.bearerToken, nil
	}

	if !forceRefresh {
		if token, ok := c.tokens.Get(c.baseURL); ok {
			return token, nil
		}
	}

	body, err := json.Marshal(map[string]string{"accessToken": c.accessToken})
	if err != nil {
		return "", &ClientError{Code: CodeAuthFailed, Detail: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+authEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ClientError{Code: CodeAuthFailed, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", mapTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", &ClientError{Code: CodeAuthFailed, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ClientError{Code: CodeAPIError, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", mapTransportError(err)
	}
	var payload struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.AuthToken == "" {
		return "", &ClientError{Code: CodeAuthFailed, Detail: "auth response did not include authToken"}
	}

	c.tokens.Put(c.baseURL, payload.AuthToken)
	return payload.AuthToken, nil
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Code: CodeAPITimeout}
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return &ClientError{Code: CodeAPITimeout}
	}
	return &ClientError{Code: CodeAPIError, Detail: err.Error()}
}
