// Package upstream implements the DeviceClient port against the
// device-management REST API.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DeviceClient = (*Client)(nil)

const (
	tokenPath         = "/oauth/token"
	organizationsPath = "/v2/organizations"
	tokenScope        = "monitoring"

	// maxErrorBody caps how much of an upstream error body is kept for display.
	maxErrorBody = 2048
)

// Client implements driven.DeviceClient over HTTP.
type Client struct {
	http        *http.Client
	baseURL     string
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a Client on http.DefaultTransport. The Client is shared by
// every account, so responses are never cached: a response cache keyed by URL
// would hand one account's organizations to another.
//
// Every call is bounded by callTimeout in addition to the caller's context.
func NewClient(baseURL string, callTimeout time.Duration, logger *slog.Logger) *Client {
	return NewClientWithHTTPClient(&http.Client{Transport: http.DefaultTransport}, baseURL, callTimeout, logger)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, callTimeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:        httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// tokenResponse is the body of a successful client-credentials exchange.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// organizationJSON is one element of the organization collection. The API
// has returned ids both as numbers and as strings.
type organizationJSON struct {
	ID   flexibleID `json:"id"`
	Name string     `json:"name"`
}

// flexibleID accepts a JSON string or number and keeps its text form.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("organization id: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

// deviceJSON is one element of the device collection with warranty metadata.
type deviceJSON struct {
	SerialNumber string `json:"sn"`
	ExpiryDate   string `json:"expiry_date"`
	Expired      bool   `json:"expired"`
}

// collection wraps every list response.
type collection[T any] struct {
	Data []T `json:"data"`
}

// FetchAccessToken performs the client-credentials grant. A non-2xx status or
// a body without access_token is an *model.AuthError.
func (c *Client) FetchAccessToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"scope":         {tokenScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upstream: token exchange rejected", "status", resp.StatusCode)
		return "", &model.AuthError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		c.logger.Warn("upstream: token response missing access_token", "status", resp.StatusCode)
		return "", &model.AuthError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	return tok.AccessToken, nil
}

// ListOrganizations fetches the organization collection.
func (c *Client) ListOrganizations(ctx context.Context, token string) ([]model.Organization, error) {
	var orgs collection[organizationJSON]
	if err := c.getJSON(ctx, token, "list organizations", organizationsPath, &orgs); err != nil {
		return nil, err
	}

	result := make([]model.Organization, 0, len(orgs.Data))
	for _, o := range orgs.Data {
		result = append(result, model.Organization{ID: string(o.ID), Name: o.Name})
	}

	c.logger.Debug("upstream: organizations listed", "count", len(result))
	return result, nil
}

// ListDevices fetches the devices of one organization including warranty data.
func (c *Client) ListDevices(ctx context.Context, token, organizationID string) ([]model.Device, error) {
	path := fmt.Sprintf("%s/%s/devices?include=warranty", organizationsPath, url.PathEscape(organizationID))

	var devices collection[deviceJSON]
	if err := c.getJSON(ctx, token, "list devices", path, &devices); err != nil {
		return nil, err
	}

	result := make([]model.Device, 0, len(devices.Data))
	for _, d := range devices.Data {
		result = append(result, model.Device{
			SerialNumber: d.SerialNumber,
			ExpiryDate:   d.ExpiryDate,
			Expired:      d.Expired,
		})
	}

	c.logger.Debug("upstream: devices listed", "organization_id", organizationID, "count", len(result))
	return result, nil
}

// getJSON performs an authenticated GET and decodes the body into v. Non-2xx
// responses become *model.UpstreamError.
func (c *Client) getJSON(ctx context.Context, token, operation, path string, v any) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &model.UpstreamError{Operation: operation, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}
