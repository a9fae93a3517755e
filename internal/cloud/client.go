package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults for the account API.
const (
	DefaultBaseURL = "https://api.cp.dyson.com"
	DefaultCountry = "GB"

	defaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 4 << 20

	authenticatePath = "/v1/userregistration/authenticate"
	manifestPath     = "/v2/provisioningservice/manifest"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root. Default: DefaultBaseURL.
	BaseURL string

	// Country is sent with authentication requests. Default: DefaultCountry.
	Country string

	// Timeout bounds each HTTP request. Default: 10s.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// HTTPClient overrides the HTTP client. Timeout and InsecureSkipVerify
	// are ignored when set.
	HTTPClient *http.Client
}

// Client is an unauthenticated account API client.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL    string
	country    string
	httpClient *http.Client
}

// NewClient creates a client from cfg, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	country := cfg.Country
	if country == "" {
		country = DefaultCountry
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}

	return &Client{
		baseURL:    baseURL,
		country:    country,
		httpClient: httpClient,
	}
}

// authRequest is the authentication request body.
type authRequest struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

// authResponse is the authentication response body.
type authResponse struct {
	Account  string `json:"Account"`
	Password string `json:"Password"`
}

// Authenticate exchanges account credentials for a Session.
//
// Returns:
//   - *Session: authenticated session for manifest requests
//   - error: ErrAuthentication for rejected credentials, ErrUnexpectedStatus
//     for other non-2xx responses, ErrInvalidResponse for undecodable bodies
func (c *Client) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(authRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encoding authentication request: %w", err)
	}

	endpoint := c.baseURL + authenticatePath + "?" + url.Values{"country": {c.country}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building authentication request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	var auth authResponse
	if err := c.do(req, &auth); err != nil {
		return nil, err
	}
	if auth.Account == "" || auth.Password == "" {
		return nil, fmt.Errorf("%w: authentication response missing account or password", ErrInvalidResponse)
	}

	return &Session{
		client:   c,
		account:  auth.Account,
		password: auth.Password,
	}, nil
}

// do sends req and decodes a JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: reading body: %w", ErrInvalidResponse, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrAuthentication, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s: HTTP %d", ErrUnexpectedStatus, req.Method, req.URL.Path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

// Session is an authenticated account session.
type Session struct {
	client   *Client
	account  string
	password string
}

// Account returns the account identifier issued at authentication.
func (s *Session) Account() string {
	return s.account
}

// Devices lists the account's device manifest in the order returned.
func (s *Session) Devices(ctx context.Context) ([]ManifestEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+manifestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.account, s.password)

	var entries []ManifestEntry
	if err := s.client.do(req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
