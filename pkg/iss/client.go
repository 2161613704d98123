package iss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL serves anonymous and passport-authenticated requests.
	DefaultBaseURL = "https://iss.moex.com/iss"
	// TokenBaseURL serves requests authenticated with an API token.
	TokenBaseURL = "https://apim.moex.com/iss"
	// DefaultAuthURL issues the passport certificate for basic-auth credentials.
	DefaultAuthURL = "https://passport.moex.com/authenticate"

	// passportCookie carries the certificate issued by the auth endpoint.
	passportCookie = "MicexPassportCert"

	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond
	defaultThrottleInterval = 200 * time.Millisecond

	userAgent = "algopack-api-go"

	maxErrorBodyBytes = 512
)

// Client is a session against the ISS HTTP API: it holds the credential, the
// transport, the retry budget and the anonymous-request pacing. A Client is
// safe for concurrent use.
type Client struct {
	baseURL    string
	authURL    string
	httpClient *http.Client
	maxRetries int
	logger     *log.Logger
	throttle   *throttle

	token string
	cert  certHolder
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the data endpoint URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithAuthURL overrides the passport authentication URL.
func WithAuthURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.authURL = url
		}
	}
}

// WithToken switches the client to API-token authentication. Unless a base
// URL is set explicitly, requests go to the token endpoint.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithPassportCert seeds the client with a previously issued certificate.
func WithPassportCert(cert string) Option {
	return func(c *Client) {
		c.cert.set(cert)
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithThrottleInterval sets the minimum spacing between anonymous requests.
// Zero or negative disables pacing entirely.
func WithThrottleInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.throttle = newThrottle(interval)
	}
}

// WithLogger injects a custom logger (defaults to log.Default()).
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient constructs an ISS API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		authURL:    DefaultAuthURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
		logger:     log.Default(),
		throttle:   newThrottle(defaultThrottleInterval),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		if client.token != "" {
			client.baseURL = TokenBaseURL
		} else {
			client.baseURL = DefaultBaseURL
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if client.logger == nil {
		client.logger = log.Default()
	}
	return client
}

// NewClientFromConfig builds a client from a loaded Config; extra options
// apply on top.
func NewClientFromConfig(cfg *Config, opts ...Option) *Client {
	base := cfg.options()
	return NewClient(append(base, opts...)...)
}

// Get fetches a single page of the named resource. The path is given as
// slash-separated logical segments without the ".json" suffix.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Document, error) {
	if !c.Authorized() {
		if err := c.throttle.wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := c.endpoint(path)
	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("iss: build request: %w", err)
		}
		if len(query) > 0 {
			req.URL.RawQuery = query.Encode()
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if cert := c.cert.get(); cert != "" {
			req.AddCookie(&http.Cookie{Name: passportCookie, Value: cert})
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("iss: get %s: %w", path, err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("iss: read response: %w", readErr)
			} else {
				doc, err := parseResponse(requestURL(endpoint), resp, body)
				if err == nil {
					return doc, nil
				}
				var respErr *ResponseError
				if errors.As(err, &respErr) && respErr.IsRetryable() {
					lastErr = err
				} else {
					return nil, err
				}
			}
		}

		if attempt < c.maxRetries {
			c.logf("iss: retrying %s (attempt %d/%d): %v", path, attempt+1, c.maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("iss: request failed without error detail")
}

// Table fetches a single page and decodes one section of it.
func (c *Client) Table(ctx context.Context, path, section string, query url.Values) (*Table, error) {
	doc, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return doc.Table(section)
}

// FetchTable pages through the named section with the "start" cursor,
// beginning at offset, until an empty page arrives or at least limit rows
// have been read. A non-positive limit fetches a single page. The returned
// table keeps the declared columns even when no rows match.
func (c *Client) FetchTable(ctx context.Context, path, section string, query url.Values, offset, limit int) (*Table, error) {
	if offset < 0 {
		offset = 0
	}
	q := cloneQuery(query)
	start := offset
	var result *Table
	for {
		q.Set("start", strconv.Itoa(start))
		page, err := c.Table(ctx, path, section, q)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = page
		} else if err := result.appendRows(page); err != nil {
			return nil, err
		}
		if page.Len() == 0 || limit <= 0 {
			break
		}
		start += page.Len()
		if start-offset >= limit {
			break
		}
	}
	return result, nil
}

// endpoint joins the base URL with the cleaned logical path and appends the
// ".json" suffix the service expects.
func (c *Client) endpoint(path string) string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return c.baseURL + "/" + strings.Join(segments, "/") + ".json"
}

func parseResponse(reqURL string, resp *http.Response, body []byte) (*Document, error) {
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthError{URL: reqURL, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ResponseError{URL: reqURL, Status: resp.StatusCode, Body: truncateBody(body)}
	}
	// A successful status with a non-JSON body is the service's way of
	// bouncing unauthenticated clients to an HTML notice.
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil, &AuthError{URL: reqURL, Status: http.StatusForbidden}
	}
	return ParseDocument(body)
}

func requestURL(endpoint string) string {
	return strings.TrimSuffix(endpoint, ".json")
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyBytes {
		s = s[:maxErrorBodyBytes]
	}
	return s
}

func cloneQuery(query url.Values) url.Values {
	out := make(url.Values, len(query)+1)
	for key, values := range query {
		out[key] = append([]string(nil), values...)
	}
	return out
}

// logf prints debug output when a logger is configured.
func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
