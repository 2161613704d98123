package iss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// certHolder guards the passport certificate for concurrent readers.
type certHolder struct {
	mu   sync.RWMutex
	cert string
}

func (h *certHolder) get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cert
}

func (h *certHolder) set(cert string) {
	h.mu.Lock()
	h.cert = cert
	h.mu.Unlock()
}

// Authorized reports whether the client carries a credential. Anonymous
// clients are paced between requests; authorized ones are not.
func (c *Client) Authorized() bool {
	return c.token != "" || c.cert.get() != ""
}

// PassportCert returns the certificate issued by Authenticate, if any.
func (c *Client) PassportCert() string { return c.cert.get() }

// Authenticate exchanges username/password for a passport certificate and
// stores it on the client. Subsequent requests carry the certificate cookie.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrNoCredentials
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL, nil)
	if err != nil {
		return fmt.Errorf("iss: build auth request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("iss: authenticate: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{URL: c.authURL, Status: resp.StatusCode}
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == passportCookie && cookie.Value != "" {
			c.cert.set(cookie.Value)
			return nil
		}
	}
	return ErrNoPassportCert
}
