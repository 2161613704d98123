package iss

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredentials indicates an Authenticate call without a username/password pair.
	ErrNoCredentials = errors.New("iss: username and password required")
	// ErrNoPassportCert indicates the passport endpoint accepted the request
	// but returned no certificate cookie.
	ErrNoPassportCert = errors.New("iss: passport certificate missing in response")
)

// AuthError reports a request rejected for missing or invalid credentials.
// The service signals this with HTTP 403 or by answering a data request with
// a non-JSON body.
type AuthError struct {
	URL    string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("iss: request to %s failed with status %d: please authenticate", e.URL, e.Status)
}

// ResponseError reports a non-2xx HTTP status from the service.
type ResponseError struct {
	URL    string
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("iss: request to %s failed with status %d: please try again later", e.URL, e.Status)
	}
	return fmt.Sprintf("iss: request to %s failed with status %d: %s", e.URL, e.Status, e.Body)
}

// IsRetryable reports whether the status indicates a transient condition.
func (e *ResponseError) IsRetryable() bool {
	return e.Status >= 500 || e.Status == 429
}

// MalformedResponseError reports a payload that violates the tabular contract:
// a missing section, a row/column count mismatch, or a typed cell that cannot
// be parsed as its declared type.
type MalformedResponseError struct {
	Section string
	Reason  string
}

func (e *MalformedResponseError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("iss: malformed response: %s", e.Reason)
	}
	return fmt.Sprintf("iss: malformed response in section %q: %s", e.Section, e.Reason)
}

func malformedf(section, format string, args ...interface{}) error {
	return &MalformedResponseError{Section: section, Reason: fmt.Sprintf(format, args...)}
}
