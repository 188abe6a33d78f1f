// Package validation checks user-supplied links before they are stored or rendered.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLValidationError reports which field held a rejected link and why.
type URLValidationError struct {
	Field   string
	Message string
	URL     string
}

func (e URLValidationError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// MaxURLLength bounds stored links.
const MaxURLLength = 2048

// ValidateURL accepts an empty value or an absolute http(s) URL with a host and
// no embedded credentials. With requireHTTPS only https links pass.
func ValidateURL(raw, field string, requireHTTPS bool) error {
	if raw == "" {
		return nil
	}
	reject := func(msg string) error {
		return URLValidationError{Field: field, Message: msg, URL: raw}
	}

	if len(raw) > MaxURLLength {
		return reject(fmt.Sprintf("URL must be at most %d characters", MaxURLLength))
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return reject("Invalid URL")
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if requireHTTPS {
			return reject("URL must use HTTPS")
		}
	default:
		return reject("URL scheme must be http or https")
	}

	if u.User != nil {
		return reject("URL must not contain credentials")
	}
	return nil
}
