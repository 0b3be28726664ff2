// Package validation holds input checks for values that end up in outbound
// requests or process arguments.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// dangerousChars are rejected in anything handed to a system command.
var dangerousChars = []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r"}

// ValidateURL validates URLs for browser auto-open functionality.
// Prevents command injection via URL parameters.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	for _, char := range dangerousChars {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %s", char)
		}
	}

	if strings.Contains(rawURL, " ") {
		return fmt.Errorf("URL contains spaces (possible command injection attempt)")
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ValidateProxyTarget checks a proxy rule's upstream URL. The target is used as
// a prefix for the original request path, so query strings and fragments are
// not allowed.
func ValidateProxyTarget(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid proxy target: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("proxy target scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("proxy target %q has no host", rawURL)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("proxy target %q must not carry a query or fragment", rawURL)
	}
	return nil
}

// ValidateProxyPrefix checks a proxy rule's path prefix.
func ValidateProxyPrefix(prefix string) error {
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("proxy prefix %q must start with /", prefix)
	}
	if strings.ContainsAny(prefix, "?#") {
		return fmt.Errorf("proxy prefix %q must be a plain path", prefix)
	}
	return nil
}

// ValidateEditorFile checks a file name received from the browser before it
// is passed to the editor command.
func ValidateEditorFile(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty file name")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("file name %q looks like a flag", name)
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return fmt.Errorf("file name contains control characters")
	}
	return nil
}
