package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrInvalidURL is returned when input cannot be reduced to a domain.
	ErrInvalidURL = errors.New("invalid url")
	// ErrPrivateHost is returned when a URL points at a private or reserved address.
	ErrPrivateHost = errors.New("url points to a private or reserved address")
)

var (
	// hostLabelPattern is a label below the TLD. Underscores are accepted because
	// feeds list service names (_dmarc) and CDN hostnames that contain them.
	hostLabelPattern = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]{0,61}[a-z0-9_])?$`)
	// tldPattern is the final label: alphanumerics and hyphens only.
	tldPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

// ExtractDomain reduces a URL or bare hostname to a normalized domain:
// lowercase, with scheme, userinfo, port, path, query, fragment and trailing dot removed.
func ExtractDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	// Bare hostnames and host/path strings have no scheme; give them one so url.Parse
	// puts the host in the right field.
	if !strings.Contains(s, "://") {
		s = "http://" + strings.TrimPrefix(s, "//")
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	// Internationalized names are compared in their punycode form.
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}

	if !ValidateDomain(host) {
		return "", fmt.Errorf("%w: malformed host %q", ErrInvalidURL, host)
	}
	return host, nil
}

// NormalizeDomain is ExtractDomain without the error, for bulk inputs such as feed
// entries where unparseable lines are skipped.
func NormalizeDomain(raw string) (string, bool) {
	d, err := ExtractDomain(raw)
	if err != nil {
		return "", false
	}
	return d, true
}

// ValidateDomain checks that a lowercase hostname is syntactically valid.
func ValidateDomain(domain string) bool {
	if domain == "" || len(domain) > 253 || strings.ContainsAny(domain, "/\\ ") {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	last := len(labels) - 1
	for _, l := range labels[:last] {
		if !hostLabelPattern.MatchString(l) {
			return false
		}
	}
	return tldPattern.MatchString(labels[last])
}

// ValidateURL checks if a URL is valid and uses an allowed scheme (http/https only).
// This prevents javascript:, data:, vbscript:, and other dangerous URL schemes.
func ValidateURL(urlStr string) (bool, string) {
	if urlStr == "" {
		return false, "URL is required"
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false, "Invalid URL format"
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, "URL must use http:// or https:// scheme"
	}

	if u.Host == "" {
		return false, "URL must have a valid host"
	}

	return true, ""
}

// IsPrivateIP checks if an IP address is in a private/reserved range.
// Used to prevent SSRF when fetching suspect pages.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	// Cloud metadata endpoints (AWS/GCP, Azure)
	for _, blocked := range []string{"169.254.169.254", "168.63.129.16"} {
		if ip.Equal(net.ParseIP(blocked)) {
			return true
		}
	}
	return false
}

// Resolver looks up the addresses of a host.
type Resolver func(host string) ([]net.IP, error)

// IsPrivateHost checks if a hostname resolves to a private IP address.
// Returns true if the host is private/blocked, false if it's safe to access.
func IsPrivateHost(host string, lookup Resolver) (bool, error) {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	if lookup == nil {
		lookup = net.LookupIP
	}

	ips, err := lookup(hostname)
	if err != nil {
		// If we can't resolve, be conservative and block
		return true, err
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return true, nil
		}
	}
	return false, nil
}

// ValidateURLForFetch validates that a URL is safe to fetch from the server side.
// Blocks private IPs, localhost, and cloud metadata endpoints.
func ValidateURLForFetch(urlStr string, lookup Resolver) error {
	if ok, msg := ValidateURL(urlStr); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidURL, msg)
	}
	u, _ := url.Parse(urlStr)

	private, err := IsPrivateHost(u.Host, lookup)
	if err != nil {
		return fmt.Errorf("cannot resolve %s: %w", u.Hostname(), err)
	}
	if private {
		return ErrPrivateHost
	}
	return nil
}
