// Package feed downloads and indexes external phishing feeds.
package feed

import (
	"bufio"
	"io"
	"strings"

	"catchphish/internal/validation"
)

// Feed formats
const (
	FormatURLList    = "url-list"
	FormatDomainList = "domain-list"
	FormatHostfile   = "hostfile"
)

// Parser extracts normalized domain names from a feed body.
type Parser interface {
	Parse(r io.Reader) ([]string, error)
}

// URLListParser parses one URL per line, as published by OpenPhish and
// PhishTank. Each URL is reduced to its host.
type URLListParser struct{}

func (p *URLListParser) Parse(r io.Reader) ([]string, error) {
	return scanLines(r, func(line string) string { return line })
}

// DomainListParser parses one-domain-per-line format.
type DomainListParser struct{}

func (p *DomainListParser) Parse(r io.Reader) ([]string, error) {
	return scanLines(r, func(line string) string {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		return line
	})
}

// HostfileParser parses hosts-file format: "127.0.0.1 domain" or "0.0.0.0 domain".
type HostfileParser struct{}

func (p *HostfileParser) Parse(r io.Reader) ([]string, error) {
	return scanLines(r, func(line string) string {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return ""
		}
		switch host := strings.ToLower(fields[1]); host {
		case "localhost", "localhost.localdomain", "broadcasthost", "local":
			return ""
		default:
			return host
		}
	})
}

// scanLines applies extract to every non-comment line and keeps the
// normalized, deduplicated domains in input order.
func scanLines(r io.Reader, extract func(string) string) ([]string, error) {
	seen := make(map[string]struct{})
	var domains []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw := extract(line)
		if raw == "" {
			continue
		}
		domain, ok := validation.NormalizeDomain(raw)
		if !ok {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		domains = append(domains, domain)
	}
	return domains, scanner.Err()
}

// ParserForFormat returns the appropriate parser for a feed format string.
func ParserForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case FormatHostfile:
		return &HostfileParser{}
	case FormatDomainList, "domains":
		return &DomainListParser{}
	default:
		return &URLListParser{}
	}
}
