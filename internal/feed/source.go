package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

const maxFeedSize = 100 * 1024 * 1024 // 100 MB

var (
	// ErrNotModified is returned internally when the server answers 304.
	ErrNotModified = errors.New("feed not modified")
	// ErrTruncated is returned when a feed body exceeds the size limit.
	ErrTruncated = errors.New("feed exceeds maximum size, skipping to avoid partial data")
)

// Source yields the current list of domains from one feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// HTTPSource downloads a feed over HTTP. It remembers the ETag and the last
// successful body so that a 304 answer still yields the full domain list.
type HTTPSource struct {
	name   string
	url    string
	parser Parser
	client *http.Client

	mu       sync.Mutex
	etag     string
	lastGood []string
	hasGood  bool
}

// NewHTTPSource creates a feed source. A nil client gets a 30s timeout client.
func NewHTTPSource(name, feedURL, format string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{
		name:   name,
		url:    feedURL,
		parser: ParserForFormat(format),
		client: client,
	}
}

// Name returns the feed name.
func (s *HTTPSource) Name() string {
	return s.name
}

// Fetch downloads and parses the feed. Concurrent callers are serialized so
// they share one conditional request state.
func (s *HTTPSource) Fetch(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	domains, err := s.fetch(ctx)
	if errors.Is(err, ErrNotModified) && s.hasGood {
		return slices.Clone(s.lastGood), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s (%s): %w", s.name, sanitizeURL(s.url), err)
	}
	s.lastGood = domains
	s.hasGood = true
	return slices.Clone(domains), nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	if s.etag != "" && s.hasGood {
		req.Header.Set("If-None-Match", s.etag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// Use maxFeedSize+1 so we can distinguish "exactly at limit" from "truncated".
	lr := &io.LimitedReader{R: resp.Body, N: maxFeedSize + 1}
	domains, err := s.parser.Parse(lr)
	if err != nil {
		return nil, err
	}
	if lr.N == 0 {
		return nil, ErrTruncated
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		s.etag = etag
	}
	return domains, nil
}

// sanitizeURL strips everything except scheme and host from a URL for safe
// logging. Path segments may contain tokens in some feed URLs.
func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	return u.Scheme + "://" + u.Host
}

// MultiSource merges several sources into one list. It fails only when every
// source fails.
type MultiSource struct {
	sources []Source
}

// NewMultiSource combines sources in order.
func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

// Name returns the joined source names.
func (m *MultiSource) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Fetch returns the deduplicated union of all sources that answered.
func (m *MultiSource) Fetch(ctx context.Context) ([]string, error) {
	if len(m.sources) == 0 {
		return nil, errors.New("no feed sources configured")
	}
	seen := make(map[string]struct{})
	var (
		out  []string
		errs []error
	)
	for _, s := range m.sources {
		domains, err := s.Fetch(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, d := range domains {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				out = append(out, d)
			}
		}
	}
	if len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
