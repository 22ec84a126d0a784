package feed

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"catchphish/internal/validation"
)

// Match is a positive feed lookup.
type Match struct {
	// Domain is the listed domain that matched: the queried domain itself or
	// one of its parents down to the registrable domain.
	Domain string
	// Feeds names every source listing Domain, sorted.
	Feeds []string
}

// Store holds the most recent successful list of every feed source. A source
// whose fetch fails keeps its previous list, so the store always reflects the
// last-known-good state of each feed.
type Store struct {
	mu        sync.RWMutex
	lists     map[string][]string            // source name -> domains
	index     map[string]map[string]struct{} // domain -> source names
	syncedAt  time.Time
	allowlist map[string]struct{}
	cacheDir  string
}

// NewStore creates an empty store. Domains in allowlist, and their
// subdomains, are never reported as listed.
func NewStore(cacheDir string, allowlist []string) *Store {
	al := make(map[string]struct{}, len(allowlist))
	for _, d := range allowlist {
		if d, ok := validation.NormalizeDomain(d); ok {
			al[d] = struct{}{}
		}
	}
	return &Store{
		lists:     make(map[string][]string),
		index:     make(map[string]map[string]struct{}),
		allowlist: al,
		cacheDir:  cacheDir,
	}
}

// Replace stores a fresh list for source and marks the store synced.
func (s *Store) Replace(source string, domains []string) {
	list := make([]string, 0, len(domains))
	for _, d := range domains {
		if d, ok := validation.NormalizeDomain(d); ok {
			list = append(list, d)
		}
	}
	sort.Strings(list)
	list = slices.Compact(list)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[source] = list
	s.syncedAt = time.Now()
	s.reindexLocked()
}

// Retain drops the lists of sources not named in keep, such as feeds removed
// from the configuration since the cache was written.
func (s *Store) Retain(keep []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for name := range s.lists {
		if !slices.Contains(keep, name) {
			delete(s.lists, name)
			changed = true
		}
	}
	if changed {
		s.reindexLocked()
	}
}

func (s *Store) reindexLocked() {
	index := make(map[string]map[string]struct{})
	for source, list := range s.lists {
		for _, d := range list {
			if index[d] == nil {
				index[d] = make(map[string]struct{}, 1)
			}
			index[d][source] = struct{}{}
		}
	}
	s.index = index
}

// Check looks domain up, walking parent domains until the registrable domain
// so that phish.evil.co.uk matches a listed evil.co.uk but never co.uk. An
// allowlisted domain or parent ends the walk with no match.
func (s *Store) Check(domain string) (Match, bool) {
	d, ok := validation.NormalizeDomain(domain)
	if !ok {
		return Match{}, false
	}
	floor, err := publicsuffix.EffectiveTLDPlusOne(d)
	if err != nil {
		floor = d
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		if _, ok := s.allowlist[d]; ok {
			return Match{}, false
		}
		if sources, ok := s.index[d]; ok {
			m := Match{Domain: d, Feeds: make([]string, 0, len(sources))}
			for name := range sources {
				m.Feeds = append(m.Feeds, name)
			}
			sort.Strings(m.Feeds)
			return m, true
		}
		if d == floor {
			return Match{}, false
		}
		_, parent, found := strings.Cut(d, ".")
		if !found {
			return Match{}, false
		}
		d = parent
	}
}

// Synced reports whether any source has ever been stored, and when.
func (s *Store) Synced() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt, !s.syncedAt.IsZero()
}

// Size returns the number of distinct listed domains.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Domains returns every distinct listed domain in sorted order.
func (s *Store) Domains() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.index))
	for d := range s.index {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

type cacheFile struct {
	Lists    map[string][]string
	SyncedAt time.Time
}

const cacheFileName = "feeds.cache"

// SaveToDisk writes the per-source lists to the cache directory, if one is
// configured. The file is replaced atomically.
func (s *Store) SaveToDisk() error {
	if s.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating feed cache dir: %w", err)
	}

	s.mu.RLock()
	cache := cacheFile{Lists: make(map[string][]string, len(s.lists)), SyncedAt: s.syncedAt}
	for name, list := range s.lists {
		cache.Lists[name] = list
	}
	s.mu.RUnlock()

	f, err := os.CreateTemp(s.cacheDir, cacheFileName+".*")
	if err != nil {
		return fmt.Errorf("writing feed cache: %w", err)
	}
	defer os.Remove(f.Name())
	if err := gob.NewEncoder(f).Encode(&cache); err != nil {
		f.Close()
		return fmt.Errorf("encoding feed cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing feed cache: %w", err)
	}
	return os.Rename(f.Name(), filepath.Join(s.cacheDir, cacheFileName))
}

// LoadFromDisk restores the per-source lists saved by SaveToDisk. A missing
// cache is not an error.
func (s *Store) LoadFromDisk() error {
	if s.cacheDir == "" {
		return nil
	}
	f, err := os.Open(filepath.Join(s.cacheDir, cacheFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening feed cache: %w", err)
	}
	defer f.Close()

	var cache cacheFile
	if err := gob.NewDecoder(f).Decode(&cache); err != nil {
		return fmt.Errorf("decoding feed cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = cache.Lists
	if s.lists == nil {
		s.lists = make(map[string][]string)
	}
	s.syncedAt = cache.SyncedAt
	s.reindexLocked()
	return nil
}
