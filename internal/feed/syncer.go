package feed

import (
	"context"
	"io"
	"log/slog"
	"time"

	"catchphish/internal/metrics"
)

// Syncer periodically downloads the configured feeds into a Store, which
// backs the threat feed membership signal and fuzzy search.
type Syncer struct {
	store    *Store
	sources  []Source
	names    []string
	interval time.Duration
	logger   *slog.Logger
}

// NewSyncer creates a new feed syncer. Pass nil for logger to disable logging.
func NewSyncer(store *Store, sources []Source, interval time.Duration, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = time.Hour
	}
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, src.Name())
	}
	return &Syncer{
		store:    store,
		sources:  sources,
		names:    names,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the periodic sync loop. It blocks until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	s.SyncOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce fetches every source and stores the lists that arrived. A failed
// source keeps its previous list; the cache is rewritten only when at least
// one source succeeded.
func (s *Syncer) SyncOnce(ctx context.Context) {
	s.store.Retain(s.names)

	updated := 0
	for _, src := range s.sources {
		domains, err := src.Fetch(ctx)
		if err != nil {
			s.logger.Warn("feed fetch failed, keeping last-known-good list", "feed", src.Name(), "error", err)
			metrics.FeedSyncsTotal.WithLabelValues(src.Name(), "error").Inc()
			continue
		}
		s.store.Replace(src.Name(), domains)
		s.logger.Info("feed synced", "feed", src.Name(), "domains", len(domains))
		metrics.FeedSyncsTotal.WithLabelValues(src.Name(), "ok").Inc()
		updated++
	}

	metrics.FeedDomains.Set(float64(s.store.Size()))
	if updated == 0 {
		return
	}
	if err := s.store.SaveToDisk(); err != nil {
		s.logger.Warn("feed cache save failed", "error", err)
	}
}
