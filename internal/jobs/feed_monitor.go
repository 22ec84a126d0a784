package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"catchphish/internal/feed"
	"catchphish/internal/metrics"
	"catchphish/internal/models"
	"catchphish/internal/pipeline"
	"catchphish/internal/storage"
	"catchphish/internal/typosquat"
)

// Analyzer is the part of the report pipeline a monitor drives.
type Analyzer interface {
	AnalyzeDomain(ctx context.Context, domain string) (models.RiskAssessment, error)
	Report(ctx context.Context, a models.RiskAssessment, rc pipeline.ReportContext) models.ReportOutcome
}

// MonitorDeps are shared by every monitor a registry starts.
type MonitorDeps struct {
	Source   feed.Source
	Matcher  *typosquat.Matcher
	Analyzer Analyzer
	// ReportedSet returns the set for one protected domain. Nil gives each
	// monitor its own in-memory set.
	ReportedSet   func(protected string) storage.ReportedSet
	ReportTimeout time.Duration
	Logger        *slog.Logger
}

// FeedMonitor polls a threat feed for typosquats of one protected domain and
// reports each new match once.
type FeedMonitor struct {
	protected     string
	owner         string
	interval      time.Duration
	source        feed.Source
	matcher       *typosquat.Matcher
	analyzer      Analyzer
	reported      storage.ReportedSet
	reportTimeout time.Duration
	logger        *slog.Logger
	startedAt     time.Time

	mu          sync.Mutex
	cycles      int
	lastCycleAt *time.Time
	lastError   string
	reportCount int
	pending     int
}

// NewFeedMonitor creates a monitor for protected. owner is recorded on the
// reports it sends.
func NewFeedMonitor(protected, owner string, interval time.Duration, deps MonitorDeps) *FeedMonitor {
	m := &FeedMonitor{
		protected:     protected,
		owner:         owner,
		interval:      interval,
		source:        deps.Source,
		matcher:       deps.Matcher,
		analyzer:      deps.Analyzer,
		reportTimeout: deps.ReportTimeout,
		logger:        deps.Logger,
		startedAt:     time.Now().UTC(),
	}
	if m.matcher == nil {
		m.matcher = typosquat.NewMatcher(typosquat.DefaultMinSimilarity)
	}
	if deps.ReportedSet != nil {
		m.reported = deps.ReportedSet(protected)
	} else {
		m.reported = storage.NewMemoryReportedSet()
	}
	if m.reportTimeout <= 0 {
		m.reportTimeout = 2 * time.Minute
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m.logger = m.logger.With("protected_domain", protected)
	return m
}

// Start polls immediately and then every interval until ctx is cancelled.
func (m *FeedMonitor) Start(ctx context.Context) {
	m.logger.Info("feed monitor started", "interval", m.interval, "feed", m.source.Name())

	m.runCycle(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("feed monitor stopped")
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// runCycle fetches the feed once and reports every unreported candidate.
// Cancellation is checked between candidates; a report already in progress
// runs on a detached context bounded by the report timeout.
func (m *FeedMonitor) runCycle(ctx context.Context) {
	domains, err := m.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("feed fetch failed, skipping cycle", "error", err)
		metrics.MonitorCyclesTotal.WithLabelValues("feed_error").Inc()
		m.finishCycle(err.Error(), 0, 0)
		return
	}

	candidates := m.matcher.FindCandidates(m.protected, domains)
	metrics.MonitorCandidatesTotal.Add(float64(len(candidates)))
	if len(candidates) > 0 {
		m.logger.Debug("typosquat candidates found", "count", len(candidates))
	}

	var reported, pending int
	for i, c := range candidates {
		if ctx.Err() != nil {
			pending += len(candidates) - i
			break
		}

		seen, err := m.reported.Contains(ctx, m.protected, c.CandidateDomain)
		if err != nil {
			m.logger.Error("reported set lookup failed", "candidate", c.CandidateDomain, "error", err)
			pending++
			continue
		}
		if seen {
			continue
		}

		if m.report(ctx, c) {
			reported++
		} else {
			pending++
		}
	}

	metrics.MonitorCyclesTotal.WithLabelValues("ok").Inc()
	m.finishCycle("", reported, pending)
}

// report runs the full pipeline for one candidate and returns true if the
// report was delivered and recorded.
func (m *FeedMonitor) report(ctx context.Context, c models.TyposquatCandidate) bool {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.reportTimeout)
	defer cancel()

	log := m.logger.With("candidate", c.CandidateDomain, "similarity", c.Similarity)

	a, err := m.analyzer.AnalyzeDomain(rctx, c.CandidateDomain)
	if err != nil {
		log.Warn("candidate analysis failed, will retry next cycle", "error", err)
		return false
	}

	outcome := m.analyzer.Report(rctx, a, pipeline.ReportContext{
		Owner:  m.owner,
		Source: models.SourceMonitor,
	})
	if !outcome.Sent() {
		log.Warn("candidate report not delivered, will retry next cycle", "stage", outcome.Stage, "reason", outcome.Reason)
		return false
	}

	if err := m.reported.Add(rctx, m.protected, c.CandidateDomain); err != nil {
		// Delivered but not recorded: the candidate may be reported again.
		log.Error("failed to record reported candidate", "error", err)
	}
	log.Info("candidate reported", "score", a.Score, "tier", a.Tier)
	return true
}

func (m *FeedMonitor) finishCycle(lastError string, reported, pending int) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
	m.lastCycleAt = &now
	m.lastError = lastError
	m.reportCount += reported
	m.pending = pending
}

// Status returns a snapshot of the monitor's progress.
func (m *FeedMonitor) Status() models.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.MonitorStatus{
		ProtectedDomain: m.protected,
		Owner:           m.owner,
		Interval:        m.interval.String(),
		StartedAt:       m.startedAt,
		Cycles:          m.cycles,
		LastError:       m.lastError,
		Reported:        m.reportCount,
		PendingRetries:  m.pending,
	}
	if m.lastCycleAt != nil {
		t := *m.lastCycleAt
		s.LastCycleAt = &t
	}
	return s
}
