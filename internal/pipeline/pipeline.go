// Package pipeline runs one analysis end to end: domain extraction, parallel
// signal collection, aggregation and, on request, incident reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"catchphish/internal/document"
	"catchphish/internal/metrics"
	"catchphish/internal/models"
	"catchphish/internal/risk"
	"catchphish/internal/signals"
	"catchphish/internal/storage"
	"catchphish/internal/validation"
)

// Stage names where an analysis or report can fail.
const (
	StageInput       = "input"
	StageSignals     = "signals"
	StageAggregation = "aggregation"
	StageRender      = "render"
	StageDelivery    = "delivery"
)

// StageError attributes a user-visible failure to a pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Renderer produces the incident document for an assessment.
type Renderer interface {
	Render(a models.RiskAssessment, reportedBy string) (*document.Document, error)
}

// Capturer takes an optional screenshot of the reported page.
type Capturer interface {
	Enabled() bool
	Capture(ctx context.Context, pageURL string) ([]byte, error)
}

// Dispatcher delivers incident documents.
type Dispatcher interface {
	Recipients(override string) []string
	SendIncident(ctx context.Context, doc *document.Document, screenshot []byte, recipients []string) error
}

// ReportContext carries who asked for a report and where it goes.
type ReportContext struct {
	Owner     string // owning identity; empty for monitor reports without an owner
	Recipient string // overrides the configured CERT mailbox when set
	Source    string // models.SourceOnDemand or models.SourceMonitor
}

// Options wires a Pipeline. Capturer and Store may be nil.
type Options struct {
	Providers     []signals.Provider
	Aggregator    *risk.Aggregator
	SignalTimeout time.Duration
	Concurrency   int
	Renderer      Renderer
	Capturer      Capturer
	Dispatcher    Dispatcher
	Store         storage.ReportStore
	Logger        *slog.Logger
}

// Pipeline is safe for concurrent use; each call works on its own data.
type Pipeline struct {
	providers   []signals.Provider
	aggregator  *risk.Aggregator
	timeout     time.Duration
	concurrency int
	renderer    Renderer
	capturer    Capturer
	dispatcher  Dispatcher
	store       storage.ReportStore
	logger      *slog.Logger
}

// New creates a pipeline.
func New(o Options) *Pipeline {
	p := &Pipeline{
		providers:   o.Providers,
		aggregator:  o.Aggregator,
		timeout:     o.SignalTimeout,
		concurrency: o.Concurrency,
		renderer:    o.Renderer,
		capturer:    o.Capturer,
		dispatcher:  o.Dispatcher,
		store:       o.Store,
		logger:      o.Logger,
	}
	if p.aggregator == nil {
		p.aggregator = risk.NewAggregator(risk.DefaultPolicy())
	}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Second
	}
	if p.concurrency <= 0 {
		p.concurrency = 8
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Analyze scores the domain of rawURL.
func (p *Pipeline) Analyze(ctx context.Context, rawURL string) (models.RiskAssessment, error) {
	domain, err := validation.ExtractDomain(rawURL)
	if err != nil {
		return models.RiskAssessment{}, &StageError{Stage: StageInput, Err: err}
	}
	target := signals.Target{URL: strings.TrimSpace(rawURL), Domain: domain}
	if !strings.Contains(target.URL, "://") {
		target.URL = "http://" + target.URL
	}
	return p.analyze(ctx, target)
}

// AnalyzeDomain scores a bare domain.
func (p *Pipeline) AnalyzeDomain(ctx context.Context, domain string) (models.RiskAssessment, error) {
	d, ok := validation.NormalizeDomain(domain)
	if !ok {
		return models.RiskAssessment{}, &StageError{Stage: StageInput, Err: fmt.Errorf("%w: %q", validation.ErrInvalidURL, domain)}
	}
	return p.analyze(ctx, signals.Target{Domain: d})
}

func (p *Pipeline) analyze(ctx context.Context, target signals.Target) (models.RiskAssessment, error) {
	results := p.collect(ctx, target)
	if err := ctx.Err(); err != nil {
		return models.RiskAssessment{}, &StageError{Stage: StageSignals, Err: err}
	}

	a := p.aggregator.Aggregate(target.Domain, results)
	a.URL = target.URL
	metrics.RecordAssessment(a)

	p.logger.Info("analysis complete",
		"domain", a.Domain,
		"score", a.Score,
		"tier", a.Tier,
		"phishing", a.IsPhishing,
		"absent", len(a.Absent),
	)
	for _, w := range a.Warnings {
		p.logger.Warn("signal excluded", "domain", a.Domain, "warning", w)
	}
	return a, nil
}

// collect runs every provider concurrently, each bounded by the signal
// timeout. It waits for all of them.
func (p *Pipeline) collect(ctx context.Context, target signals.Target) map[models.SignalName]models.SignalResult {
	var (
		mu      sync.Mutex
		results = make(map[models.SignalName]models.SignalResult, len(p.providers))
		g       errgroup.Group
	)
	g.SetLimit(p.concurrency)

	for _, prov := range p.providers {
		g.Go(func() error {
			start := time.Now()
			r := p.collectOne(ctx, prov, target)
			r.Duration = time.Since(start)
			metrics.RecordSignal(r, r.Duration)
			if !r.IsAvailable() {
				p.logger.Debug("signal unavailable", "domain", target.Domain, "signal", r.Name, "reason", r.Reason)
			}

			mu.Lock()
			results[r.Name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// timeoutProvider is implemented by providers that need a longer budget than
// the shared signal timeout.
type timeoutProvider interface {
	Timeout() time.Duration
}

// collectOne enforces the timeout even if a provider ignores its context.
func (p *Pipeline) collectOne(ctx context.Context, prov signals.Provider, target signals.Target) models.SignalResult {
	name := prov.Name()
	timeout := p.timeout
	if tp, ok := prov.(timeoutProvider); ok && tp.Timeout() > 0 {
		timeout = tp.Timeout()
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan models.SignalResult, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- models.Unavailable(name, fmt.Sprintf("provider panic: %v", v))
			}
		}()
		ch <- prov.Collect(pctx, target)
	}()

	select {
	case r := <-ch:
		r.Name = name
		return r
	case <-pctx.Done():
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return models.Unavailable(name, "timeout")
		}
		return models.Unavailable(name, "canceled")
	}
}

// Report renders, optionally screenshots, dispatches and persists an
// incident report for a. The assessment is only read.
func (p *Pipeline) Report(ctx context.Context, a models.RiskAssessment, rc ReportContext) models.ReportOutcome {
	if rc.Source == "" {
		rc.Source = models.SourceOnDemand
	}
	outcome := p.deliver(ctx, a, rc)
	p.persist(ctx, a, rc, &outcome)
	metrics.RecordReport(rc.Source, outcome)

	if outcome.Sent() {
		p.logger.Info("report sent", "domain", a.Domain, "source", rc.Source, "report_id", outcome.ReportID)
	} else {
		p.logger.Warn("report failed", "domain", a.Domain, "source", rc.Source, "stage", outcome.Stage, "reason", outcome.Reason)
	}
	return outcome
}

func (p *Pipeline) deliver(ctx context.Context, a models.RiskAssessment, rc ReportContext) models.ReportOutcome {
	failed := func(stage string, err error) models.ReportOutcome {
		return models.ReportOutcome{Status: models.ReportFailed, Stage: stage, Reason: err.Error()}
	}

	if p.renderer == nil || p.dispatcher == nil {
		return failed(StageDelivery, errors.New("reporting is not configured"))
	}

	doc, err := p.renderer.Render(a, rc.Owner)
	if err != nil {
		return failed(StageRender, err)
	}

	recipients := p.dispatcher.Recipients(rc.Recipient)
	if len(recipients) == 0 {
		return failed(StageDelivery, errors.New("no report recipient configured"))
	}

	var shot []byte
	if p.capturer != nil && p.capturer.Enabled() {
		pageURL := a.URL
		if pageURL == "" {
			pageURL = "http://" + a.Domain
		}
		shot, err = p.capturer.Capture(ctx, pageURL)
		if err != nil {
			p.logger.Warn("screenshot failed; sending without it", "domain", a.Domain, "error", err)
			shot = nil
		}
	}

	if err := p.dispatcher.SendIncident(ctx, doc, shot, recipients); err != nil {
		return failed(StageDelivery, err)
	}
	return models.ReportOutcome{Status: models.ReportSent}
}

// persist records the attempt. Persistence failures are logged; they do not
// change the delivery outcome.
func (p *Pipeline) persist(ctx context.Context, a models.RiskAssessment, rc ReportContext, outcome *models.ReportOutcome) {
	if p.store == nil {
		return
	}
	r := &models.Report{
		Owner:     rc.Owner,
		Domain:    a.Domain,
		URL:       a.URL,
		Score:     a.Score,
		Tier:      a.Tier,
		Verdict:   a.Verdict(),
		Status:    outcome.Status,
		Stage:     outcome.Stage,
		Reason:    outcome.Reason,
		Source:    rc.Source,
		Recipient: rc.Recipient,
	}
	if p.dispatcher != nil && r.Recipient == "" {
		r.Recipient = strings.Join(p.dispatcher.Recipients(""), ", ")
	}
	if err := p.store.SaveReport(ctx, r); err != nil {
		p.logger.Error("failed to persist report", "domain", a.Domain, "error", err)
		return
	}
	outcome.ReportID = r.ID
}

// Providers returns the names of the configured providers.
func (p *Pipeline) Providers() []models.SignalName {
	names := make([]models.SignalName, 0, len(p.providers))
	for _, prov := range p.providers {
		names = append(names, prov.Name())
	}
	return names
}
