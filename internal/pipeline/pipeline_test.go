package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"catchphish/internal/document"
	"catchphish/internal/models"
	"catchphish/internal/risk"
	"catchphish/internal/signals"
	"catchphish/internal/validation"
)

// staticProvider returns a fixed result, optionally after a delay that
// respects cancellation.
type staticProvider struct {
	name   models.SignalName
	result models.SignalResult
	delay  time.Duration
	calls  atomic.Int32
	target atomic.Value
}

func (p *staticProvider) Name() models.SignalName { return p.name }

func (p *staticProvider) Collect(ctx context.Context, t signals.Target) models.SignalResult {
	p.calls.Add(1)
	p.target.Store(t)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return models.Unavailable(p.name, "context done")
		}
	}
	return p.result
}

// stubbornProvider ignores its context.
type stubbornProvider struct {
	name  models.SignalName
	sleep time.Duration
}

func (p *stubbornProvider) Name() models.SignalName { return p.name }

func (p *stubbornProvider) Collect(context.Context, signals.Target) models.SignalResult {
	time.Sleep(p.sleep)
	return models.Success(p.name, models.ClassifierPayload{Score: 100})
}

type panickyProvider struct{}

func (panickyProvider) Name() models.SignalName { return models.SignalContent }

func (panickyProvider) Collect(context.Context, signals.Target) models.SignalResult {
	panic("boom")
}

func ok(name models.SignalName, payload any) *staticProvider {
	return &staticProvider{name: name, result: models.Success(name, payload)}
}

func down(name models.SignalName) *staticProvider {
	return &staticProvider{name: name, result: models.Unavailable(name, "upstream error")}
}

type fakeDispatcher struct {
	mu         sync.Mutex
	recipients []string
	err        error
	sent       []*document.Document
	shots      [][]byte
}

func (d *fakeDispatcher) Recipients(override string) []string {
	if override != "" {
		return []string{override}
	}
	return d.recipients
}

func (d *fakeDispatcher) SendIncident(_ context.Context, doc *document.Document, shot []byte, _ []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, doc)
	d.shots = append(d.shots, shot)
	return nil
}

type fakeCapturer struct {
	shot []byte
	err  error
}

func (c *fakeCapturer) Enabled() bool { return true }

func (c *fakeCapturer) Capture(context.Context, string) ([]byte, error) {
	return c.shot, c.err
}

type failingRenderer struct{}

func (failingRenderer) Render(models.RiskAssessment, string) (*document.Document, error) {
	return nil, errors.New("template exploded")
}

type memStore struct {
	mu      sync.Mutex
	reports []models.Report
	err     error
}

func (s *memStore) SaveReport(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	s.reports = append(s.reports, *r)
	return nil
}

func (s *memStore) GetReport(context.Context, uuid.UUID) (*models.Report, error) { return nil, nil }
func (s *memStore) ListReports(context.Context, models.ReportFilter) ([]models.Report, error) {
	return s.reports, nil
}
func (s *memStore) CountReportsByStatus(context.Context) (map[string]int, error) { return nil, nil }
func (s *memStore) Ping(context.Context) error                                    { return nil }
func (s *memStore) Close() error                                                  { return nil }

func newRenderer(t *testing.T) *document.Renderer {
	t.Helper()
	r, err := document.NewRenderer("CatchPhish")
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func paypalProviders() []signals.Provider {
	return []signals.Provider{
		ok(models.SignalReputation, models.ReputationPayload{Malicious: 45, Total: 70}),
		ok(models.SignalThreatFeed, models.FeedPayload{Listed: true, FeedName: "openphish"}),
		signals.NewLexicalProvider(nil, nil),
		ok(models.SignalClassifier, models.ClassifierPayload{Score: 90}),
		down(models.SignalContent),
		ok(models.SignalDNS, models.DNSPayload{A: []string{"203.0.113.7"}}),
	}
}

func TestAnalyze_TyposquatScenario(t *testing.T) {
	p := New(Options{Providers: paypalProviders()})

	a, err := p.Analyze(context.Background(), "http://paypa1-secure-login.tk/login")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if a.Domain != "paypa1-secure-login.tk" {
		t.Errorf("Domain = %q", a.Domain)
	}
	if a.URL != "http://paypa1-secure-login.tk/login" {
		t.Errorf("URL = %q", a.URL)
	}
	if a.Score != 100 {
		t.Errorf("Score = %v, want 100", a.Score)
	}
	if a.Tier != models.TierHigh {
		t.Errorf("Tier = %v, want High", a.Tier)
	}
	if !a.IsPhishing {
		t.Error("IsPhishing = false, want true")
	}
	if got := a.Contribution(models.SignalLexical); got != 15 {
		t.Errorf("lexical contribution = %v, want 15", got)
	}
	if !reflect.DeepEqual(a.Absent, []models.SignalName{models.SignalContent}) {
		t.Errorf("Absent = %v, want [content]", a.Absent)
	}
	if _, ok := a.Signal(models.SignalDNS); !ok {
		t.Error("dns signal not carried through for the report")
	}
}

func TestAnalyze_AllUnavailable(t *testing.T) {
	p := New(Options{Providers: []signals.Provider{
		down(models.SignalReputation),
		down(models.SignalThreatFeed),
		down(models.SignalClassifier),
		down(models.SignalContent),
	}})

	a, err := p.Analyze(context.Background(), "example.org")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if a.Score != 0 || a.Tier != models.TierVeryLow || !a.InsufficientData {
		t.Errorf("got score=%v tier=%v insufficient=%v, want 0 VeryLow true", a.Score, a.Tier, a.InsufficientData)
	}
	if a.URL != "http://example.org" {
		t.Errorf("URL = %q, want scheme added", a.URL)
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	prov := ok(models.SignalReputation, models.ReputationPayload{})
	p := New(Options{Providers: []signals.Provider{prov}})

	for _, in := range []string{"", "ftp://example.com", "http://", "not a domain"} {
		_, err := p.Analyze(context.Background(), in)
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StageInput {
			t.Errorf("Analyze(%q) error = %v, want input StageError", in, err)
		}
		if !errors.Is(err, validation.ErrInvalidURL) {
			t.Errorf("Analyze(%q) error does not wrap ErrInvalidURL: %v", in, err)
		}
	}
	if n := prov.calls.Load(); n != 0 {
		t.Errorf("providers called %d times for invalid input", n)
	}
}

func TestAnalyzeDomain(t *testing.T) {
	prov := ok(models.SignalReputation, models.ReputationPayload{Total: 10})
	p := New(Options{Providers: []signals.Provider{prov}})

	a, err := p.AnalyzeDomain(context.Background(), "PayPa1.COM.")
	if err != nil {
		t.Fatalf("AnalyzeDomain() error = %v", err)
	}
	if a.Domain != "paypa1.com" {
		t.Errorf("Domain = %q, want paypa1.com", a.Domain)
	}
	target := prov.target.Load().(signals.Target)
	if target.URL != "" || target.Domain != "paypa1.com" {
		t.Errorf("provider target = %+v", target)
	}

	if _, err := p.AnalyzeDomain(context.Background(), "bad domain"); err == nil {
		t.Error("AnalyzeDomain() accepted an invalid domain")
	}
}

func TestAnalyze_ProviderTimeouts(t *testing.T) {
	slow := &staticProvider{
		name:   models.SignalReputation,
		result: models.Success(models.SignalReputation, models.ReputationPayload{Malicious: 10, Total: 10}),
		delay:  time.Second,
	}
	p := New(Options{
		SignalTimeout: 50 * time.Millisecond,
		Providers: []signals.Provider{
			slow,
			&stubbornProvider{name: models.SignalClassifier, sleep: 500 * time.Millisecond},
			ok(models.SignalThreatFeed, models.FeedPayload{}),
		},
	})

	start := time.Now()
	a, err := p.Analyze(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if took := time.Since(start); took > 400*time.Millisecond {
		t.Errorf("Analyze() took %v; timeouts not enforced", took)
	}

	for _, name := range []models.SignalName{models.SignalReputation, models.SignalClassifier} {
		r, _ := a.Signal(name)
		if r.IsAvailable() {
			t.Errorf("%s available after timeout", name)
		}
	}
	if r, _ := a.Signal(models.SignalClassifier); r.Reason != "timeout" {
		t.Errorf("classifier reason = %q, want timeout", r.Reason)
	}
	if a.InsufficientData {
		t.Error("InsufficientData = true although the feed signal was usable")
	}
}

// patientProvider asks for its own collection budget.
type patientProvider struct {
	*staticProvider
	budget time.Duration
}

func (p patientProvider) Timeout() time.Duration { return p.budget }

func TestAnalyze_ProviderOwnTimeout(t *testing.T) {
	visual := patientProvider{
		staticProvider: &staticProvider{
			name:   models.SignalVisual,
			result: models.Success(models.SignalVisual, models.VisualPayload{Score: 95, RiskLevel: "high"}),
			delay:  100 * time.Millisecond,
		},
		budget: 2 * time.Second,
	}
	p := New(Options{
		SignalTimeout: 20 * time.Millisecond,
		Providers:     []signals.Provider{visual, ok(models.SignalThreatFeed, models.FeedPayload{})},
	})

	a, err := p.Analyze(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	r, _ := a.Signal(models.SignalVisual)
	if !r.IsAvailable() {
		t.Fatalf("visual signal = %+v, want available within its own budget", r)
	}
	if a.Score != 0 {
		t.Errorf("Score = %v, want 0: the visual verdict does not score", a.Score)
	}
}

func TestAnalyze_ProviderPanic(t *testing.T) {
	p := New(Options{Providers: []signals.Provider{panickyProvider{}, ok(models.SignalThreatFeed, models.FeedPayload{})}})

	a, err := p.Analyze(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	r, _ := a.Signal(models.SignalContent)
	if r.IsAvailable() {
		t.Error("panicking provider reported as available")
	}
}

func TestAnalyze_Canceled(t *testing.T) {
	p := New(Options{Providers: []signals.Provider{ok(models.SignalThreatFeed, models.FeedPayload{})}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Analyze(ctx, "example.com")
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageSignals {
		t.Errorf("Analyze() error = %v, want signals StageError", err)
	}
}

func TestReport_Sent(t *testing.T) {
	store := &memStore{}
	disp := &fakeDispatcher{recipients: []string{"cert@example.org"}}
	p := New(Options{
		Providers:  paypalProviders(),
		Renderer:   newRenderer(t),
		Dispatcher: disp,
		Capturer:   &fakeCapturer{shot: []byte("png")},
		Store:      store,
	})

	a, err := p.Analyze(context.Background(), "paypa1-secure-login.tk")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	before := a
	beforeContribs := append([]models.Contribution(nil), a.Contributions...)

	outcome := p.Report(context.Background(), a, ReportContext{Owner: "alice@example.com"})
	if !outcome.Sent() {
		t.Fatalf("Report() = %+v, want sent", outcome)
	}
	if outcome.ReportID == uuid.Nil {
		t.Error("ReportID not set after persistence")
	}
	if len(disp.sent) != 1 || string(disp.shots[0]) != "png" {
		t.Errorf("dispatcher got %d docs, shot %q", len(disp.sent), disp.shots)
	}

	if len(store.reports) != 1 {
		t.Fatalf("persisted %d reports, want 1", len(store.reports))
	}
	r := store.reports[0]
	if r.Owner != "alice@example.com" || r.Status != models.ReportSent || r.Source != models.SourceOnDemand {
		t.Errorf("persisted report = %+v", r)
	}
	if r.Recipient != "cert@example.org" {
		t.Errorf("Recipient = %q", r.Recipient)
	}
	if r.Score != a.Score || r.Verdict != models.VerdictPhishing {
		t.Errorf("persisted score/verdict = %v/%s", r.Score, r.Verdict)
	}

	if a.Score != before.Score || a.Tier != before.Tier || !reflect.DeepEqual(a.Contributions, beforeContribs) {
		t.Error("Report() modified the assessment")
	}
}

func TestReport_Failures(t *testing.T) {
	a := models.RiskAssessment{Domain: "paypa1.com", Score: 80, Tier: models.TierHigh, IsPhishing: true}

	tests := []struct {
		name      string
		opts      Options
		rc        ReportContext
		wantStage string
	}{
		{
			name:      "render",
			opts:      Options{Renderer: failingRenderer{}, Dispatcher: &fakeDispatcher{recipients: []string{"cert@example.org"}}},
			wantStage: StageRender,
		},
		{
			name:      "no recipient",
			opts:      Options{Renderer: newRenderer(t), Dispatcher: &fakeDispatcher{}},
			wantStage: StageDelivery,
		},
		{
			name:      "smtp failure",
			opts:      Options{Renderer: newRenderer(t), Dispatcher: &fakeDispatcher{recipients: []string{"cert@example.org"}, err: errors.New("connection refused")}},
			wantStage: StageDelivery,
		},
		{
			name:      "not configured",
			opts:      Options{},
			wantStage: StageDelivery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			tt.opts.Store = store
			p := New(tt.opts)

			outcome := p.Report(context.Background(), a, ReportContext{Source: models.SourceMonitor})
			if outcome.Sent() {
				t.Fatal("Report() sent, want failed")
			}
			if outcome.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", outcome.Stage, tt.wantStage)
			}
			if outcome.Reason == "" {
				t.Error("Reason is empty")
			}
			if len(store.reports) != 1 || store.reports[0].Status != models.ReportFailed || store.reports[0].Source != models.SourceMonitor {
				t.Errorf("persisted = %+v, want one failed monitor report", store.reports)
			}
		})
	}
}

func TestReport_ScreenshotFailureStillSends(t *testing.T) {
	disp := &fakeDispatcher{recipients: []string{"cert@example.org"}}
	p := New(Options{
		Renderer:   newRenderer(t),
		Dispatcher: disp,
		Capturer:   &fakeCapturer{err: errors.New("chrome not found")},
	})

	outcome := p.Report(context.Background(), models.RiskAssessment{Domain: "paypa1.com", Tier: models.TierLow}, ReportContext{})
	if !outcome.Sent() {
		t.Fatalf("Report() = %+v, want sent", outcome)
	}
	if disp.shots[0] != nil {
		t.Error("screenshot attached after capture failure")
	}
}

func TestReport_PersistFailureKeepsOutcome(t *testing.T) {
	p := New(Options{
		Renderer:   newRenderer(t),
		Dispatcher: &fakeDispatcher{recipients: []string{"cert@example.org"}},
		Store:      &memStore{err: errors.New("db down")},
	})
	outcome := p.Report(context.Background(), models.RiskAssessment{Domain: "paypa1.com"}, ReportContext{})
	if !outcome.Sent() || outcome.ReportID != uuid.Nil {
		t.Errorf("Report() = %+v, want sent without id", outcome)
	}
}

func TestStageError(t *testing.T) {
	base := errors.New("bad url")
	err := error(&StageError{Stage: StageInput, Err: base})
	if !errors.Is(err, base) {
		t.Error("StageError does not unwrap")
	}
	if err.Error() != "input: bad url" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Options{Providers: paypalProviders()})
	if p.aggregator.Policy() != risk.DefaultPolicy() {
		t.Error("default aggregator does not use the default policy")
	}
	if len(p.Providers()) != 6 {
		t.Errorf("Providers() = %v", p.Providers())
	}
}
