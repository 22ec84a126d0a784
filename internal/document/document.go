// Package document renders CERT-style incident reports from a risk assessment.
package document

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/template/html/v3"

	"catchphish/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Incident is the flattened view of an assessment used by the templates.
type Incident struct {
	SiteTitle  string
	Domain     string
	URL        string
	Score      string
	Tier       string
	Verdict    string
	IsPhishing bool
	Detected   string
	ReportedBy string

	IPAddresses []string
	Nameservers []string
	MailServers []string

	Registrar    string
	RegisteredOn string
	AgeDays      string
	Country      string

	EnginesMalicious  int
	EnginesSuspicious int
	EnginesTotal      int
	HasEngines        bool

	FeedName    string
	Indicators  []string
	RiskFactors []string
	PageTitle   string

	VisualRiskLevel  string
	VisualAssessment string
	Logos            []string

	Contributions []models.Contribution
	Absent        []models.SignalName
	Warnings      []string
	Insufficient  bool
}

// Document is a rendered incident report.
type Document struct {
	Incident Incident
	Subject  string
	HTML     string
	Text     string
	Filename string
}

// Renderer turns assessments into incident documents.
type Renderer struct {
	engine    *html.Engine
	siteTitle string
}

// NewRenderer loads the embedded templates.
func NewRenderer(siteTitle string) (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	engine.AddFunc("points", func(v float64) string { return fmt.Sprintf("%.1f", v) })
	engine.AddFunc("join", strings.Join)
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("loading report templates: %w", err)
	}
	return &Renderer{engine: engine, siteTitle: siteTitle}, nil
}

// NewIncident flattens an assessment. reportedBy is the owning identity.
func NewIncident(a models.RiskAssessment, reportedBy, siteTitle string) Incident {
	inc := Incident{
		SiteTitle:     siteTitle,
		Domain:        a.Domain,
		URL:           a.URL,
		Score:         fmt.Sprintf("%.1f", a.Score),
		Tier:          a.Tier.Label(),
		Verdict:       a.Verdict(),
		IsPhishing:    a.IsPhishing,
		Detected:      a.AssessedAt.UTC().Format(time.RFC1123),
		ReportedBy:    reportedBy,
		Contributions: a.Contributions,
		Absent:        a.Absent,
		Warnings:      a.Warnings,
		Insufficient:  a.InsufficientData,
	}
	if inc.URL == "" {
		inc.URL = "http://" + a.Domain
	}

	if p, ok := payload[models.DNSPayload](a, models.SignalDNS); ok {
		inc.IPAddresses = p.A
		inc.Nameservers = p.NS
		inc.MailServers = p.MX
	}
	if p, ok := payload[models.RegistrationPayload](a, models.SignalRegistration); ok {
		inc.Registrar = p.Registrar
		inc.Country = p.Country
		if p.CreatedAt != nil {
			inc.RegisteredOn = p.CreatedAt.Format("2006-01-02")
		}
		if p.AgeDays != nil {
			inc.AgeDays = fmt.Sprintf("%d", *p.AgeDays)
		}
		if len(inc.Nameservers) == 0 {
			inc.Nameservers = p.Nameservers
		}
	}
	if p, ok := payload[models.ReputationPayload](a, models.SignalReputation); ok {
		inc.HasEngines = true
		inc.EnginesMalicious = p.Malicious
		inc.EnginesSuspicious = p.Suspicious
		inc.EnginesTotal = p.Total
		if inc.RegisteredOn == "" && p.CreationDate != nil {
			inc.RegisteredOn = p.CreationDate.UTC().Format("2006-01-02")
		}
	}
	if p, ok := payload[models.FeedPayload](a, models.SignalThreatFeed); ok && p.Listed {
		inc.FeedName = p.FeedName
	}
	if p, ok := payload[models.LexicalPayload](a, models.SignalLexical); ok {
		inc.Indicators = p.Indicators
	}
	if p, ok := payload[models.ContentPayload](a, models.SignalContent); ok {
		inc.RiskFactors = p.RiskFactors
		inc.PageTitle = p.Title
	}
	if p, ok := payload[models.VisualPayload](a, models.SignalVisual); ok {
		inc.VisualRiskLevel = p.RiskLevel
		inc.VisualAssessment = p.Assessment
		inc.Logos = p.Logos
		for _, e := range p.SuspiciousElements {
			if !slices.Contains(inc.RiskFactors, e) {
				inc.RiskFactors = append(inc.RiskFactors, e)
			}
		}
	}
	return inc
}

func payload[T any](a models.RiskAssessment, name models.SignalName) (T, bool) {
	r, ok := a.Signal(name)
	if !ok || !r.IsAvailable() {
		var zero T
		return zero, false
	}
	return models.PayloadOf[T](r.Payload)
}

// Render produces the HTML and plain-text forms of the incident report.
func (r *Renderer) Render(a models.RiskAssessment, reportedBy string) (*Document, error) {
	inc := NewIncident(a, reportedBy, r.siteTitle)

	var buf bytes.Buffer
	if err := r.engine.Render(&buf, "incident", inc); err != nil {
		return nil, fmt.Errorf("rendering incident report: %w", err)
	}

	return &Document{
		Incident: inc,
		Subject:  Subject(inc),
		HTML:     buf.String(),
		Text:     Text(inc),
		Filename: fmt.Sprintf("incident-%s-%s.html", strings.ReplaceAll(a.Domain, ".", "_"), a.AssessedAt.UTC().Format("20060102T150405Z")),
	}, nil
}

// Subject returns the email subject for an incident.
func Subject(inc Incident) string {
	if inc.IsPhishing {
		return fmt.Sprintf("[%s] Phishing incident report: %s (%s confidence)", inc.SiteTitle, inc.Domain, inc.Tier)
	}
	return fmt.Sprintf("[%s] Suspicious domain report: %s (%s confidence)", inc.SiteTitle, inc.Domain, inc.Tier)
}

// Text returns the plain-text body of an incident report.
func Text(inc Incident) string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-20s %s\n", label+":", value)
		}
	}

	b.WriteString("PHISHING INCIDENT REPORT\n")
	b.WriteString("========================\n\n")
	line("Phishing URL", defang(inc.URL))
	line("Domain", defang(inc.Domain))
	line("Risk score", inc.Score+" / 100")
	line("Confidence", inc.Tier)
	line("Verdict", inc.Verdict)
	line("Detected", inc.Detected)
	line("Reported by", inc.ReportedBy)
	line("IP addresses", strings.Join(inc.IPAddresses, ", "))
	line("Name servers", strings.Join(inc.Nameservers, ", "))
	line("Registrar", inc.Registrar)
	line("Registered on", inc.RegisteredOn)
	line("Domain age (days)", inc.AgeDays)
	line("Registrant country", inc.Country)
	if inc.HasEngines {
		line("Engine detections", fmt.Sprintf("%d malicious, %d suspicious of %d", inc.EnginesMalicious, inc.EnginesSuspicious, inc.EnginesTotal))
	}
	line("Listed in feed", inc.FeedName)
	line("Visual risk level", inc.VisualRiskLevel)
	line("Logos on page", strings.Join(inc.Logos, ", "))
	line("Visual assessment", inc.VisualAssessment)

	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "  - %s\n", it)
		}
	}
	list("Risk factors", inc.RiskFactors)
	list("Lexical indicators", inc.Indicators)

	if len(inc.Contributions) > 0 {
		b.WriteString("\nScore breakdown:\n")
		for _, c := range inc.Contributions {
			fmt.Fprintf(&b, "  %-22s %5.1f\n", c.Signal, c.Points)
		}
	}
	if inc.Insufficient {
		b.WriteString("\nNote: no scoring signal was available; the score is not meaningful.\n")
	}
	return b.String()
}

// defang rewrites a URL or domain so mail clients do not make it clickable.
// Only the last dot of the host is bracketed.
func defang(s string) string {
	s = strings.Replace(s, "http://", "hxxp://", 1)
	s = strings.Replace(s, "https://", "hxxps://", 1)

	start := 0
	if i := strings.Index(s, "://"); i >= 0 {
		start = i + 3
	}
	end := len(s)
	if i := strings.IndexAny(s[start:], "/?#"); i >= 0 {
		end = start + i
	}
	if i := strings.LastIndex(s[start:end], "."); i >= 0 {
		i += start
		s = s[:i] + "[.]" + s[i+1:]
	}
	return s
}
