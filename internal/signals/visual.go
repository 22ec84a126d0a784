package signals

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"catchphish/internal/models"
)

// Screenshotter renders a page to PNG.
type Screenshotter interface {
	Enabled() bool
	Capture(ctx context.Context, pageURL string) ([]byte, error)
}

type visualRequest struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Image  string `json:"image"` // base64 PNG
}

type visualResponse struct {
	PhishingScore      *float64 `json:"phishing_score"`
	RiskLevel          string   `json:"risk_level"`
	SuspiciousElements []string `json:"suspicious_elements"`
	LegitimateElements []string `json:"legitimate_elements"`
	OverallAssessment  string   `json:"overall_assessment"`
	Logos              []struct {
		Description string `json:"description"`
	} `json:"logos"`
}

// VisualProvider screenshots the suspect page and asks a vision analyzer
// whether it looks like brand impersonation. It does not feed the score; its
// findings go into the incident report.
type VisualProvider struct {
	endpoint string
	apiKey   string
	scale    ScoreScale
	shots    Screenshotter
	client   *http.Client
	timeout  time.Duration
}

// NewVisualProvider creates a vision analyzer client. timeout overrides the
// per-signal timeout because it includes a browser start-up.
func NewVisualProvider(endpoint, apiKey string, scale ScoreScale, shots Screenshotter, timeout time.Duration, client *http.Client) *VisualProvider {
	return &VisualProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		scale:    scale,
		shots:    shots,
		client:   client,
		timeout:  timeout,
	}
}

func (p *VisualProvider) Name() models.SignalName { return models.SignalVisual }

// Timeout is the collection budget for this provider.
func (p *VisualProvider) Timeout() time.Duration { return p.timeout }

func (p *VisualProvider) Collect(ctx context.Context, t Target) models.SignalResult {
	if p.endpoint == "" {
		return models.Unavailable(p.Name(), "vision analyzer not configured")
	}
	if p.shots == nil || !p.shots.Enabled() {
		return models.Unavailable(p.Name(), "screenshots are disabled")
	}

	png, err := p.shots.Capture(ctx, t.PageURL())
	if err != nil {
		return models.Unavailable(p.Name(), "screenshot failed: "+reason(err))
	}

	var resp visualResponse
	req := visualRequest{URL: t.PageURL(), Domain: t.Domain, Image: base64.StdEncoding.EncodeToString(png)}
	if err := postJSON(ctx, p.client, p.endpoint, p.apiKey, req, &resp); err != nil {
		return models.Unavailable(p.Name(), reason(err))
	}
	if resp.PhishingScore == nil {
		return models.Unavailable(p.Name(), "analyzer response missing phishing_score")
	}

	payload := models.VisualPayload{
		Score:              p.scale.Normalize(*resp.PhishingScore),
		RawScore:           *resp.PhishingScore,
		RiskLevel:          strings.ToLower(strings.TrimSpace(resp.RiskLevel)),
		SuspiciousElements: resp.SuspiciousElements,
		LegitimateElements: resp.LegitimateElements,
		Assessment:         resp.OverallAssessment,
	}
	for _, l := range resp.Logos {
		if l.Description != "" {
			payload.Logos = append(payload.Logos, l.Description)
		}
	}
	return models.Success(p.Name(), payload)
}
