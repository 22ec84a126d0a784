package signals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"catchphish/internal/models"
	"catchphish/internal/validation"
)

// ScoreScale says how the content analyzer expresses its score.
type ScoreScale string

const (
	// ScaleUnit means scores in [0,1]; they are multiplied by 100.
	ScaleUnit ScoreScale = "unit"
	// ScalePercent means scores already in [0,100].
	ScalePercent ScoreScale = "percent"
)

// ParseScoreScale validates a scale name from configuration.
func ParseScoreScale(s string) (ScoreScale, error) {
	switch ScoreScale(strings.ToLower(strings.TrimSpace(s))) {
	case ScaleUnit:
		return ScaleUnit, nil
	case ScalePercent, "":
		return ScalePercent, nil
	default:
		return "", fmt.Errorf("unknown score scale %q (want unit or percent)", s)
	}
}

// Normalize converts a raw analyzer score to [0,100] units.
func (s ScoreScale) Normalize(raw float64) float64 {
	if s == ScaleUnit {
		return raw * 100
	}
	return raw
}

const (
	maxPageSize   = 2 * 1024 * 1024
	maxPromptText = 4000
)

// PageSummary is what the content analyzer sees of a page.
type PageSummary struct {
	URL                 string   `json:"url"`
	Domain              string   `json:"domain"`
	Title               string   `json:"title"`
	Text                string   `json:"text"`
	Forms               int      `json:"forms"`
	PasswordFields      int      `json:"password_fields"`
	ExternalFormActions []string `json:"external_form_actions,omitempty"`
}

type contentResponse struct {
	Score       *float64 `json:"score"`
	Confidence  *float64 `json:"confidence"`
	RiskFactors []string `json:"risk_factors"`
}

// ContentProvider fetches the suspect page, extracts its visible text and
// forms, and asks an LLM-backed analyzer to score it.
type ContentProvider struct {
	endpoint string
	apiKey   string
	scale    ScoreScale
	client   *http.Client
	fetcher  *http.Client
	lookup   validation.Resolver
	// allowPrivate disables the SSRF guard; only tests set it.
	allowPrivate bool
}

// NewContentProvider creates a content analyzer client.
func NewContentProvider(endpoint, apiKey string, scale ScoreScale, client *http.Client) *ContentProvider {
	p := &ContentProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		scale:    scale,
		client:   client,
	}
	p.fetcher = &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return p.checkFetchable(req.URL.String())
		},
	}
	return p
}

func (p *ContentProvider) Name() models.SignalName { return models.SignalContent }

func (p *ContentProvider) Collect(ctx context.Context, t Target) models.SignalResult {
	if p.endpoint == "" {
		return models.Unavailable(p.Name(), "content analyzer not configured")
	}

	page, err := p.fetchPage(ctx, t)
	if err != nil {
		return models.Unavailable(p.Name(), "page fetch failed: "+reason(err))
	}

	var resp contentResponse
	if err := postJSON(ctx, p.client, p.endpoint, p.apiKey, page, &resp); err != nil {
		return models.Unavailable(p.Name(), reason(err))
	}
	if resp.Score == nil {
		return models.Unavailable(p.Name(), "analyzer response missing score")
	}

	payload := models.ContentPayload{
		Score:         p.scale.Normalize(*resp.Score),
		RawScore:      *resp.Score,
		RawConfidence: resp.Confidence,
		RiskFactors:   resp.RiskFactors,
		Title:         page.Title,
	}
	if page.PasswordFields > 0 && len(page.ExternalFormActions) > 0 {
		payload.RiskFactors = append(payload.RiskFactors, "Password form submits to another host")
	}
	return models.Success(p.Name(), payload)
}

func (p *ContentProvider) checkFetchable(rawURL string) error {
	if p.allowPrivate {
		return nil
	}
	return validation.ValidateURLForFetch(rawURL, p.lookup)
}

func (p *ContentProvider) fetchPage(ctx context.Context, t Target) (PageSummary, error) {
	pageURL := t.PageURL()
	if err := p.checkFetchable(pageURL); err != nil {
		return PageSummary{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return PageSummary{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; catchphish/1.0)")

	resp, err := p.fetcher.Do(req)
	if err != nil {
		return PageSummary{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return PageSummary{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return SummarizePage(io.LimitReader(resp.Body, maxPageSize), resp.Request.URL, t.Domain)
}

// SummarizePage extracts title, visible text and form details from HTML.
func SummarizePage(r io.Reader, base *url.URL, domain string) (PageSummary, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return PageSummary{}, fmt.Errorf("parsing page: %w", err)
	}

	summary := PageSummary{
		URL:    base.String(),
		Domain: domain,
		Title:  strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("script, style, noscript, template").Remove()
	summary.Text = truncate(strings.Join(strings.Fields(doc.Find("body").Text()), " "), maxPromptText)

	seen := make(map[string]struct{})
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		summary.Forms++
		summary.PasswordFields += form.Find(`input[type="password"]`).Length()

		action, ok := form.Attr("action")
		if !ok || action == "" {
			return
		}
		target, err := base.Parse(action)
		if err != nil || target.Hostname() == "" {
			return
		}
		host := strings.ToLower(target.Hostname())
		if host == base.Hostname() {
			return
		}
		if _, dup := seen[host]; !dup {
			seen[host] = struct{}{}
			summary.ExternalFormActions = append(summary.ExternalFormActions, host)
		}
	})
	return summary, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Avoid cutting a multi-byte rune in half.
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
