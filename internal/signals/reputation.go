package signals

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catchphish/internal/models"
)

// DefaultVirusTotalURL is the VirusTotal v3 API base.
const DefaultVirusTotalURL = "https://www.virustotal.com/api/v3"

// ReputationProvider looks a domain up in VirusTotal and summarizes how many
// engines flagged it.
type ReputationProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewReputationProvider creates a VirusTotal-backed provider.
func NewReputationProvider(baseURL, apiKey string, client *http.Client) *ReputationProvider {
	if baseURL == "" {
		baseURL = DefaultVirusTotalURL
	}
	return &ReputationProvider{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (p *ReputationProvider) Name() models.SignalName { return models.SignalReputation }

type vtDomainResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
				Timeout    int `json:"timeout"`
			} `json:"last_analysis_stats"`
			LastAnalysisResults map[string]struct {
				Category string `json:"category"`
			} `json:"last_analysis_results"`
			Reputation   int   `json:"reputation"`
			CreationDate int64 `json:"creation_date"`
		} `json:"attributes"`
	} `json:"data"`
}

func (p *ReputationProvider) Collect(ctx context.Context, t Target) models.SignalResult {
	if p.apiKey == "" {
		return models.Unavailable(p.Name(), "no API key configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/domains/"+url.PathEscape(t.Domain), nil)
	if err != nil {
		return models.Unavailable(p.Name(), err.Error())
	}
	req.Header.Set("x-apikey", p.apiKey)

	var body vtDomainResponse
	if err := doJSON(p.client, req, &body); err != nil {
		if errors.Is(err, errNotFound) {
			return models.Unavailable(p.Name(), "domain unknown to reputation service")
		}
		return models.Unavailable(p.Name(), reason(err))
	}

	attrs := body.Data.Attributes
	payload := models.ReputationPayload{Reputation: attrs.Reputation}

	// Per-engine results are authoritative when present; stats are the fallback.
	if len(attrs.LastAnalysisResults) > 0 {
		payload.Total = len(attrs.LastAnalysisResults)
		for _, r := range attrs.LastAnalysisResults {
			switch r.Category {
			case "malicious":
				payload.Malicious++
			case "suspicious":
				payload.Suspicious++
			}
		}
	} else {
		s := attrs.LastAnalysisStats
		payload.Malicious = s.Malicious
		payload.Suspicious = s.Suspicious
		payload.Total = s.Malicious + s.Suspicious + s.Harmless + s.Undetected + s.Timeout
	}

	if attrs.CreationDate > 0 {
		created := time.Unix(attrs.CreationDate, 0).UTC()
		payload.CreationDate = &created
	}
	return models.Success(p.Name(), payload)
}
