package signals

import (
	"context"
	"net/http"

	"catchphish/internal/models"
)

// ClassifierProvider queries an external URL classifier service.
// The service receives {"url": ...} and answers {"score": 0-100, "model": "..."}.
type ClassifierProvider struct {
	endpoint string
	client   *http.Client
}

// NewClassifierProvider creates a classifier client.
func NewClassifierProvider(endpoint string, client *http.Client) *ClassifierProvider {
	return &ClassifierProvider{endpoint: endpoint, client: client}
}

func (p *ClassifierProvider) Name() models.SignalName { return models.SignalClassifier }

type classifierResponse struct {
	Score *float64 `json:"score"`
	Model string   `json:"model"`
}

func (p *ClassifierProvider) Collect(ctx context.Context, t Target) models.SignalResult {
	if p.endpoint == "" {
		return models.Unavailable(p.Name(), "classifier not configured")
	}

	var resp classifierResponse
	if err := postJSON(ctx, p.client, p.endpoint, "", map[string]string{"url": t.PageURL()}, &resp); err != nil {
		return models.Unavailable(p.Name(), reason(err))
	}
	if resp.Score == nil {
		return models.Unavailable(p.Name(), "classifier response missing score")
	}
	// Range checks belong to the aggregator, which records them as warnings.
	return models.Success(p.Name(), models.ClassifierPayload{Score: *resp.Score, Model: resp.Model})
}

