package models

import "time"

// ConfidenceTier is the coarse bucket derived from the numeric score.
type ConfidenceTier string

const (
	TierVeryLow ConfidenceTier = "VeryLow"
	TierLow     ConfidenceTier = "Low"
	TierMedium  ConfidenceTier = "Medium"
	TierHigh    ConfidenceTier = "High"
)

// Label returns the human-readable form used in reports.
func (t ConfidenceTier) Label() string {
	switch t {
	case TierVeryLow:
		return "Very Low"
	case "":
		return "Unknown"
	default:
		return string(t)
	}
}

// Contribution is one signal's share of the score.
type Contribution struct {
	Signal   SignalName `json:"signal"`
	Points   float64    `json:"points"`
	RawValue float64    `json:"raw_value"`
}

// RiskAssessment is the result of one analysis. It is built once by the
// aggregator and handed around by value; nothing downstream modifies it.
type RiskAssessment struct {
	Domain                string                      `json:"domain"`
	URL                   string                      `json:"url,omitempty"`
	Score                 float64                     `json:"score"`
	Tier                  ConfidenceTier              `json:"confidence_tier"`
	IsPhishing            bool                        `json:"is_phishing"`
	InsufficientData      bool                        `json:"insufficient_data"`
	Contributions         []Contribution              `json:"contributing_signals"`
	Absent                []SignalName                `json:"absent_signals,omitempty"`
	Warnings              []string                    `json:"warnings,omitempty"`
	Signals               map[SignalName]SignalResult `json:"signals,omitempty"`
	RawProviderConfidence *float64                    `json:"raw_provider_confidence,omitempty"`
	AssessedAt            time.Time                   `json:"assessed_at"`
}

// Signal returns the collected result for name, if any.
func (a RiskAssessment) Signal(name SignalName) (SignalResult, bool) {
	r, ok := a.Signals[name]
	return r, ok
}

// Contribution returns the points applied for a signal (0 if absent).
func (a RiskAssessment) Contribution(name SignalName) float64 {
	for _, c := range a.Contributions {
		if c.Signal == name {
			return c.Points
		}
	}
	return 0
}

// Verdict returns "phishing" or "safe", the status vocabulary used in report history.
func (a RiskAssessment) Verdict() string {
	if a.IsPhishing {
		return VerdictPhishing
	}
	return VerdictSafe
}

const (
	VerdictPhishing = "phishing"
	VerdictSafe     = "safe"
)
