package risk

import (
	"errors"
	"fmt"

	"catchphish/internal/models"
)

// Policy holds the point budgets and tier thresholds used by the aggregator.
// Every field can be overridden from the YAML config file.
type Policy struct {
	ReputationMax   float64 `yaml:"reputation_max"`
	ReputationScale float64 `yaml:"reputation_scale"`
	SuspiciousMax   float64 `yaml:"suspicious_max"`
	SuspiciousScale float64 `yaml:"suspicious_scale"`

	FeedPoints float64 `yaml:"feed_points"`

	LexicalMax          float64 `yaml:"lexical_max"`
	LexicalPerIndicator float64 `yaml:"lexical_per_indicator"`

	ClassifierMax     float64 `yaml:"classifier_max"`
	ClassifierDivisor float64 `yaml:"classifier_divisor"`

	ContentMax float64 `yaml:"content_max"`

	HighThreshold     float64 `yaml:"high_threshold"`
	MediumThreshold   float64 `yaml:"medium_threshold"`
	LowThreshold      float64 `yaml:"low_threshold"`
	PhishingThreshold float64 `yaml:"phishing_threshold"`
}

// DefaultPolicy returns the standard budgets.
func DefaultPolicy() Policy {
	return Policy{
		ReputationMax:       50,
		ReputationScale:     100,
		SuspiciousMax:       10,
		SuspiciousScale:     30,
		FeedPoints:          30,
		LexicalMax:          20,
		LexicalPerIndicator: 5,
		ClassifierMax:       30,
		ClassifierDivisor:   3.33,
		ContentMax:          50,
		HighThreshold:       70,
		MediumThreshold:     40,
		LowThreshold:        20,
		PhishingThreshold:   40,
	}
}

// Validate checks that budgets are non-negative and thresholds are ordered.
func (p Policy) Validate() error {
	budgets := map[string]float64{
		"reputation_max":        p.ReputationMax,
		"reputation_scale":      p.ReputationScale,
		"suspicious_max":        p.SuspiciousMax,
		"suspicious_scale":      p.SuspiciousScale,
		"feed_points":           p.FeedPoints,
		"lexical_max":           p.LexicalMax,
		"lexical_per_indicator": p.LexicalPerIndicator,
		"classifier_max":        p.ClassifierMax,
		"content_max":           p.ContentMax,
	}
	for name, v := range budgets {
		if v < 0 {
			return fmt.Errorf("risk policy: %s must not be negative", name)
		}
	}
	if p.ClassifierDivisor <= 0 {
		return errors.New("risk policy: classifier_divisor must be positive")
	}
	if !(p.LowThreshold <= p.MediumThreshold && p.MediumThreshold <= p.HighThreshold) {
		return errors.New("risk policy: thresholds must satisfy low <= medium <= high")
	}
	if p.LowThreshold < 0 || p.HighThreshold > maxScore {
		return fmt.Errorf("risk policy: thresholds must lie within [0,%v]", maxScore)
	}
	return nil
}

// Tier maps a score to its confidence tier.
func (p Policy) Tier(score float64) models.ConfidenceTier {
	switch {
	case score >= p.HighThreshold:
		return models.TierHigh
	case score >= p.MediumThreshold:
		return models.TierMedium
	case score >= p.LowThreshold:
		return models.TierLow
	default:
		return models.TierVeryLow
	}
}
