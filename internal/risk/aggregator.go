// Package risk combines independently collected signals into a bounded
// phishing-risk score and confidence tier.
package risk

import (
	"fmt"
	"math"
	"time"

	"catchphish/internal/models"
)

const maxScore = 100

// SignalReputationSuspicious labels the sub-score derived from engines that
// flagged the domain as suspicious rather than malicious.
const SignalReputationSuspicious models.SignalName = "reputation_suspicious"

// ScoringSignals lists the signals that contribute points, in the order their
// contributions are reported.
var ScoringSignals = []models.SignalName{
	models.SignalReputation,
	models.SignalThreatFeed,
	models.SignalLexical,
	models.SignalClassifier,
	models.SignalContent,
}

// Aggregator turns a set of signal results into a RiskAssessment.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	policy Policy
	now    func() time.Time
}

// NewAggregator creates an aggregator bound to a policy.
func NewAggregator(policy Policy) *Aggregator {
	return &Aggregator{policy: policy, now: time.Now}
}

// Policy returns the policy in use.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Aggregate scores the signals collected for domain. Missing, unavailable and
// malformed signals contribute nothing; malformed ones also produce a warning.
// Aggregation never fails.
func (a *Aggregator) Aggregate(domain string, signals map[models.SignalName]models.SignalResult) models.RiskAssessment {
	out := models.RiskAssessment{
		Domain:     domain,
		Signals:    make(map[models.SignalName]models.SignalResult, len(signals)),
		AssessedAt: a.now().UTC(),
	}
	for name, r := range signals {
		out.Signals[name] = r
	}

	var (
		total  float64
		usable int
		listed bool
	)
	add := func(c models.Contribution) {
		out.Contributions = append(out.Contributions, c)
		total += c.Points
	}
	absent := func(name models.SignalName, warning string) {
		out.Absent = append(out.Absent, name)
		if warning != "" {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s; excluded", name, warning))
		}
	}

	for _, name := range ScoringSignals {
		r, ok := signals[name]
		if !ok || !r.IsAvailable() {
			absent(name, "")
			continue
		}

		switch name {
		case models.SignalReputation:
			p, ok := models.PayloadOf[models.ReputationPayload](r.Payload)
			if !ok {
				absent(name, wrongType(r.Payload))
				continue
			}
			mal, sub, warn := a.reputation(p)
			if warn != "" {
				absent(name, warn)
				continue
			}
			usable++
			add(mal)
			if sub != nil {
				add(*sub)
			}

		case models.SignalThreatFeed:
			p, ok := models.PayloadOf[models.FeedPayload](r.Payload)
			if !ok {
				absent(name, wrongType(r.Payload))
				continue
			}
			usable++
			c := models.Contribution{Signal: name}
			if p.Listed {
				listed = true
				c.Points = a.policy.FeedPoints
				c.RawValue = 1
			}
			add(c)

		case models.SignalLexical:
			p, ok := models.PayloadOf[models.LexicalPayload](r.Payload)
			if !ok {
				absent(name, wrongType(r.Payload))
				continue
			}
			usable++
			n := float64(p.Count())
			add(models.Contribution{
				Signal:   name,
				Points:   math.Min(a.policy.LexicalMax, n*a.policy.LexicalPerIndicator),
				RawValue: n,
			})

		case models.SignalClassifier:
			p, ok := models.PayloadOf[models.ClassifierPayload](r.Payload)
			if !ok {
				absent(name, wrongType(r.Payload))
				continue
			}
			if warn := checkPercent(p.Score); warn != "" {
				absent(name, warn)
				continue
			}
			usable++
			add(models.Contribution{
				Signal:   name,
				Points:   math.Min(a.policy.ClassifierMax, p.Score/a.policy.ClassifierDivisor),
				RawValue: p.Score,
			})

		case models.SignalContent:
			p, ok := models.PayloadOf[models.ContentPayload](r.Payload)
			if !ok {
				absent(name, wrongType(r.Payload))
				continue
			}
			if warn := checkPercent(p.Score); warn != "" {
				absent(name, warn)
				continue
			}
			usable++
			add(models.Contribution{
				Signal:   name,
				Points:   math.Min(a.policy.ContentMax, p.Score),
				RawValue: p.Score,
			})
			if p.RawConfidence != nil && isFinite(*p.RawConfidence) {
				v := *p.RawConfidence
				out.RawProviderConfidence = &v
			}
		}
	}

	if usable == 0 {
		out.Score = 0
		out.Tier = models.TierVeryLow
		out.InsufficientData = true
		return out
	}

	out.Score = clamp(total, 0, maxScore)
	out.Tier = a.policy.Tier(out.Score)
	out.IsPhishing = out.Score >= a.policy.PhishingThreshold || listed
	return out
}

// reputation returns the malicious-engine contribution and, when any engine
// reported the domain as suspicious, the suspicious sub-score.
func (a *Aggregator) reputation(p models.ReputationPayload) (models.Contribution, *models.Contribution, string) {
	switch {
	case p.Malicious < 0 || p.Suspicious < 0 || p.Total < 0:
		return models.Contribution{}, nil, "negative engine count"
	case p.Malicious > p.Total:
		return models.Contribution{}, nil, fmt.Sprintf("%d malicious engines of %d total", p.Malicious, p.Total)
	case p.Suspicious > p.Total:
		return models.Contribution{}, nil, fmt.Sprintf("%d suspicious engines of %d total", p.Suspicious, p.Total)
	}

	// No engines answered and none flagged: a genuine zero.
	denom := float64(p.Total)
	if denom == 0 {
		denom = 1
	}

	ratio := float64(p.Malicious) / denom
	mal := models.Contribution{
		Signal:   models.SignalReputation,
		Points:   math.Min(a.policy.ReputationMax, ratio*a.policy.ReputationScale),
		RawValue: ratio,
	}
	if p.Suspicious == 0 {
		return mal, nil, ""
	}
	sratio := float64(p.Suspicious) / denom
	return mal, &models.Contribution{
		Signal:   SignalReputationSuspicious,
		Points:   math.Min(a.policy.SuspiciousMax, sratio*a.policy.SuspiciousScale),
		RawValue: sratio,
	}, ""
}

func wrongType(v any) string {
	return fmt.Sprintf("unexpected payload type %T", v)
}

func checkPercent(v float64) string {
	switch {
	case !isFinite(v):
		return fmt.Sprintf("score %v is not a number", v)
	case v < 0 || v > maxScore:
		return fmt.Sprintf("score %v outside [0,100]", v)
	}
	return ""
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
