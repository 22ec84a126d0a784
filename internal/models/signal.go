package models

import "time"

// SignalName identifies one independently-sourced piece of evidence.
type SignalName string

// Signal names. The first group feeds the risk score, the second only enriches reports.
const (
	SignalReputation SignalName = "reputation"
	SignalThreatFeed SignalName = "threat_feed"
	SignalLexical    SignalName = "lexical"
	SignalClassifier SignalName = "classifier"
	SignalContent    SignalName = "content"

	SignalRegistration SignalName = "registration"
	SignalDNS          SignalName = "dns"
	SignalVisual       SignalName = "visual"
)

// SignalStatus is the tag of a SignalResult.
type SignalStatus string

const (
	SignalOK          SignalStatus = "ok"
	SignalUnavailable SignalStatus = "unavailable"
)

// SignalResult is what a provider returns for a single invocation. Exactly one
// of Payload (status ok) or Reason (status unavailable) is meaningful.
type SignalResult struct {
	Name     SignalName    `json:"name"`
	Status   SignalStatus  `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Payload  any           `json:"payload,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// Success wraps a typed payload.
func Success(name SignalName, payload any) SignalResult {
	return SignalResult{Name: name, Status: SignalOK, Payload: payload}
}

// Unavailable records why a signal could not be produced.
func Unavailable(name SignalName, reason string) SignalResult {
	return SignalResult{Name: name, Status: SignalUnavailable, Reason: reason}
}

// IsAvailable returns true if the provider produced data.
func (r SignalResult) IsAvailable() bool {
	return r.Status == SignalOK && r.Payload != nil
}

// PayloadOf returns the payload as T. It accepts both T and *T.
func PayloadOf[T any](v any) (T, bool) {
	switch p := v.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}

// ReputationPayload is the engine verdict summary from a reputation service.
type ReputationPayload struct {
	Malicious    int        `json:"malicious"`
	Suspicious   int        `json:"suspicious"`
	Total        int        `json:"total"`
	Reputation   int        `json:"reputation"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
}

// FeedPayload reports threat feed membership.
type FeedPayload struct {
	Listed        bool   `json:"listed"`
	FeedName      string `json:"feed_name,omitempty"`
	MatchedDomain string `json:"matched_domain,omitempty"`
}

// LexicalPayload lists suspicious lexical indicators found in the domain.
type LexicalPayload struct {
	Indicators []string `json:"indicators"`
}

// Count returns the number of indicators.
func (p LexicalPayload) Count() int {
	return len(p.Indicators)
}

// ClassifierPayload is the trained model's phishing score in [0,100].
type ClassifierPayload struct {
	Score float64 `json:"score"`
	Model string  `json:"model,omitempty"`
}

// ContentPayload is the content analyzer verdict. Score is already normalized to [0,100].
type ContentPayload struct {
	Score         float64  `json:"score"`
	RawScore      float64  `json:"raw_score"`
	RawConfidence *float64 `json:"raw_confidence,omitempty"`
	RiskFactors   []string `json:"risk_factors,omitempty"`
	Title         string   `json:"title,omitempty"`
}

// VisualPayload is the vision analyzer verdict on a page screenshot. Score is
// normalized to [0,100] but does not contribute to the risk score.
type VisualPayload struct {
	Score              float64  `json:"score"`
	RawScore           float64  `json:"raw_score"`
	RiskLevel          string   `json:"risk_level,omitempty"`
	SuspiciousElements []string `json:"suspicious_elements,omitempty"`
	LegitimateElements []string `json:"legitimate_elements,omitempty"`
	Logos              []string `json:"logos,omitempty"`
	Assessment         string   `json:"assessment,omitempty"`
}

// RegistrationPayload holds registration metadata from RDAP.
type RegistrationPayload struct {
	Registrar    string     `json:"registrar,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Country      string     `json:"country,omitempty"`
	Nameservers  []string   `json:"nameservers,omitempty"`
	AgeDays      *int       `json:"age_days,omitempty"`
	RDAPStatuses []string   `json:"statuses,omitempty"`
}

// DNSPayload holds resolved records for the domain.
type DNSPayload struct {
	A  []string `json:"a"`
	NS []string `json:"ns"`
	MX []string `json:"mx"`
}
