package models

import "time"

// TyposquatCandidate is a domain lexically close to a protected domain.
type TyposquatCandidate struct {
	CandidateDomain string  `json:"candidate_domain"`
	ProtectedDomain string  `json:"protected_domain"`
	Similarity      float64 `json:"similarity_score"`
}

// MonitorStatus describes a running monitor task.
type MonitorStatus struct {
	ProtectedDomain string     `json:"protected_domain"`
	Owner           string     `json:"owner,omitempty"`
	Interval        string     `json:"interval"`
	StartedAt       time.Time  `json:"started_at"`
	Cycles          int        `json:"cycles"`
	LastCycleAt     *time.Time `json:"last_cycle_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	Reported        int        `json:"reported"`
	PendingRetries  int        `json:"pending_retries"`
}

// StartMonitorResponse is returned by the start_monitor operation.
type StartMonitorResponse struct {
	Started        bool          `json:"started"`
	AlreadyRunning bool          `json:"already_running"`
	Status         MonitorStatus `json:"status"`
}

// FuzzySearchResponse is the ranked result of fuzzy_search.
type FuzzySearchResponse struct {
	Domain     string               `json:"domain"`
	Candidates []TyposquatCandidate `json:"candidates"`
}

// ReportResponse combines an on-demand assessment with its delivery outcome.
type ReportResponse struct {
	Assessment RiskAssessment `json:"assessment"`
	Outcome    ReportOutcome  `json:"outcome"`
}
