package models

import (
	"time"

	"github.com/google/uuid"
)

// Report delivery status constants
const (
	ReportSent   = "sent"
	ReportFailed = "failed"
)

// Report source constants
const (
	SourceOnDemand = "on_demand"
	SourceMonitor  = "monitor"
)

// Report is a persisted record of one report attempt.
type Report struct {
	ID        uuid.UUID      `json:"id"`
	Owner     string         `json:"owner"`
	Domain    string         `json:"domain"`
	URL       string         `json:"url"`
	Score     float64        `json:"score"`
	Tier      ConfidenceTier `json:"confidence_tier"`
	Verdict   string         `json:"verdict"`
	Status    string         `json:"status"`
	Stage     string         `json:"stage,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Source    string         `json:"source"`
	Recipient string         `json:"recipient,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsSent returns true if the report was delivered.
func (r *Report) IsSent() bool {
	return r.Status == ReportSent
}

// ReportFilter narrows report queries.
type ReportFilter struct {
	Owner string // empty means all owners
	Since *time.Time
	Limit int
}

// ReportOutcome is the result of the delivery stage.
type ReportOutcome struct {
	Status   string    `json:"status"`
	Stage    string    `json:"stage,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	ReportID uuid.UUID `json:"report_id"`
}

// Sent returns true if the report was dispatched.
func (o ReportOutcome) Sent() bool {
	return o.Status == ReportSent
}

// DailyStats is one row of the scan history.
type DailyStats struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Phishing int    `json:"phishing"`
	Safe     int    `json:"safe"`
	Failed   int    `json:"failed"`
}

// GroupByDay buckets reports into one row per day from since to now (UTC),
// filling days without reports with zeros.
func GroupByDay(reports []Report, since, now time.Time) []DailyStats {
	byDate := make(map[string]*DailyStats)
	for _, r := range reports {
		key := r.CreatedAt.UTC().Format("2006-01-02")
		row, ok := byDate[key]
		if !ok {
			row = &DailyStats{Date: key}
			byDate[key] = row
		}
		row.Total++
		switch {
		case r.Status == ReportFailed:
			row.Failed++
		case r.Verdict == VerdictPhishing:
			row.Phishing++
		default:
			row.Safe++
		}
	}

	var out []DailyStats
	since = since.UTC()
	day := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(now.UTC()) {
		key := day.Format("2006-01-02")
		if row, ok := byDate[key]; ok {
			out = append(out, *row)
		} else {
			out = append(out, DailyStats{Date: key})
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}
