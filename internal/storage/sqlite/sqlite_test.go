package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"catchphish/internal/models"
	"catchphish/internal/storage"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "catchphish.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackend_Reports(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r := &models.Report{
		Owner:     "alice@example.com",
		Domain:    "paypa1.com",
		URL:       "http://paypa1.com/login",
		Score:     85.5,
		Tier:      models.TierHigh,
		Verdict:   models.VerdictPhishing,
		Status:    models.ReportSent,
		Source:    models.SourceOnDemand,
		Recipient: "cert@example.org",
		CreatedAt: now,
	}
	if err := b.SaveReport(ctx, r); err != nil {
		t.Fatalf("Failed to save report: %v", err)
	}
	if r.ID == uuid.Nil {
		t.Fatal("Expected SaveReport to assign an ID")
	}

	got, err := b.GetReport(ctx, r.ID)
	if err != nil {
		t.Fatalf("Failed to get report: %v", err)
	}
	if got.Domain != r.Domain {
		t.Errorf("Expected Domain %s, got %s", r.Domain, got.Domain)
	}
	if got.Score != r.Score {
		t.Errorf("Expected Score %v, got %v", r.Score, got.Score)
	}
	if got.Tier != models.TierHigh {
		t.Errorf("Expected Tier %s, got %s", models.TierHigh, got.Tier)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("Expected CreatedAt %v, got %v", now, got.CreatedAt)
	}

	if err := b.SaveReport(ctx, r); !errors.Is(err, storage.ErrDuplicateReport) {
		t.Errorf("Expected ErrDuplicateReport, got %v", err)
	}
	if _, err := b.GetReport(ctx, uuid.New()); !errors.Is(err, storage.ErrReportNotFound) {
		t.Errorf("Expected ErrReportNotFound, got %v", err)
	}
}

func TestSQLiteBackend_ListReports(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []struct {
		owner, domain, status string
		age                   time.Duration
	}{
		{"alice@example.com", "old.example", models.ReportSent, 10 * 24 * time.Hour},
		{"alice@example.com", "new.example", models.ReportFailed, time.Hour},
		{"bob@example.com", "bob.example", models.ReportSent, 2 * time.Hour},
	}
	for _, s := range seed {
		err := b.SaveReport(ctx, &models.Report{
			Owner: s.owner, Domain: s.domain, Status: s.status,
			Tier: models.TierLow, Verdict: models.VerdictSafe, Source: models.SourceMonitor,
			CreatedAt: now.Add(-s.age),
		})
		if err != nil {
			t.Fatalf("Failed to save report: %v", err)
		}
	}

	since := now.Add(-7 * 24 * time.Hour)
	tests := []struct {
		name   string
		filter models.ReportFilter
		want   []string
	}{
		{"all newest first", models.ReportFilter{}, []string{"new.example", "bob.example", "old.example"}},
		{"by owner", models.ReportFilter{Owner: "alice@example.com"}, []string{"new.example", "old.example"}},
		{"since", models.ReportFilter{Since: &since}, []string{"new.example", "bob.example"}},
		{"limit", models.ReportFilter{Limit: 2}, []string{"new.example", "bob.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.ListReports(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Failed to list reports: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d reports, got %d", len(tt.want), len(got))
			}
			for i, d := range tt.want {
				if got[i].Domain != d {
					t.Errorf("Expected reports[%d] %s, got %s", i, d, got[i].Domain)
				}
			}
		})
	}

	counts, err := b.CountReportsByStatus(ctx)
	if err != nil {
		t.Fatalf("Failed to count reports: %v", err)
	}
	if counts[models.ReportSent] != 2 || counts[models.ReportFailed] != 1 {
		t.Errorf("Expected sent=2 failed=1, got %v", counts)
	}
}

func TestSQLiteBackend_ReportedSet(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if ok, err := b.Contains(ctx, "paypal.com", "paypa1.com"); err != nil || ok {
		t.Fatalf("Expected empty set, got %v, %v", ok, err)
	}
	for i := 0; i < 2; i++ {
		if err := b.Add(ctx, "paypal.com", "paypa1.com"); err != nil {
			t.Fatalf("Failed to add: %v", err)
		}
	}
	if ok, _ := b.Contains(ctx, "paypal.com", "paypa1.com"); !ok {
		t.Error("Expected candidate to be recorded")
	}
	if ok, _ := b.Contains(ctx, "google.com", "paypa1.com"); ok {
		t.Error("Expected sets to be scoped by protected domain")
	}
}

func TestSQLiteBackend_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	b, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	if err := b.Add(ctx, "paypal.com", "paypa1.com"); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	b.Close()

	b, err = New(path)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite backend: %v", err)
	}
	defer b.Close()
	if ok, _ := b.Contains(ctx, "paypal.com", "paypa1.com"); !ok {
		t.Error("Expected reported set to survive a restart")
	}
}
