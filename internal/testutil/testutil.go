// Package testutil provides test utilities and helpers.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"catchphish/internal/db"
	"catchphish/internal/models"
	"catchphish/internal/storage"
	"catchphish/internal/storage/sqlite"
)

// TestDB connects to TEST_DATABASE_URL, runs migrations and returns a cleanup
// function. The test is skipped when the variable is unset.
func TestDB(t *testing.T) (*db.DB, func()) {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	ctx := context.Background()
	database, err := db.New(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := database.RunMigrations(connString); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		cleanupTestData(ctx, database.Pool)
		database.Close()
	}

	return database, cleanup
}

func cleanupTestData(ctx context.Context, pool *pgxpool.Pool) {
	pool.Exec(ctx, "DELETE FROM reported_candidates")
	pool.Exec(ctx, "DELETE FROM reports")
}

// SQLiteStore opens a throwaway sqlite store that is closed when the test ends.
func SQLiteStore(t *testing.T) *sqlite.Backend {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "catchphish.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// CreateTestReport saves a report for owner and returns it.
func CreateTestReport(t *testing.T, store storage.ReportStore, owner, domain, status, verdict string, at time.Time) *models.Report {
	t.Helper()

	r := &models.Report{
		Owner:     owner,
		Domain:    domain,
		URL:       "http://" + domain,
		Score:     80,
		Tier:      models.TierHigh,
		Verdict:   verdict,
		Status:    status,
		Source:    models.SourceOnDemand,
		CreatedAt: at,
	}
	if status == models.ReportFailed {
		r.Stage = "delivery"
		r.Reason = "smtp unavailable"
	}
	if err := store.SaveReport(context.Background(), r); err != nil {
		t.Fatalf("failed to create test report: %v", err)
	}
	return r
}
