// Package sqlite is a single-file ReportStore and ReportedSet for
// deployments without postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"catchphish/internal/models"
	"catchphish/internal/storage"
)

var (
	_ storage.ReportStore = (*Backend)(nil)
	_ storage.ReportedSet = (*Backend)(nil)
)

// Backend stores reports in a SQLite database.
type Backend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	domain TEXT NOT NULL,
	url TEXT NOT NULL,
	score REAL NOT NULL,
	tier TEXT NOT NULL,
	verdict TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('sent', 'failed')),
	stage TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL CHECK (source IN ('on_demand', 'monitor')),
	recipient TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_owner_created ON reports (owner, created_at);

CREATE TABLE IF NOT EXISTS reported_candidates (
	protected_domain TEXT NOT NULL,
	candidate_domain TEXT NOT NULL,
	reported_at INTEGER NOT NULL,
	PRIMARY KEY (protected_domain, candidate_domain)
);
`

// New opens dsn and creates the schema if needed.
func New(dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent monitors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) SaveReport(ctx context.Context, r *models.Report) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO reports (
		id, owner, domain, url, score, tier, verdict, status, stage, reason, source, recipient, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := b.db.ExecContext(ctx, query,
		r.ID.String(), r.Owner, r.Domain, r.URL, r.Score, string(r.Tier), r.Verdict,
		r.Status, r.Stage, r.Reason, r.Source, r.Recipient, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrDuplicateReport
		}
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

const selectReports = `SELECT id, owner, domain, url, score, tier, verdict, status, stage, reason,
	source, recipient, created_at FROM reports`

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*models.Report, error) {
	var (
		r         models.Report
		id, tier  string
		createdAt int64
	)
	err := row.Scan(&id, &r.Owner, &r.Domain, &r.URL, &r.Score, &tier, &r.Verdict,
		&r.Status, &r.Stage, &r.Reason, &r.Source, &r.Recipient, &createdAt)
	if err != nil {
		return nil, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("report id %q: %w", id, err)
	}
	r.Tier = models.ConfidenceTier(tier)
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	return &r, nil
}

func (b *Backend) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	r, err := scanReport(b.db.QueryRowContext(ctx, selectReports+` WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrReportNotFound
	}
	return r, err
}

func (b *Backend) ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	query := selectReports + ` WHERE 1=1`
	args := []any{}

	if filter.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, filter.Owner)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func (b *Backend) CountReportsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (b *Backend) Contains(ctx context.Context, protected, candidate string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reported_candidates WHERE protected_domain = ? AND candidate_domain = ?`,
		protected, candidate).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking reported candidate: %w", err)
	}
	return n > 0, nil
}

func (b *Backend) Add(ctx context.Context, protected, candidate string) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reported_candidates (protected_domain, candidate_domain, reported_at) VALUES (?, ?, ?)`,
		protected, candidate, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("recording reported candidate: %w", err)
	}
	return nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *Backend) Close() error {
	return b.db.Close()
}
