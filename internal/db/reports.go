package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"catchphish/internal/models"
)

// reportColumns is the standard column list for report queries.
const reportColumns = `id, owner, domain, url, score, tier, verdict, status, stage, reason,
	source, recipient, created_at`

// scanReport scans a row into a Report struct.
func scanReport(row pgx.Row) (*models.Report, error) {
	var r models.Report
	err := row.Scan(
		&r.ID,
		&r.Owner,
		&r.Domain,
		&r.URL,
		&r.Score,
		&r.Tier,
		&r.Verdict,
		&r.Status,
		&r.Stage,
		&r.Reason,
		&r.Source,
		&r.Recipient,
		&r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveReport inserts a report. A zero ID is replaced with a new UUID and a
// zero CreatedAt with the database time.
func (d *DB) SaveReport(ctx context.Context, r *models.Report) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	query := `
		INSERT INTO reports (id, owner, domain, url, score, tier, verdict, status, stage, reason, source, recipient, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, NOW()))
		RETURNING created_at
	`
	var createdAt any
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt
	}

	err := d.Pool.QueryRow(ctx, query,
		r.ID, r.Owner, r.Domain, r.URL, r.Score, string(r.Tier), r.Verdict,
		r.Status, r.Stage, r.Reason, r.Source, r.Recipient, createdAt,
	).Scan(&r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReport
		}
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (d *DB) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	return scanReport(d.Pool.QueryRow(ctx, query, id))
}

// ListReports returns reports newest first, narrowed by filter.
func (d *DB) ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	var (
		where []string
		args  []any
	)
	if filter.Owner != "" {
		args = append(args, filter.Owner)
		where = append(where, fmt.Sprintf("owner = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
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

// CountReportsByStatus returns the number of stored reports per delivery status.
func (d *DB) CountReportsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := d.Pool.Query(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
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
