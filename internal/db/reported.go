package db

import (
	"context"
	"fmt"
)

// Contains reports whether candidate was already reported for protected.
func (d *DB) Contains(ctx context.Context, protected, candidate string) (bool, error) {
	var exists bool
	err := d.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reported_candidates
			WHERE protected_domain = $1 AND candidate_domain = $2
		)`, protected, candidate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reported candidate: %w", err)
	}
	return exists, nil
}

// Add records candidate as reported for protected. Adding twice is a no-op.
func (d *DB) Add(ctx context.Context, protected, candidate string) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO reported_candidates (protected_domain, candidate_domain)
		VALUES ($1, $2)
		ON CONFLICT (protected_domain, candidate_domain) DO NOTHING`, protected, candidate)
	if err != nil {
		return fmt.Errorf("failed to record reported candidate: %w", err)
	}
	return nil
}
