// Package storage defines the persistence contracts shared by the postgres,
// sqlite and redis backends.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"catchphish/internal/models"
)

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrDuplicateReport = errors.New("report already exists")
)

// ReportStore persists report attempts keyed by their owning identity.
type ReportStore interface {
	SaveReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
	CountReportsByStatus(ctx context.Context) (map[string]int, error)
	Ping(ctx context.Context) error
	Close() error
}

// ReportedSet records which candidate domains have already been reported for a
// protected domain. Entries are never removed.
type ReportedSet interface {
	Contains(ctx context.Context, protected, candidate string) (bool, error)
	Add(ctx context.Context, protected, candidate string) error
}

// MemoryReportedSet is a process-local ReportedSet.
type MemoryReportedSet struct {
	mu      sync.RWMutex
	entries map[string]struct{}
}

// NewMemoryReportedSet creates an empty in-memory set.
func NewMemoryReportedSet() *MemoryReportedSet {
	return &MemoryReportedSet{entries: make(map[string]struct{})}
}

// Key joins a protected and candidate domain into one set key.
func Key(protected, candidate string) string {
	return protected + "|" + candidate
}

func (s *MemoryReportedSet) Contains(_ context.Context, protected, candidate string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[Key(protected, candidate)]
	return ok, nil
}

func (s *MemoryReportedSet) Add(_ context.Context, protected, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key(protected, candidate)] = struct{}{}
	return nil
}

// Len returns the number of entries.
func (s *MemoryReportedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
