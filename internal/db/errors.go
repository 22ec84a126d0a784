package db

import "catchphish/internal/storage"

// Domain-level database error sentinels, shared with the other backends.
var (
	ErrReportNotFound  = storage.ErrReportNotFound
	ErrDuplicateReport = storage.ErrDuplicateReport
)
