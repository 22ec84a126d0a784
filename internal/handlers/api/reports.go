package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"catchphish/internal/middleware"
	"catchphish/internal/models"
	"catchphish/internal/storage"
)

const (
	defaultReportLimit = 100
	maxReportLimit     = 1000
	historyDays        = 7
)

// ReportHandler serves persisted report history.
type ReportHandler struct {
	store storage.ReportStore
	now   func() time.Time
}

// NewReportHandler creates a new report handler.
func NewReportHandler(store storage.ReportStore) *ReportHandler {
	return &ReportHandler{store: store, now: time.Now}
}

// List returns the caller's reports. Administrators may pass all=1.
func (h *ReportHandler) List(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	filter := models.ReportFilter{Owner: id.Owner(), Limit: defaultReportLimit}
	if c.Query("all") == "1" {
		if !id.Admin {
			return jsonError(c, fiber.StatusForbidden, "admin access required")
		}
		filter.Owner = ""
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return jsonError(c, fiber.StatusBadRequest, "limit must be a positive integer")
		}
		filter.Limit = min(n, maxReportLimit)
	}

	reports, err := h.store.ListReports(c.Context(), filter)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch reports")
	}
	if reports == nil {
		reports = []models.Report{}
	}
	return jsonSuccess(c, reports)
}

// Get returns one report. Callers only see their own unless they are admins.
func (h *ReportHandler) Get(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid report id")
	}

	r, err := h.store.GetReport(c.Context(), reportID)
	if err != nil {
		if errors.Is(err, storage.ErrReportNotFound) {
			return jsonError(c, fiber.StatusNotFound, "report not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch report")
	}
	if r.Owner != id.Owner() && !id.Admin {
		return jsonError(c, fiber.StatusNotFound, "report not found")
	}
	return jsonSuccess(c, r)
}

// History returns the caller's last seven days of reports grouped by day.
func (h *ReportHandler) History(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	now := h.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(historyDays - 1))

	reports, err := h.store.ListReports(c.Context(), models.ReportFilter{Owner: id.Owner(), Since: &since})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch reports")
	}
	return jsonSuccess(c, models.GroupByDay(reports, since, now))
}
