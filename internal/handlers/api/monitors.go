package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"catchphish/internal/jobs"
	"catchphish/internal/middleware"
	"catchphish/internal/models"
	"catchphish/internal/validation"
)

// MonitorRegistry manages feed monitors.
type MonitorRegistry interface {
	ParseInterval(s string) (time.Duration, error)
	Start(domain string, interval time.Duration, owner string) (models.StartMonitorResponse, error)
	Stop(ctx context.Context, domain string) (models.MonitorStatus, error)
	Get(domain string) (models.MonitorStatus, bool)
	List() []models.MonitorStatus
}

// MonitorHandler starts, lists and stops feed monitors.
type MonitorHandler struct {
	registry    MonitorRegistry
	stopTimeout time.Duration
}

// NewMonitorHandler creates a new monitor handler.
func NewMonitorHandler(registry MonitorRegistry, stopTimeout time.Duration) *MonitorHandler {
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &MonitorHandler{registry: registry, stopTimeout: stopTimeout}
}

// Start begins monitoring a protected domain. Starting an already monitored
// domain returns the existing monitor.
func (h *MonitorHandler) Start(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		Domain   string `json:"domain"`
		Interval string `json:"interval"`
	}
	if err := decodeBody(c, &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(body.Domain) == "" {
		return jsonError(c, fiber.StatusBadRequest, "domain is required")
	}

	interval, err := h.registry.ParseInterval(body.Interval)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	resp, err := h.registry.Start(body.Domain, interval, id.Owner())
	if err != nil {
		return monitorError(c, err)
	}
	if resp.Started {
		c.Status(fiber.StatusCreated)
	}
	return jsonSuccess(c, resp)
}

// List returns the caller's monitors, or every monitor for administrators.
func (h *MonitorHandler) List(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	all := h.registry.List()
	if id.Admin {
		return jsonSuccess(c, all)
	}
	mine := make([]models.MonitorStatus, 0, len(all))
	for _, s := range all {
		if s.Owner == id.Owner() {
			mine = append(mine, s)
		}
	}
	return jsonSuccess(c, mine)
}

// Get returns one monitor's status.
func (h *MonitorHandler) Get(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	st, ok := h.registry.Get(c.Params("domain"))
	if !ok || !canManage(id, st) {
		return jsonError(c, fiber.StatusNotFound, "monitor not found")
	}
	return jsonSuccess(c, st)
}

// Stop cancels a monitor and waits for its in-flight report.
func (h *MonitorHandler) Stop(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	domain := c.Params("domain")
	st, ok := h.registry.Get(domain)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "monitor not found")
	}
	if !canManage(id, st) {
		return jsonError(c, fiber.StatusForbidden, "you do not have permission to stop this monitor")
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.stopTimeout)
	defer cancel()

	final, err := h.registry.Stop(ctx, domain)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// The monitor is removed; its last report finishes in the background.
			return jsonSuccess(c, final)
		}
		return monitorError(c, err)
	}
	return jsonSuccess(c, final)
}

func canManage(id *middleware.Identity, st models.MonitorStatus) bool {
	return id.Admin || (st.Owner != "" && st.Owner == id.Owner())
}

func monitorError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, validation.ErrInvalidURL), errors.Is(err, jobs.ErrInvalidInterval):
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrMonitorNotFound):
		return jsonError(c, fiber.StatusNotFound, "monitor not found")
	case errors.Is(err, jobs.ErrMonitorStopping):
		return jsonError(c, fiber.StatusConflict, "monitor is still stopping, try again shortly")
	case errors.Is(err, jobs.ErrRegistryClosed):
		return jsonError(c, fiber.StatusServiceUnavailable, "server is shutting down")
	default:
		return jsonError(c, fiber.StatusInternalServerError, "monitor operation failed")
	}
}
