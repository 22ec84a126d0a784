package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"catchphish/internal/models"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedStatus reports when threat feeds were last synced.
type FeedStatus interface {
	Synced() (time.Time, bool)
	Size() int
}

// ProbeHandler serves liveness and readiness probes.
type ProbeHandler struct {
	store     Pinger
	feed      FeedStatus
	providers func() []models.SignalName
}

// NewProbeHandler creates a new probe handler. feed and providers may be nil.
func NewProbeHandler(store Pinger, feed FeedStatus, providers func() []models.SignalName) *ProbeHandler {
	return &ProbeHandler{store: store, feed: feed, providers: providers}
}

// Live always succeeds while the process serves requests.
func (h *ProbeHandler) Live(c fiber.Ctx) error {
	return jsonSuccess(c, fiber.Map{"alive": true})
}

// Ready checks the report store. A feed that has not synced yet is reported
// but does not fail readiness.
func (h *ProbeHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "report store unavailable")
	}

	data := fiber.Map{"ready": true}
	if h.feed != nil {
		feed := fiber.Map{"domains": h.feed.Size()}
		if at, ok := h.feed.Synced(); ok {
			feed["synced_at"] = at
		}
		data["feed"] = feed
	}
	if h.providers != nil {
		data["providers"] = h.providers()
	}
	return jsonSuccess(c, data)
}
