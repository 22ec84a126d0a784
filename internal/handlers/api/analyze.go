package api

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v3"

	"catchphish/internal/middleware"
	"catchphish/internal/models"
	"catchphish/internal/pipeline"
)

// Analyzer is the part of the pipeline the API drives.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) (models.RiskAssessment, error)
	Report(ctx context.Context, a models.RiskAssessment, rc pipeline.ReportContext) models.ReportOutcome
}

// AnalyzeHandler serves on-demand analysis and reporting.
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(analyzer Analyzer, logger *slog.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeHandler{analyzer: analyzer, logger: logger}
}

type analyzeRequest struct {
	URL       string `json:"url"`
	Recipient string `json:"recipient"`
}

// Analyze scores a URL without reporting it.
func (h *AnalyzeHandler) Analyze(c fiber.Ctx) error {
	var body analyzeRequest
	if err := decodeBody(c, &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(body.URL) == "" {
		return jsonError(c, fiber.StatusBadRequest, "url is required")
	}

	a, err := h.analyzer.Analyze(c.Context(), body.URL)
	if err != nil {
		return stageError(c, err)
	}
	return jsonSuccess(c, a)
}

// Report analyzes a URL and sends an incident report for it.
func (h *AnalyzeHandler) Report(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var body analyzeRequest
	if err := decodeBody(c, &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(body.URL) == "" {
		return jsonError(c, fiber.StatusBadRequest, "url is required")
	}
	if body.Recipient != "" {
		if !id.Admin {
			return jsonError(c, fiber.StatusForbidden, "only administrators may choose the recipient")
		}
		if _, err := mail.ParseAddress(body.Recipient); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid recipient address")
		}
	}

	a, err := h.analyzer.Analyze(c.Context(), body.URL)
	if err != nil {
		return stageError(c, err)
	}

	outcome := h.analyzer.Report(c.Context(), a, pipeline.ReportContext{
		Owner:     id.Owner(),
		Recipient: body.Recipient,
		Source:    models.SourceOnDemand,
	})
	resp := models.ReportResponse{Assessment: a, Outcome: outcome}

	if !outcome.Sent() {
		h.logger.Warn("on-demand report failed", "domain", a.Domain, "stage", outcome.Stage, "reason", outcome.Reason)
		status := fiber.StatusBadGateway
		if outcome.Stage != pipeline.StageDelivery {
			status = fiber.StatusInternalServerError
		}
		return jsonErrorData(c, status, outcome.Stage+": "+outcome.Reason, resp)
	}
	return jsonSuccess(c, resp)
}
