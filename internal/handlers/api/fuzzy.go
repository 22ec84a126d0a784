package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"catchphish/internal/models"
	"catchphish/internal/validation"
)

// Searcher ranks confusable domains.
type Searcher interface {
	Search(ctx context.Context, domain string) ([]models.TyposquatCandidate, error)
}

// FuzzyHandler serves typosquat lookups.
type FuzzyHandler struct {
	searcher Searcher
}

// NewFuzzyHandler creates a new fuzzy search handler.
func NewFuzzyHandler(searcher Searcher) *FuzzyHandler {
	return &FuzzyHandler{searcher: searcher}
}

// Search returns candidates similar to the domain query parameter.
func (h *FuzzyHandler) Search(c fiber.Ctx) error {
	q := c.Query("domain")
	if q == "" {
		return jsonError(c, fiber.StatusBadRequest, "domain is required")
	}

	domain, err := validation.ExtractDomain(q)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	candidates, err := h.searcher.Search(c.Context(), domain)
	if err != nil {
		if errors.Is(err, validation.ErrInvalidURL) {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		return jsonError(c, fiber.StatusInternalServerError, "fuzzy search failed")
	}
	if candidates == nil {
		candidates = []models.TyposquatCandidate{}
	}
	return jsonSuccess(c, models.FuzzySearchResponse{Domain: domain, Candidates: candidates})
}
