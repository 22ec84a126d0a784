package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"

	"catchphish/internal/middleware"
	"catchphish/internal/pipeline"
)

// jsonSuccess returns a 200 response with data wrapped in the standard envelope.
func jsonSuccess(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonError returns an error response with the given HTTP status code.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}

// jsonErrorData is jsonError with a partial result attached.
func jsonErrorData(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
		"data":   data,
	})
}

// stageError maps a pipeline failure to an HTTP status.
func stageError(c fiber.Ctx, err error) error {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		switch se.Stage {
		case pipeline.StageInput:
			return jsonError(c, fiber.StatusBadRequest, se.Err.Error())
		case pipeline.StageSignals:
			return jsonError(c, fiber.StatusServiceUnavailable, "analysis interrupted")
		}
	}
	return jsonError(c, fiber.StatusInternalServerError, "analysis failed")
}

func decodeBody(c fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

// Me returns the caller's identity.
func Me(c fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return jsonSuccess(c, id)
}
