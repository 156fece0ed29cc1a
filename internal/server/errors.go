package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/parley/internal/metrics"
	"github.com/samcharles93/parley/internal/session"
)

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": errorBody{Message: msg, Type: errType},
	})
}

func turnError(err error) errorBody {
	return errorBody{Message: err.Error(), Type: metrics.ErrorKind(err) + "_error"}
}

// writeTurnError maps a failed turn to a status code.
func writeTurnError(c *echo.Context, err error) error {
	body := turnError(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrBusy):
		status, body.Type = http.StatusConflict, "conflict"
	case errors.Is(err, session.ErrClosed):
		status, body.Type = http.StatusGone, "session_closed"
	case body.Type == "template_error":
		status = http.StatusUnprocessableEntity
	case body.Type == "engine_error":
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]any{"error": body})
}
