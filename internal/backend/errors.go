package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/database"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/core"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, chain.ErrInvalidAddress),
		errors.Is(err, chain.ErrInvalidHash),
		errors.Is(err, chain.ErrInvalidScore):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrFeatureDisabled),
		errors.Is(err, database.ErrSubmissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, chain.ErrTransactionRejected),
		errors.Is(err, database.ErrAlreadyScored):
		return http.StatusConflict
	case errors.Is(err, chain.ErrExecutionReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chain.ErrReadOnly),
		errors.Is(err, chain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrScoreTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// jsonErrorHandler renders every error as {"error": "..."}. Internal errors
// are logged and hidden from the client.
func jsonErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}
	status := statusFor(err)
	message := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message = fmt.Sprint(httpErr.Message)
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error("request failed",
			"status", status,
			"method", ctx.Request().Method,
			"route", ctx.Path(),
			"error", err)
		if status == http.StatusInternalServerError {
			message = http.StatusText(status)
		}
	}

	if ctx.Request().Method == http.MethodHead {
		err = ctx.NoContent(status)
	} else {
		err = ctx.JSON(status, errorResponse{Error: message})
	}
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
