package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garage-erp/check-lifecycle/internal/api_gateway/middleware"
	"github.com/garage-erp/check-lifecycle/internal/domain/check"
)

// transitionStatus maps a guard rejection to its HTTP status. Requests that
// conflict with the check's current state get 409; requests the state can
// never satisfy get 422.
var transitionStatus = map[check.TransitionErrorKind]int{
	check.KindUnauthorized:        http.StatusForbidden,
	check.KindAlreadyTerminal:     http.StatusConflict,
	check.KindInvalidTransition:   http.StatusConflict,
	check.KindCountExhausted:      http.StatusUnprocessableEntity,
	check.KindMissingCounterparty: http.StatusUnprocessableEntity,
}

// RespondError translates a service error into the API error envelope.
// Anything outside the domain taxonomy is logged and hidden behind a 500.
func RespondError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		ve *check.ValidationError
		te *check.TransitionError
	)
	switch {
	case errors.As(err, &ve):
		RespondWithError(c, http.StatusBadRequest, &ErrorInfo{
			Code:    "VALIDATION_ERROR",
			Message: ve.Message,
			Field:   ve.Field,
		})
	case errors.As(err, &te):
		status, ok := transitionStatus[te.Kind]
		if !ok {
			status = http.StatusConflict
		}
		RespondWithError(c, status, &ErrorInfo{
			Code:    string(te.Kind),
			Message: te.Error(),
			Label:   te.Label(),
		})
	case errors.Is(err, check.ErrCheckNotFound{}):
		RespondNotFound(c, err.Error())
	case check.IsRetryable(err):
		RespondWithError(c, http.StatusConflict, &ErrorInfo{
			Code:    "CONCURRENCY_CONFLICT",
			Message: "The check was modified concurrently; reload and retry",
		})
	default:
		logger.Error("Request failed",
			"path", c.FullPath(),
			"correlation_id", middleware.GetCorrelationID(c),
			"error", err,
		)
		RespondInternalError(c)
	}
}
