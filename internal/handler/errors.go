package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	if f, ok := domain.AsFailure(err); ok {
		details := dto.FromFailure(f)
		switch f.Kind {
		case domain.FailureResourceUnavailable:
			response.Error(c, http.StatusConflict, string(f.Kind), "One or more resources are not available", details)
		case domain.FailurePaymentFailed:
			response.Error(c, http.StatusPaymentRequired, string(f.Kind), f.Error(), details)
		case domain.FailureHoldExpired:
			response.Error(c, http.StatusGone, string(f.Kind), "Hold expired before the booking was confirmed", details)
		default:
			response.Error(c, http.StatusConflict, string(f.Kind), f.Error(), details)
		}
		return
	}

	var unavailable *domain.UnavailableError
	switch {
	case errors.As(err, &unavailable):
		details := &dto.FailureDetails{Kind: string(domain.FailureResourceUnavailable), GroupID: unavailable.GroupID}
		for _, conflict := range unavailable.Conflicts {
			details.Conflicts = append(details.Conflicts, dto.ConflictDetail{Key: conflict.Key, State: string(conflict.State)})
		}
		response.Conflict(c, string(domain.FailureResourceUnavailable), "One or more resources are not available", details)
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, domain.ErrGroupNotFound):
		response.Error(c, http.StatusNotFound, "GROUP_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrHoldNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrNotBookingOwner):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrGroupAlreadyExists):
		response.Conflict(c, "GROUP_ALREADY_EXISTS", err.Error(), nil)
	case domain.IsConflictError(err):
		response.Conflict(c, "CONFLICT", err.Error(), nil)
	default:
		logger.Get().ErrorContext(c.Request.Context(), fmt.Sprintf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err))
		response.InternalError(c)
	}
}
