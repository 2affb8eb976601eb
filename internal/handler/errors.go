package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/middleware"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/response"
	"go.uber.org/zap"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
	case errors.Is(err, domain.ErrPaymentDeclined):
		response.Error(c, http.StatusPaymentRequired, "PAYMENT_DECLINED", err.Error(), "")
	case errors.Is(err, domain.ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error(), "")
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error(), "")
	case errors.Is(err, domain.ErrRoomUnavailable):
		response.Error(c, http.StatusConflict, "ROOM_UNAVAILABLE", err.Error(), "")
	case errors.Is(err, domain.ErrConflict):
		response.Error(c, http.StatusConflict, "CONFLICT", err.Error(), "")
	case errors.Is(err, domain.ErrInvalidState):
		response.Error(c, http.StatusUnprocessableEntity, "INVALID_STATE", err.Error(), "")
	case errors.Is(err, domain.ErrPaymentGateway):
		logger.Get().ErrorContext(c.Request.Context(), "payment gateway error", zap.Error(err))
		response.Error(c, http.StatusBadGateway, "GATEWAY_ERROR", "payment provider unavailable", "")
	case errors.Is(err, domain.ErrStorageUnavailable):
		logger.Get().ErrorContext(c.Request.Context(), "storage unavailable", zap.Error(err))
		response.Error(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage temporarily unavailable", "")
	default:
		logger.Get().ErrorContext(c.Request.Context(), "unhandled error", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error", "")
	}
}

// bindError reports a request that failed to bind
func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", err.Error())
}

// requireUser returns the authenticated user or writes 401
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return "", false
	}
	return userID, true
}
