package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"loremtype-backend/internal/service"
	"loremtype-backend/internal/util"
)

// Response is the uniform API envelope. The lockout fields are only populated
// on 401/423/429 responses.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`

	AttemptsRemaining *int       `json:"attemptsRemaining,omitempty"`
	LockedUntil       *time.Time `json:"lockedUntil,omitempty"`
	MinutesRemaining  *int       `json:"minutesRemaining,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	resp := Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}

	var attempts *service.AttemptsError
	var lockout *service.LockoutError
	var limited *service.RateLimitError
	switch {
	case errors.As(err, &attempts):
		resp.AttemptsRemaining = &attempts.AttemptsRemaining
	case errors.As(err, &lockout):
		resp.LockedUntil = &lockout.LockedUntil
		resp.MinutesRemaining = &lockout.MinutesRemaining
	case errors.As(err, &limited):
		resp.LockedUntil = limited.LockedUntil
		resp.MinutesRemaining = &limited.MinutesRemaining
	}
	return resp
}

func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, logger *zap.Logger, statusCode int, err error, message string) {
	logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	if statusCode >= http.StatusInternalServerError {
		// Internals stay in the server log.
		err = errors.New("internal server error")
	}
	respondWithJSON(w, logger, statusCode, errorResponse(err, message))
}

// getStatusCode maps service errors onto HTTP status codes. Unknown errors
// surface as a generic 500 without leaking internals.
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoRecoveryCode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
