package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"balloon-service/internal/service"
	"balloon-service/internal/util"
)

// Problem is the error body of every non-2xx response.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func respondWithJSON(logger *zap.Logger, w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithProblem(logger *zap.Logger, w http.ResponseWriter, statusCode int, title, detail string) {
	respondWithJSON(logger, w, statusCode, Problem{Title: title, Status: statusCode, Detail: detail})
}

// respondWithError maps err to a problem response. Retry-After is set for
// rate limited attempts.
func respondWithError(logger *zap.Logger, w http.ResponseWriter, err error) {
	status := getStatusCode(err)
	title, detail := describeError(err)

	if status >= http.StatusInternalServerError {
		logger.Error("HTTP error response", util.ErrorField(err), util.Int("status_code", status))
	} else {
		logger.Debug("HTTP error response", util.ErrorField(err), util.Int("status_code", status))
	}

	var rle *service.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds()))
	}
	respondWithProblem(logger, w, status, title, detail)
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserStatisticsNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func describeError(err error) (title, detail string) {
	var te *service.TransitionError
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return "Unauthorized", "Malformed or missing Authorization header."
	case errors.Is(err, service.ErrInvalidInput):
		return "Validation Error", "Invalid request data structure."
	case errors.Is(err, service.ErrBalloonFull):
		return "Bad Request", "Balloon is already 100% full."
	case errors.As(err, &te):
		return "Bad Request", fmt.Sprintf("Next fillStatus must be %d.", te.Expected)
	case errors.Is(err, service.ErrUserStatisticsNotFound):
		return "Not Found", "User statistics not found."
	case errors.Is(err, service.ErrPreconditionFailed):
		return "Precondition Failed", "ETag does not match."
	case errors.Is(err, service.ErrRateLimited):
		return "Too Many Requests", "Rate limit exceeded. Please try again later."
	default:
		return "Internal Server Error", "An unexpected error occurred while processing your request."
	}
}
