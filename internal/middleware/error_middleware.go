package middleware

import (
	"errors"
	"net/http"

	"livepoll/internal/transport/httpdto"
	livepoll_errors "livepoll/pkg/errors"
	"livepoll/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last handler error as a response envelope.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code := StatusFor(err)
		if status >= http.StatusInternalServerError && l != nil {
			l.WithContext(c.Request.Context()).Error("request error", zap.Error(err))
		}

		message := err.Error()
		if status >= http.StatusInternalServerError {
			message = http.StatusText(status)
		}
		c.JSON(status, httpdto.NewErrorResponse(message, code))
	}
}

// StatusFor maps the error taxonomy onto HTTP status and response code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, livepoll_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, livepoll_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, livepoll_errors.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, livepoll_errors.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, livepoll_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
