package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service and repository sentinels onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, repository.ErrInvalidColumn):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrOrderOnSheet),
		errors.Is(err, service.ErrDriverMismatch),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInUse):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.log.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "err", err)
		msg = http.StatusText(code)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}
