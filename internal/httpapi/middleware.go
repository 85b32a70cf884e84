package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/service"
)

const principalKey = "principal"

// requestLogger writes one record per request after the handler ran.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		args := []any{
			"method", c.Request.Method,
			"path", route,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if p := principalFrom(c); p != nil {
			args = append(args, "user_id", p.UserID)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			h.log.ErrorContext(c.Request.Context(), "http request", args...)
			return
		}
		h.log.InfoContext(c.Request.Context(), "http request", args...)
	}
}

// authenticate resolves the Bearer token into a principal. With optional set,
// requests without an Authorization header pass through anonymously.
func (h *Handler) authenticate(optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && optional {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		p, err := h.auth.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// requireRole lets through principals holding one of roles.
func requireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: service.ErrForbidden.Error()})
	}
}

func principalFrom(c *gin.Context) *service.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*service.Principal)
	return p
}
