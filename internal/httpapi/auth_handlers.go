package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/service"
)

type registerRequest struct {
	Username string     `json:"username" binding:"required"`
	Email    string     `json:"email" binding:"required"`
	Password string     `json:"password" binding:"required"`
	Role     model.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type verificationRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Token      string `json:"token"`
}

// register creates a back-office user. The very first user may register
// anonymously and becomes admin; after that only admins register users.
func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	in := service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}
	var (
		user *model.User
		err  error
	)
	switch p := principalFrom(c); {
	case p == nil:
		user, err = h.auth.RegisterFirstAdmin(c.Request.Context(), in)
	case p.Role != model.RoleAdmin:
		err = service.ErrForbidden
	default:
		user, err = h.auth.Register(c.Request.Context(), in)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) logout(c *gin.Context) {
	p := principalFrom(c)
	if p.SessionID != "" {
		if err := h.auth.EndSession(c.Request.Context(), p.SessionID); err != nil {
			h.writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.auth.Me(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) createVerificationToken(c *gin.Context) {
	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	vt, err := h.auth.CreateVerificationToken(c.Request.Context(), req.Identifier)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vt)
}

func (h *Handler) useVerificationToken(c *gin.Context) {
	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.auth.UseVerificationToken(c.Request.Context(), req.Identifier, req.Token); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
