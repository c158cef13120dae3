package handler

import (
	"errors"

	"horizon-web/internal/auth/credentials"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.failSignIn(c, ErrCodeInvalidInput)
		return
	}

	identity, err := h.credentials.Authenticate(
		c.Request.Context(),
		req.Email,
		req.Password,
	)
	if err != nil {
		if !errors.Is(err, credentials.ErrInvalidCredentials) {
			h.logger.Error("password login failed", "error", err)
		}
		h.failSignIn(c, ErrCodeInvalidCredentials)
		return
	}

	h.completeSignIn(c, identity, "password")
}
