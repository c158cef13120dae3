package handler

import (
	"errors"

	"horizon-web/internal/auth/credentials"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
	Name     string `form:"name" json:"name"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		h.failSignIn(c, ErrCodeInvalidInput)
		return
	}

	identity, err := h.credentials.Register(
		c.Request.Context(),
		req.Email,
		req.Password,
		req.Name,
	)

	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrAlreadyRegistered):
			h.failSignIn(c, ErrCodeAlreadyRegistered)
		case errors.Is(err, credentials.ErrPasswordTooShort),
			errors.Is(err, credentials.ErrInvalidEmail):
			h.failSignIn(c, ErrCodeInvalidInput)
		default:
			h.logger.Error("registration failed", "error", err)
			h.failSignIn(c, ErrCodeServer)
		}
		return
	}

	h.completeSignIn(c, identity, "register")
}
