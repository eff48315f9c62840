package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aimon/internal/core/ports"
	apperrors "aimon/pkg/errors"
	"aimon/pkg/validation"
)

// PushHandler registers device push tokens for the authenticated user.
type PushHandler struct {
	tokens ports.TokenStore
}

func NewPushHandler(tokens ports.TokenStore) *PushHandler {
	return &PushHandler{tokens: tokens}
}

func (h *PushHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/push")
	{
		api.POST("/tokens", h.SaveToken)
		api.GET("/tokens", h.ListTokens)
	}
}

type SaveTokenRequest struct {
	Token string `json:"token" binding:"required,max=4096"`
}

func (h *PushHandler) SaveToken(c *gin.Context) {
	var req SaveTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := validation.ValidatePushToken(req.Token); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	userID := callerUserID(c)
	if userID == "" {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	if err := h.tokens.SaveToken(c.Request.Context(), userID, req.Token); err != nil {
		c.Error(apperrors.FromDomain(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "saved",
	})
}

func (h *PushHandler) ListTokens(c *gin.Context) {
	userID := callerUserID(c)
	if userID == "" {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	tokens, err := h.tokens.Tokens(c.Request.Context(), userID)
	if err != nil {
		c.Error(apperrors.FromDomain(err))
		return
	}
	if tokens == nil {
		tokens = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"tokens": tokens,
	})
}
