package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/internal/core/services"
	"aimon/internal/infrastructure/middleware"
	apperrors "aimon/pkg/errors"
	"aimon/pkg/utils"
	"aimon/pkg/validation"
)

// SessionHandler exposes the signaling channel over REST so browser peers can
// run the offer/answer exchange without a direct store connection.
type SessionHandler struct {
	channel ports.SignalingChannel
	media   ports.MediaSource
	relay   ports.RelayTrigger
	metrics ports.SignalMetrics
	notify  *services.NotificationService
	logger  *zap.Logger
}

func NewSessionHandler(
	channel ports.SignalingChannel,
	media ports.MediaSource,
	relay ports.RelayTrigger,
	metrics ports.SignalMetrics,
	notify *services.NotificationService,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		channel: channel,
		media:   media,
		relay:   relay,
		metrics: metrics,
		notify:  notify,
		logger:  logger,
	}
}

func (h *SessionHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.POST("/sessions/:id/answer", h.PublishAnswer)
		api.POST("/sessions/:id/candidates", h.AppendCandidate)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.GET("/devices", h.ListDevices)
		api.POST("/relay/start-transceiver", h.StartTransceiver)
	}
}

type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
	Offer     struct {
		Type string `json:"type" binding:"required"`
		SDP  string `json:"sdp" binding:"required"`
	} `json:"offer" binding:"required"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	// Sessions are keyed by the caller's user ID unless one is supplied,
	// so a user replaces their own previous call instead of piling up
	// stale session documents.
	id := req.SessionID
	if id == "" {
		id = string(callerUserID(c))
	}
	if id == "" {
		id = utils.GenerateSessionID()
	}
	if err := validation.ValidateSessionID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	offer := &domain.SessionDescription{
		Type:         req.Offer.Type,
		SDP:          req.Offer.SDP,
		OriginatorID: callerUserID(c),
	}

	if err := h.channel.CreateSession(c.Request.Context(), domain.SessionID(id), offer); err != nil {
		c.Error(apperrors.FromDomain(err))
		return
	}

	if h.notify != nil {
		h.notify.StreamStarted(c.Request.Context(), domain.SessionID(id), offer.OriginatorID)
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": id,
	})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session, err := h.channel.GetSession(c.Request.Context(), domain.SessionID(id))
	if err != nil {
		c.Error(apperrors.FromDomain(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
	})
}

type PublishAnswerRequest struct {
	Answer struct {
		Type string `json:"type" binding:"required"`
		SDP  string `json:"sdp" binding:"required"`
	} `json:"answer" binding:"required"`
}

func (h *SessionHandler) PublishAnswer(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var req PublishAnswerRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	answer := &domain.SessionDescription{
		Type:         req.Answer.Type,
		SDP:          req.Answer.SDP,
		OriginatorID: callerUserID(c),
	}

	if err := h.channel.PublishAnswer(c.Request.Context(), domain.SessionID(id), answer); err != nil {
		c.Error(apperrors.FromDomain(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "answered",
	})
}

type AppendCandidateRequest struct {
	Side          string `json:"side" binding:"required"`
	Candidate     string `json:"candidate" binding:"required"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex uint16 `json:"sdp_mline_index"`
}

func (h *SessionHandler) AppendCandidate(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var req AppendCandidateRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	cand := domain.IceCandidateRecord{
		SessionID:     domain.SessionID(id),
		Side:          domain.CandidateSide(req.Side),
		Candidate:     req.Candidate,
		SDPMid:        req.SDPMid,
		SDPMLineIndex: req.SDPMLineIndex,
	}

	if err := h.channel.AppendCandidate(c.Request.Context(), cand); err != nil {
		if h.metrics != nil {
			h.metrics.CandidateDropped(cand.Side)
		}
		c.Error(apperrors.FromDomain(err))
		return
	}
	if h.metrics != nil {
		h.metrics.CandidateForwarded(cand.Side)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "queued",
	})
}

// sessionDeleter is implemented by both channel backends. Deletion stays off
// the port because only the owning side's hang-up path uses it.
type sessionDeleter interface {
	DeleteSession(ctx context.Context, id domain.SessionID) error
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	deleter, ok := h.channel.(sessionDeleter)
	if !ok {
		c.Error(apperrors.NewInternalError("channel does not support deletion"))
		return
	}

	if err := deleter.DeleteSession(c.Request.Context(), domain.SessionID(id)); err != nil {
		c.Error(apperrors.FromDomain(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
	})
}

func (h *SessionHandler) ListDevices(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusOK, gin.H{"devices": []domain.VideoInput{}})
		return
	}

	inputs, err := h.media.ListVideoInputs(c.Request.Context())
	if err != nil {
		c.Error(apperrors.FromDomain(err))
		return
	}
	if inputs == nil {
		inputs = []domain.VideoInput{}
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": inputs,
	})
}

type StartTransceiverRequest struct {
	UserID string `json:"userId"`
}

// StartTransceiver proxies the relay trigger. The relay is best effort, so a
// failed trigger is reported in the response body rather than as an error.
func (h *SessionHandler) StartTransceiver(c *gin.Context) {
	var req StartTransceiverRequest
	// body is optional, default to the authenticated caller
	_ = c.ShouldBindJSON(&req)

	userID := domain.UserID(req.UserID)
	if userID == "" {
		userID = callerUserID(c)
	}
	if userID == "" {
		c.Error(apperrors.NewInvalidInputError("userId required"))
		return
	}

	if h.relay == nil {
		c.JSON(http.StatusOK, gin.H{"status": "relay disabled"})
		return
	}

	if err := h.relay.StartTransceiver(c.Request.Context(), userID); err != nil {
		h.logger.Warn("relay trigger failed",
			zap.String("user_id", string(userID)),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"status":  "relay unavailable",
			"warning": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "started",
	})
}

func callerUserID(c *gin.Context) domain.UserID {
	if v, ok := c.Get(middleware.ContextUserIDKey); ok {
		if id, ok := v.(domain.UserID); ok {
			return id
		}
	}
	return ""
}
