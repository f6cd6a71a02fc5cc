package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lumenchat/lumenchat-backend/internal/application"
	"github.com/lumenchat/lumenchat-backend/internal/infrastructure/assistant"
	"github.com/lumenchat/lumenchat-backend/internal/interface/middleware"
	"github.com/lumenchat/lumenchat-backend/pkg/response"
	"github.com/lumenchat/lumenchat-backend/pkg/validation"
)

type ChatHandler struct {
	Svc    *application.ChatService
	Logger *logrus.Logger
}

func NewChatHandler(svc *application.ChatService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{Svc: svc, Logger: logger}
}

type sendMessageRequest struct {
	ThreadID string `json:"threadId" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

// NewThread provisions an assistant conversation thread.
func (h *ChatHandler) NewThread(c *gin.Context) {
	u, ok := middleware.UserFromCtx(c)
	if !ok {
		resp := response.Error[any](c, http.StatusUnauthorized, "missing authenticated user", nil)
		c.JSON(resp.Status, resp)
		return
	}

	threadID, err := h.Svc.NewThread(c.Request.Context(), u)
	if err != nil {
		if errors.Is(err, application.ErrThreadLimit) {
			resp := response.Error[any](c, http.StatusForbidden, "thread limit reached for trial plan, upgrade to create more threads", nil)
			c.JSON(resp.Status, resp)
			return
		}
		h.Logger.WithError(err).WithField("user_id", u.ID).Error("thread creation failed")
		resp := response.Error[any](c, http.StatusBadGateway, "failed to create thread", nil)
		c.JSON(resp.Status, resp)
		return
	}

	resp := response.Success(c, http.StatusOK, gin.H{"threadId": threadID}, "thread created", nil)
	c.JSON(resp.Status, resp)
}

// SendMessage appends a user message to a thread and returns the
// assistant's reply once the run finishes.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp := response.Error[any](c, http.StatusBadRequest, "threadId and message are required", validation.ToDetails(err))
		c.JSON(resp.Status, resp)
		return
	}

	reply, err := h.Svc.SendMessage(c.Request.Context(), req.ThreadID, req.Message)
	if err != nil {
		log := h.Logger.WithError(err).WithField("thread_id", req.ThreadID)
		switch {
		case errors.Is(err, application.ErrRunTimeout):
			log.Warn("assistant run timed out")
			resp := response.Error[any](c, http.StatusGatewayTimeout, "assistant did not respond in time", nil)
			c.JSON(resp.Status, resp)
		case isAPIError(err):
			log.Error("assistant api error")
			resp := response.Error[any](c, http.StatusBadGateway, "assistant request failed", nil)
			c.JSON(resp.Status, resp)
		default:
			log.Error("chat message failed")
			resp := response.Error[any](c, http.StatusInternalServerError, "failed to process message", nil)
			c.JSON(resp.Status, resp)
		}
		return
	}

	resp := response.Success(c, http.StatusOK, gin.H{"response": reply}, "message processed", nil)
	c.JSON(resp.Status, resp)
}

func isAPIError(err error) bool {
	var apiErr *assistant.APIError
	return errors.As(err, &apiErr)
}
