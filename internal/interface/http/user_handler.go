package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lumenchat/lumenchat-backend/internal/application"
	"github.com/lumenchat/lumenchat-backend/internal/interface/middleware"
	"github.com/lumenchat/lumenchat-backend/pkg/response"
)

type UserHandler struct {
	Svc    *application.UserService
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

// Status reports the caller's plan state and usage.
func (h *UserHandler) Status(c *gin.Context) {
	u, ok := middleware.UserFromCtx(c)
	if !ok {
		resp := response.Error[any](c, http.StatusUnauthorized, "missing authenticated user", nil)
		c.JSON(resp.Status, resp)
		return
	}
	payload := h.Svc.Status(c.Request.Context(), u)
	resp := response.Success(c, http.StatusOK, payload, "user status", nil)
	c.JSON(resp.Status, resp)
}

// UploadAvatar accepts a multipart image and stores it for the profile.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	u, ok := middleware.UserFromCtx(c)
	if !ok {
		resp := response.Error[any](c, http.StatusUnauthorized, "missing authenticated user", nil)
		c.JSON(resp.Status, resp)
		return
	}

	file, header, err := c.Request.FormFile("avatar")
	if err != nil {
		resp := response.Error[any](c, http.StatusBadRequest, "missing avatar file", nil)
		c.JSON(resp.Status, resp)
		return
	}
	defer func() { _ = file.Close() }()

	url, err := h.Svc.UploadAvatar(c.Request.Context(), u, file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		h.Logger.WithError(err).WithField("user_id", u.ID).Error("avatar upload failed")
		resp := response.Error[any](c, http.StatusInternalServerError, "failed to upload avatar", nil)
		c.JSON(resp.Status, resp)
		return
	}

	resp := response.Success(c, http.StatusOK, gin.H{"avatarUrl": url}, "avatar updated", nil)
	c.JSON(resp.Status, resp)
}

// Search queries the users index.
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		resp := response.Error[any](c, http.StatusBadRequest, "missing query", nil)
		c.JSON(resp.Status, resp)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	hits, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		h.Logger.WithError(err).Error("user search failed")
		resp := response.Error[any](c, http.StatusInternalServerError, "search failed", nil)
		c.JSON(resp.Status, resp)
		return
	}
	resp := response.Success(c, http.StatusOK, hits, "search results", gin.H{"count": len(hits)})
	c.JSON(resp.Status, resp)
}
