package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/lumenchat-backend/internal/container"
	handlers "github.com/lumenchat/lumenchat-backend/internal/interface/http"
	"github.com/lumenchat/lumenchat-backend/internal/interface/middleware"
)

// UserModule wires profile and status routes.
// Protected: GET /api/user-status, POST /api/profile/avatar, GET /api/users/search

type UserModule struct {
	Handler *handlers.UserHandler
	Auth    gin.HandlerFunc
}

func NewUserModule(h *handlers.UserHandler, auth gin.HandlerFunc) *UserModule {
	return &UserModule{Handler: h, Auth: auth}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/")
	auth.Use(m.Auth)
	auth.Use(
		middleware.RateLimit(container.GetRedis(), 300, time.Minute, middleware.KeyByIP(), nil),
		middleware.RateLimit(container.GetRedis(), 120, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		auth.GET("/user-status", m.Handler.Status)
		auth.POST("/profile/avatar", m.Handler.UploadAvatar)
		auth.GET("/users/search", m.Handler.Search)
	}
}
