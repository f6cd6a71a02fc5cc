package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/lumenchat-backend/internal/container"
	handlers "github.com/lumenchat/lumenchat-backend/internal/interface/http"
	"github.com/lumenchat/lumenchat-backend/internal/interface/middleware"
)

// ChatModule wires assistant conversation routes. Every route sits
// behind auth plus the plan gate; expired and free accounts never
// reach the assistant.
// Protected: POST /api/new-thread, POST /api/chat

type ChatModule struct {
	Handler   *handlers.ChatHandler
	Auth      gin.HandlerFunc
	PlanCheck gin.HandlerFunc
}

func NewChatModule(h *handlers.ChatHandler, auth, planCheck gin.HandlerFunc) *ChatModule {
	return &ChatModule{Handler: h, Auth: auth, PlanCheck: planCheck}
}

func (m *ChatModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/")
	auth.Use(m.Auth, m.PlanCheck)
	auth.Use(
		middleware.RateLimit(container.GetRedis(), 60, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		auth.POST("/new-thread", m.Handler.NewThread)
		auth.POST("/chat", m.Handler.SendMessage)
	}
}
