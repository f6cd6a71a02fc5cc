package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/lumenchat-backend/internal/container"
	handlers "github.com/lumenchat/lumenchat-backend/internal/interface/http"
	"github.com/lumenchat/lumenchat-backend/internal/interface/middleware"
)

// BillingModule wires subscription routes. The webhook stays public:
// the provider authenticates with the payload signature, not a bearer
// token.
// Public: POST /api/webhook
// Protected: POST /api/create-payment-intent, POST /api/create-subscription

type BillingModule struct {
	Handler *handlers.BillingHandler
	Auth    gin.HandlerFunc
}

func NewBillingModule(h *handlers.BillingHandler, auth gin.HandlerFunc) *BillingModule {
	return &BillingModule{Handler: h, Auth: auth}
}

func (m *BillingModule) Register(rg *gin.RouterGroup) {
	webhookLimiter := middleware.RateLimit(container.GetRedis(), 300, time.Minute, middleware.KeyByIP(), nil)
	rg.POST("/webhook", webhookLimiter, m.Handler.Webhook)

	auth := rg.Group("/")
	auth.Use(m.Auth)
	auth.Use(middleware.RateLimit(container.GetRedis(), 30, time.Minute, middleware.KeyByUserID(), nil))
	{
		auth.POST("/create-payment-intent", m.Handler.CreateSetupIntent)
		auth.POST("/create-subscription", m.Handler.CreateSubscription)
	}
}
