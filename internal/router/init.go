package router

import (
	"github.com/gin-gonic/gin"

	"github.com/lumenchat/lumenchat-backend/internal/application"
	"github.com/lumenchat/lumenchat-backend/internal/container"
	pginfra "github.com/lumenchat/lumenchat-backend/internal/infrastructure/postgres"
	handlers "github.com/lumenchat/lumenchat-backend/internal/interface/http"
	"github.com/lumenchat/lumenchat-backend/internal/interface/middleware"
	"github.com/lumenchat/lumenchat-backend/internal/router/modules"
)

// InitModules builds the application services from container singletons and
// registers every feature module with the router registry. Called once during
// startup.
func InitModules(r *Registry) {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	repo := pginfra.NewUserRepository(container.GetPGPool())
	cache := &application.StatusCache{Redis: container.GetRedis()}
	notifier := &application.Notifier{
		Queue:        container.GetRabbitPub(),
		ES:           container.GetES(),
		ESUsersIndex: cfg.ESUsersIndex,
		Logger:       logger,
		AppName:      cfg.AppName,
		SupportURL:   cfg.SupportURL,
		BillingURL:   cfg.BillingURL,
		LogoURL:      cfg.LogoURL,
	}

	userSvc := application.NewUserService(
		repo, cache, notifier,
		container.GetGCS(), cfg.GCSBucket,
		container.GetES(), cfg.ESUsersIndex,
		logger,
	)
	planSvc := application.NewPlanService(repo, cache, notifier, logger)
	billingSvc := application.NewBillingService(repo, cache, notifier, logger, cfg.StripePriceID)
	chatSvc := application.NewChatService(
		repo, container.GetAssistant(), logger,
		cfg.AssistantID, cfg.AssistantPollInterval, cfg.AssistantMaxPolls,
	)

	var auth gin.HandlerFunc = middleware.Auth(container.GetVerifier(), userSvc)
	var planCheck gin.HandlerFunc = middleware.PlanCheck(planSvc)

	r.Add(modules.NewUserModule(handlers.NewUserHandler(userSvc, logger), auth))
	r.Add(modules.NewChatModule(handlers.NewChatHandler(chatSvc, logger), auth, planCheck))
	r.Add(modules.NewBillingModule(handlers.NewBillingHandler(billingSvc, cfg.StripeWebhookSecret, logger), auth))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
