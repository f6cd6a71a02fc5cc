package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/lumenchat/lumenchat-backend/internal/application"
	"github.com/lumenchat/lumenchat-backend/internal/interface/middleware"
	"github.com/lumenchat/lumenchat-backend/pkg/response"
	"github.com/lumenchat/lumenchat-backend/pkg/validation"
)

type BillingHandler struct {
	Svc           *application.BillingService
	WebhookSecret string
	Logger        *logrus.Logger
}

func NewBillingHandler(svc *application.BillingService, webhookSecret string, logger *logrus.Logger) *BillingHandler {
	return &BillingHandler{Svc: svc, WebhookSecret: webhookSecret, Logger: logger}
}

type createSubscriptionRequest struct {
	PaymentMethodID string `json:"paymentMethodId" binding:"required"`
}

// CreateSetupIntent returns a client secret the frontend uses to
// collect a payment method.
func (h *BillingHandler) CreateSetupIntent(c *gin.Context) {
	u, ok := middleware.UserFromCtx(c)
	if !ok {
		resp := response.Error[any](c, http.StatusUnauthorized, "missing authenticated user", nil)
		c.JSON(resp.Status, resp)
		return
	}

	secret, err := h.Svc.CreateSetupIntent(c.Request.Context(), u)
	if err != nil {
		h.Logger.WithError(err).WithField("user_id", u.ID).Error("setup intent creation failed")
		resp := response.Error[any](c, http.StatusInternalServerError, "failed to create payment intent", nil)
		c.JSON(resp.Status, resp)
		return
	}

	resp := response.Success(c, http.StatusOK, gin.H{"clientSecret": secret}, "payment intent created", nil)
	c.JSON(resp.Status, resp)
}

// CreateSubscription starts a subscription using a collected payment
// method. The plan flips to premium only when the provider confirms it
// through the webhook.
func (h *BillingHandler) CreateSubscription(c *gin.Context) {
	u, ok := middleware.UserFromCtx(c)
	if !ok {
		resp := response.Error[any](c, http.StatusUnauthorized, "missing authenticated user", nil)
		c.JSON(resp.Status, resp)
		return
	}

	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp := response.Error[any](c, http.StatusBadRequest, "paymentMethodId is required", validation.ToDetails(err))
		c.JSON(resp.Status, resp)
		return
	}

	result, err := h.Svc.CreateSubscription(c.Request.Context(), u, req.PaymentMethodID)
	if err != nil {
		h.Logger.WithError(err).WithField("user_id", u.ID).Error("subscription creation failed")
		resp := response.Error[any](c, http.StatusInternalServerError, "failed to create subscription", nil)
		c.JSON(resp.Status, resp)
		return
	}

	resp := response.Success(c, http.StatusOK, result, "subscription created", nil)
	c.JSON(resp.Status, resp)
}

// Webhook receives billing provider events. The signature is verified
// against the raw body before anything is decoded; an invalid
// signature is the only request-level rejection. Processing failures
// return 500 so the provider retries delivery.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.Logger.WithError(err).Warn("webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := h.Svc.HandleEvent(c.Request.Context(), &event); err != nil {
		h.Logger.WithError(err).WithField("event_type", event.Type).Error("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
