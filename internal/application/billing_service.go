package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	stripecustomer "github.com/stripe/stripe-go/v82/customer"
	stripepaymentmethod "github.com/stripe/stripe-go/v82/paymentmethod"
	stripesetupintent "github.com/stripe/stripe-go/v82/setupintent"
	stripesubscription "github.com/stripe/stripe-go/v82/subscription"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	repo "github.com/lumenchat/lumenchat-backend/internal/domain/repository"
	mailtpl "github.com/lumenchat/lumenchat-backend/pkg/mailer/templates"
)

// subscriptionEvent is the minimal slice of a provider subscription payload
// the reconciler needs. Decoded straight from the raw event body.
type subscriptionEvent struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	TrialEnd int64             `json:"trial_end"`
	Metadata map[string]string `json:"metadata"`
}

// invoiceEvent is the minimal slice of a provider invoice payload.
type invoiceEvent struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// SubscriptionResult is returned to the client after creating a subscription
// so it can drive any additional confirmation step.
type SubscriptionResult struct {
	SubscriptionID            string `json:"subscriptionId"`
	Status                    string `json:"status"`
	RequiresAction            bool   `json:"requiresAction,omitempty"`
	PaymentIntentClientSecret string `json:"paymentIntentClientSecret,omitempty"`
}

// BillingService reconciles provider billing lifecycle events onto user
// records and owns the checkout plumbing. Every reconciliation branch is a
// last-write-wins assignment, which is what makes redeliveries idempotent.
type BillingService struct {
	Repo     repo.UserRepository
	Cache    *StatusCache
	Notifier *Notifier
	Logger   *logrus.Logger

	PriceID string

	// Stripe call sites are function fields so tests can run without the
	// network.
	createCustomer      func(*stripe.CustomerParams) (*stripe.Customer, error)
	createSetupIntent   func(*stripe.SetupIntentParams) (*stripe.SetupIntent, error)
	createSubscription  func(*stripe.SubscriptionParams) (*stripe.Subscription, error)
	attachPaymentMethod func(string, *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error)
	updateCustomer      func(string, *stripe.CustomerParams) (*stripe.Customer, error)
}

func NewBillingService(r repo.UserRepository, cache *StatusCache, notifier *Notifier, logger *logrus.Logger, priceID string) *BillingService {
	return &BillingService{
		Repo:     r,
		Cache:    cache,
		Notifier: notifier,
		Logger:   logger,
		PriceID:  priceID,

		createCustomer:      stripecustomer.New,
		createSetupIntent:   stripesetupintent.New,
		createSubscription:  stripesubscription.New,
		attachPaymentMethod: stripepaymentmethod.Attach,
		updateCustomer:      stripecustomer.Update,
	}
}

// HandleEvent applies one verified billing event. Unknown event types and
// unknown customers are acknowledged no-ops; only a store failure returns an
// error (the provider redelivers on non-2xx, which is exactly what a failed
// write wants).
func (s *BillingService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub subscriptionEvent
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription event: %w", err)
		}
		return s.applySubscription(ctx, &sub)

	case "customer.subscription.deleted":
		var sub subscriptionEvent
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription event: %w", err)
		}
		return s.applyCancellation(ctx, &sub)

	case "invoice.payment_failed":
		var inv invoiceEvent
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice event: %w", err)
		}
		return s.applyPaymentFailure(ctx, &inv)

	case "invoice.paid":
		// Informational; subscription events drive the state.
		if s.Logger != nil {
			s.Logger.WithField("event_id", event.ID).Debug("invoice paid")
		}
		return nil

	default:
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"event_id": event.ID,
				"type":     string(event.Type),
			}).Info("billing event ignored (unhandled type)")
		}
		return nil
	}
}

// resolveUser finds the record a billing event belongs to. Customer ref is
// authoritative; subscription metadata covers the window where checkout ran
// before the customer ref write landed.
func (s *BillingService) resolveUser(ctx context.Context, customerRef string, metadata map[string]string) *entity.User {
	if customerRef != "" {
		u, err := s.Repo.GetByCustomerRef(ctx, customerRef)
		if err == nil {
			return u
		}
		if !errors.Is(err, repo.ErrNotFound) && s.Logger != nil {
			s.Logger.WithError(err).WithField("customer_ref", customerRef).Warn("customer lookup failed")
		}
	}
	if identityID := metadata["identity_id"]; identityID != "" {
		u, err := s.Repo.GetByIdentityID(ctx, identityID)
		if err == nil {
			return u
		}
	}
	if s.Logger != nil {
		s.Logger.WithField("customer_ref", customerRef).Info("billing event for unknown customer, skipping")
	}
	return nil
}

func (s *BillingService) applySubscription(ctx context.Context, sub *subscriptionEvent) error {
	u := s.resolveUser(ctx, sub.Customer, sub.Metadata)
	if u == nil {
		return nil
	}

	prev := u.PlanStatus
	u.PlanStatus = entity.PlanFromProviderStatus(sub.Status)
	u.BillingSubscriptionRef = sub.ID
	switch u.PlanStatus {
	case entity.PlanTrial:
		if sub.TrialEnd > 0 {
			t := time.Unix(sub.TrialEnd, 0).UTC()
			u.TrialEndsAt = &t
		}
	case entity.PlanPremium:
		u.TrialEndsAt = nil
	}

	if err := s.Repo.Update(ctx, u); err != nil {
		return fmt.Errorf("persist subscription state: %w", err)
	}
	s.Cache.Invalidate(ctx, u.ID)

	emailType := ""
	if u.PlanStatus == entity.PlanPremium && prev != entity.PlanPremium {
		emailType = mailtpl.PremiumActivated
	}
	s.Notifier.PlanChanged(ctx, u, emailType)

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"user_id":         u.ID,
			"provider_status": sub.Status,
			"plan_status":     string(u.PlanStatus),
		}).Info("subscription reconciled")
	}
	return nil
}

func (s *BillingService) applyCancellation(ctx context.Context, sub *subscriptionEvent) error {
	u := s.resolveUser(ctx, sub.Customer, sub.Metadata)
	if u == nil {
		return nil
	}

	u.PlanStatus = entity.PlanExpired
	u.BillingSubscriptionRef = ""
	u.TrialEndsAt = nil

	if err := s.Repo.Update(ctx, u); err != nil {
		return fmt.Errorf("persist cancellation: %w", err)
	}
	s.Cache.Invalidate(ctx, u.ID)
	s.Notifier.PlanChanged(ctx, u, mailtpl.SubscriptionCanceled)
	return nil
}

func (s *BillingService) applyPaymentFailure(ctx context.Context, inv *invoiceEvent) error {
	u := s.resolveUser(ctx, inv.Customer, nil)
	if u == nil {
		return nil
	}

	u.PlanStatus = entity.PlanExpired

	if err := s.Repo.Update(ctx, u); err != nil {
		return fmt.Errorf("persist payment failure: %w", err)
	}
	s.Cache.Invalidate(ctx, u.ID)
	s.Notifier.PlanChanged(ctx, u, mailtpl.PaymentFailed)
	return nil
}

// EnsureCustomer returns the user's billing customer reference, creating the
// provider customer on first use. The ref is written set-once; a concurrent
// first checkout keeps whichever ref landed first.
func (s *BillingService) EnsureCustomer(ctx context.Context, u *entity.User) (string, error) {
	if u.BillingCustomerRef != "" {
		return u.BillingCustomerRef, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(u.Email),
		Name:  stripe.String(u.Name),
	}
	params.AddMetadata("identity_id", u.IdentityID)
	cust, err := s.createCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create billing customer: %w", err)
	}

	stored, err := s.Repo.SetCustomerRefIfEmpty(ctx, u.ID, cust.ID)
	if err != nil {
		return "", fmt.Errorf("persist customer ref: %w", err)
	}
	u.BillingCustomerRef = stored
	return stored, nil
}

// CreateSetupIntent prepares payment-method collection for the user.
func (s *BillingService) CreateSetupIntent(ctx context.Context, u *entity.User) (string, error) {
	customerRef, err := s.EnsureCustomer(ctx, u)
	if err != nil {
		return "", err
	}

	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerRef),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	intent, err := s.createSetupIntent(params)
	if err != nil {
		return "", fmt.Errorf("create setup intent: %w", err)
	}
	return intent.ClientSecret, nil
}

// CreateSubscription attaches the tokenized payment method as the customer
// default and starts the subscription. The webhook remains the source of
// truth for the resulting plan state; this only reports what the provider
// returned so the client can finish any confirmation step.
func (s *BillingService) CreateSubscription(ctx context.Context, u *entity.User, paymentMethodID string) (*SubscriptionResult, error) {
	customerRef, err := s.EnsureCustomer(ctx, u)
	if err != nil {
		return nil, err
	}

	if _, err := s.attachPaymentMethod(paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerRef),
	}); err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}
	if _, err := s.updateCustomer(customerRef, &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}); err != nil {
		return nil, fmt.Errorf("set default payment method: %w", err)
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(s.PriceID)},
		},
		PaymentBehavior: stripe.String("allow_incomplete"),
	}
	params.AddMetadata("identity_id", u.IdentityID)
	params.AddExpand("pending_setup_intent")

	sub, err := s.createSubscription(params)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	u.BillingSubscriptionRef = sub.ID
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("persist subscription ref: %w", err)
	}
	s.Cache.Invalidate(ctx, u.ID)

	result := &SubscriptionResult{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Status == stripe.SubscriptionStatusIncomplete {
		result.RequiresAction = true
		if sub.PendingSetupIntent != nil {
			result.PaymentIntentClientSecret = sub.PendingSetupIntent.ClientSecret
		}
	}
	return result, nil
}
