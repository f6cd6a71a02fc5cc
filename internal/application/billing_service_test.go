package application

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
)

func newTestBillingService(r *fakeUserRepo) *BillingService {
	return NewBillingService(r, nil, nil, testLogger(), "price_test")
}

func subscriptionEventJSON(t *testing.T, eventType, subID, customer, status string, trialEnd int64, metadata map[string]string) *stripe.Event {
	t.Helper()
	body := map[string]any{
		"id":       subID,
		"customer": customer,
		"status":   status,
	}
	if trialEnd > 0 {
		body["trial_end"] = trialEnd
	}
	if metadata != nil {
		body["metadata"] = metadata
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_" + subID,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func invoiceEventJSON(t *testing.T, eventType, customer string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": "in_1", "customer": customer})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_in_1",
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventActiveSubscriptionPromotes(t *testing.T) {
	endsAt := time.Now().Add(24 * time.Hour)
	u := trialUser("u1", endsAt)
	u.BillingCustomerRef = "cus_1"
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	ev := subscriptionEventJSON(t, "customer.subscription.updated", "sub_1", "cus_1", "active", 0, nil)
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	got := fr.get("u1")
	assert.Equal(t, entity.PlanPremium, got.PlanStatus)
	assert.Equal(t, "sub_1", got.BillingSubscriptionRef)
	assert.Nil(t, got.TrialEndsAt, "premium clears the trial window")
}

func TestHandleEventReplayIsIdempotent(t *testing.T) {
	u := trialUser("u1", time.Now().Add(24*time.Hour))
	u.BillingCustomerRef = "cus_1"
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	ev := subscriptionEventJSON(t, "customer.subscription.updated", "sub_1", "cus_1", "active", 0, nil)
	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	first := fr.get("u1")

	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	second := fr.get("u1")

	assert.Equal(t, first.PlanStatus, second.PlanStatus)
	assert.Equal(t, first.BillingSubscriptionRef, second.BillingSubscriptionRef)
	assert.Equal(t, 2, fr.updates, "replay writes the same values again")
}

func TestHandleEventTrialingSetsTrialEnd(t *testing.T) {
	u := trialUser("u1", time.Now())
	u.BillingCustomerRef = "cus_1"
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	trialEnd := time.Now().Add(14 * 24 * time.Hour).Unix()
	ev := subscriptionEventJSON(t, "customer.subscription.created", "sub_1", "cus_1", "trialing", trialEnd, nil)
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	got := fr.get("u1")
	assert.Equal(t, entity.PlanTrial, got.PlanStatus)
	require.NotNil(t, got.TrialEndsAt)
	assert.Equal(t, trialEnd, got.TrialEndsAt.Unix())
}

func TestHandleEventUnknownProviderStatusExpires(t *testing.T) {
	u := &entity.User{ID: "u1", PlanStatus: entity.PlanPremium, BillingCustomerRef: "cus_1"}
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	ev := subscriptionEventJSON(t, "customer.subscription.updated", "sub_1", "cus_1", "paused", 0, nil)
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	assert.Equal(t, entity.PlanExpired, fr.get("u1").PlanStatus, "unrecognized provider status fails closed")
}

func TestHandleEventDeletedClearsSubscription(t *testing.T) {
	u := &entity.User{
		ID:                     "u1",
		PlanStatus:             entity.PlanPremium,
		BillingCustomerRef:     "cus_1",
		BillingSubscriptionRef: "sub_1",
	}
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	ev := subscriptionEventJSON(t, "customer.subscription.deleted", "sub_1", "cus_1", "canceled", 0, nil)
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	got := fr.get("u1")
	assert.Equal(t, entity.PlanExpired, got.PlanStatus)
	assert.Empty(t, got.BillingSubscriptionRef)
	assert.Nil(t, got.TrialEndsAt)
}

func TestHandleEventPaymentFailureExpires(t *testing.T) {
	u := &entity.User{ID: "u1", PlanStatus: entity.PlanPremium, BillingCustomerRef: "cus_1"}
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	ev := invoiceEventJSON(t, "invoice.payment_failed", "cus_1")
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	assert.Equal(t, entity.PlanExpired, fr.get("u1").PlanStatus)
}

func TestHandleEventUnknownCustomerIsAcknowledgedNoOp(t *testing.T) {
	fr := newFakeUserRepo()
	svc := newTestBillingService(fr)

	ev := subscriptionEventJSON(t, "customer.subscription.updated", "sub_1", "cus_unknown", "active", 0, nil)
	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	assert.Zero(t, fr.updates)
}

func TestHandleEventResolvesByIdentityMetadata(t *testing.T) {
	// Customer ref not yet persisted; subscription metadata carries the
	// identity instead.
	u := trialUser("u1", time.Now().Add(24*time.Hour))
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	ev := subscriptionEventJSON(t, "customer.subscription.created", "sub_1", "cus_new", "active", 0,
		map[string]string{"identity_id": u.IdentityID})
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	assert.Equal(t, entity.PlanPremium, fr.get("u1").PlanStatus)
}

func TestHandleEventInvoicePaidIsNoOp(t *testing.T) {
	u := &entity.User{ID: "u1", PlanStatus: entity.PlanPremium, BillingCustomerRef: "cus_1"}
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	require.NoError(t, svc.HandleEvent(context.Background(), invoiceEventJSON(t, "invoice.paid", "cus_1")))
	assert.Zero(t, fr.updates)
}

func TestHandleEventUnhandledTypeIsNoOp(t *testing.T) {
	fr := newFakeUserRepo()
	svc := newTestBillingService(fr)

	ev := &stripe.Event{ID: "evt_1", Type: "charge.refunded", Data: &stripe.EventData{Raw: []byte(`{}`)}}
	require.NoError(t, svc.HandleEvent(context.Background(), ev))
}

func TestEnsureCustomerSetOnce(t *testing.T) {
	u := trialUser("u1", time.Now().Add(24*time.Hour))
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	calls := 0
	svc.createCustomer = func(params *stripe.CustomerParams) (*stripe.Customer, error) {
		calls++
		return &stripe.Customer{ID: fmt.Sprintf("cus_%d", calls)}, nil
	}

	ref, err := svc.EnsureCustomer(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", ref)

	// Second call short-circuits on the populated field.
	ref, err = svc.EnsureCustomer(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", ref)
	assert.Equal(t, 1, calls)
}

func TestCreateSubscriptionIncompleteReportsAction(t *testing.T) {
	u := trialUser("u1", time.Now().Add(24*time.Hour))
	u.BillingCustomerRef = "cus_1"
	fr := newFakeUserRepo(u)
	svc := newTestBillingService(fr)

	svc.attachPaymentMethod = func(id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error) {
		return &stripe.PaymentMethod{ID: id}, nil
	}
	svc.updateCustomer = func(id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
		return &stripe.Customer{ID: id}, nil
	}
	svc.createSubscription = func(params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		return &stripe.Subscription{
			ID:                 "sub_1",
			Status:             stripe.SubscriptionStatusIncomplete,
			PendingSetupIntent: &stripe.SetupIntent{ClientSecret: "seti_secret"},
		}, nil
	}

	res, err := svc.CreateSubscription(context.Background(), u, "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", res.SubscriptionID)
	assert.True(t, res.RequiresAction)
	assert.Equal(t, "seti_secret", res.PaymentIntentClientSecret)
	assert.Equal(t, "sub_1", fr.get("u1").BillingSubscriptionRef)
}
