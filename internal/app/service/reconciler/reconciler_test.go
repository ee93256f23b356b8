package reconciler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"github.com/reelpass/billing/internal/app/service/plan"
	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

// fakeStore is an in-memory Store tracking user tiers the way the real
// service does.
type fakeStore struct {
	subs  map[string]*models.Subscription
	tiers map[string]types.Tier
}

func newFakeStore(subs ...*models.Subscription) *fakeStore {
	s := &fakeStore{subs: map[string]*models.Subscription{}, tiers: map[string]types.Tier{}}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
		s.tiers[sub.UserID] = sub.Tier
	}
	return s
}

func (s *fakeStore) FindByExternalID(_ context.Context, platform types.Platform, externalID string) (*models.Subscription, error) {
	for _, sub := range s.subs {
		if sub.Platform == platform && sub.ExternalSubscriptionID == externalID {
			return sub, nil
		}
	}
	return nil, apperr.NotFoundf("no subscription for %s/%s", platform, externalID)
}

func (s *fakeStore) Transition(_ context.Context, subID string, newStatus types.SubscriptionStatus, fields subscription.TransitionFields, _ types.SubscriptionChangeReason) (*models.Subscription, error) {
	sub, ok := s.subs[subID]
	if !ok {
		return nil, apperr.NotFoundf("subscription %s", subID)
	}
	sub.Status = newStatus
	if fields.Tier != nil {
		sub.Tier = *fields.Tier
	}
	if fields.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = fields.CurrentPeriodStart
	}
	if fields.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = fields.CurrentPeriodEnd
	}
	if fields.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *fields.CancelAtPeriodEnd
	}
	switch {
	case newStatus.LosesPaidAccess():
		s.tiers[sub.UserID] = types.TierFree
	case newStatus == types.SubscriptionStatusActive && fields.Tier != nil:
		s.tiers[sub.UserID] = *fields.Tier
	}
	return sub, nil
}

func (s *fakeStore) CancelByExternalID(ctx context.Context, platform types.Platform, externalID string) (int64, error) {
	var count int64
	for _, sub := range s.subs {
		if sub.Platform == platform && sub.ExternalSubscriptionID == externalID && sub.Status != types.SubscriptionStatusCancelled {
			if _, err := s.Transition(ctx, sub.ID, types.SubscriptionStatusCancelled, subscription.TransitionFields{}, types.SubscriptionChangeReasonWebhook); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

type fakeOrders struct {
	confirmed map[string]string
}

func (o *fakeOrders) ConfirmByPaymentIntent(_ context.Context, orderID, paymentIntentID string) error {
	if o.confirmed == nil {
		o.confirmed = map[string]string{}
	}
	if orderID == "missing" {
		return apperr.NotFoundf("order %s", orderID)
	}
	o.confirmed[orderID] = paymentIntentID
	return nil
}

type fakeLedger struct {
	entries []*models.WebhookEventLog
}

func (l *fakeLedger) Record(_ context.Context, entry *models.WebhookEventLog) {
	l.entries = append(l.entries, entry)
}

func (l *fakeLedger) AlreadyHandled(_ context.Context, provider, eventID string) (bool, error) {
	for _, e := range l.entries {
		if e.Provider == provider && e.EventID == eventID && e.Status == models.WebhookEventLogStatusHandled {
			return true, nil
		}
	}
	return false, nil
}

func subscriptionEvent(id, eventType string, payload map[string]any) stripe.Event {
	raw, _ := json.Marshal(payload)
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func newTestReconciler(store *fakeStore, orders *fakeOrders, ledger *fakeLedger) *Reconciler {
	catalog := plan.NewCatalog(&config.Config{})
	return New(store, orders, ledger, catalog, zap.NewNop().Sugar())
}

func TestHandleEvent_SubscriptionUpdated(t *testing.T) {
	tests := []struct {
		name           string
		providerStatus string
		wantStatus     types.SubscriptionStatus
		wantTier       types.Tier
	}{
		{name: "active refreshes and propagates tier", providerStatus: "active", wantStatus: types.SubscriptionStatusActive, wantTier: types.TierPremium},
		{name: "canceled drops tier to free", providerStatus: "canceled", wantStatus: types.SubscriptionStatusCancelled, wantTier: types.TierFree},
		{name: "past_due keeps tier", providerStatus: "past_due", wantStatus: types.SubscriptionStatusPastDue, wantTier: types.TierPremium},
		{name: "other maps to inactive", providerStatus: "unpaid", wantStatus: types.SubscriptionStatusInactive, wantTier: types.TierFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(&models.Subscription{
				ID:                     "sub-1",
				UserID:                 "user-1",
				Tier:                   types.TierPremium,
				Status:                 types.SubscriptionStatusActive,
				Platform:               types.PlatformStripe,
				ExternalSubscriptionID: "ext-1",
			})
			r := newTestReconciler(store, &fakeOrders{}, &fakeLedger{})

			ev := subscriptionEvent("evt-1", "customer.subscription.updated", map[string]any{
				"id":                   "ext-1",
				"status":               tt.providerStatus,
				"current_period_start": time.Now().Unix(),
				"current_period_end":   time.Now().Add(30 * 24 * time.Hour).Unix(),
				"cancel_at_period_end": false,
				"items": map[string]any{
					"data": []map[string]any{{"price": map[string]any{"id": "price_premium_monthly"}}},
				},
			})
			require.NoError(t, r.HandleEvent(context.Background(), ev))

			assert.Equal(t, tt.wantStatus, store.subs["sub-1"].Status)
			assert.Equal(t, tt.wantTier, store.tiers["user-1"])
		})
	}
}

func TestHandleEvent_UnmatchedSubscriptionDropped(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakeOrders{}, &fakeLedger{})

	ev := subscriptionEvent("evt-1", "customer.subscription.updated", map[string]any{
		"id": "ext-unknown", "status": "active",
	})
	// dropped, not retried: the handler reports success
	require.NoError(t, r.HandleEvent(context.Background(), ev))
}

func TestHandleEvent_DeletedReplayIsIdempotent(t *testing.T) {
	store := newFakeStore(&models.Subscription{
		ID:                     "sub-1",
		UserID:                 "user-1",
		Tier:                   types.TierPremium,
		Status:                 types.SubscriptionStatusActive,
		Platform:               types.PlatformStripe,
		ExternalSubscriptionID: "ext-1",
	})
	ledger := &fakeLedger{}
	r := newTestReconciler(store, &fakeOrders{}, ledger)

	ev := subscriptionEvent("evt-del", "customer.subscription.deleted", map[string]any{"id": "ext-1"})

	require.NoError(t, r.HandleEvent(context.Background(), ev))
	assert.Equal(t, types.SubscriptionStatusCancelled, store.subs["sub-1"].Status)
	assert.Equal(t, types.TierFree, store.tiers["user-1"])

	// second delivery of the same event converges to the same state
	require.NoError(t, r.HandleEvent(context.Background(), ev))
	assert.Equal(t, types.SubscriptionStatusCancelled, store.subs["sub-1"].Status)
	assert.Equal(t, types.TierFree, store.tiers["user-1"])

	// the ledger short-circuited the replay
	last := ledger.entries[len(ledger.entries)-1]
	assert.Equal(t, models.WebhookEventLogStatusDuplicate, last.Status)
}

func TestHandleEvent_InformationalAndUnknown(t *testing.T) {
	store := newFakeStore(&models.Subscription{
		ID:                     "sub-1",
		UserID:                 "user-1",
		Status:                 types.SubscriptionStatusActive,
		Platform:               types.PlatformStripe,
		ExternalSubscriptionID: "ext-1",
	})
	r := newTestReconciler(store, &fakeOrders{}, &fakeLedger{})

	for _, eventType := range []string{
		"customer.subscription.created",
		"invoice.payment_succeeded",
		"invoice.payment_failed",
		"charge.refunded",
	} {
		ev := subscriptionEvent("evt-"+eventType, eventType, map[string]any{"id": "ext-1"})
		require.NoError(t, r.HandleEvent(context.Background(), ev))
		// no state mutation
		assert.Equal(t, types.SubscriptionStatusActive, store.subs["sub-1"].Status, eventType)
	}
}

func TestHandleEvent_PaymentIntentConfirmsOrder(t *testing.T) {
	orders := &fakeOrders{}
	r := newTestReconciler(newFakeStore(), orders, &fakeLedger{})

	ev := subscriptionEvent("evt-pi", "payment_intent.succeeded", map[string]any{
		"id":       "pi_123",
		"metadata": map[string]string{"order_id": "order-1"},
	})
	require.NoError(t, r.HandleEvent(context.Background(), ev))
	assert.Equal(t, "pi_123", orders.confirmed["order-1"])

	// no order reference: informational only
	ev = subscriptionEvent("evt-pi2", "payment_intent.succeeded", map[string]any{"id": "pi_456"})
	require.NoError(t, r.HandleEvent(context.Background(), ev))
	assert.Len(t, orders.confirmed, 1)

	// unknown order: logged and dropped
	ev = subscriptionEvent("evt-pi3", "payment_intent.succeeded", map[string]any{
		"id":       "pi_789",
		"metadata": map[string]string{"order_id": "missing"},
	})
	require.NoError(t, r.HandleEvent(context.Background(), ev))
}
