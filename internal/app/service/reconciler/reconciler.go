package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/reelpass/billing/internal/app/service/plan"
	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/logctx"
	"github.com/reelpass/billing/pkg/types"
)

// Store is the slice of the subscription service the reconciler drives.
type Store interface {
	FindByExternalID(ctx context.Context, platform types.Platform, externalID string) (*models.Subscription, error)
	Transition(ctx context.Context, subID string, newStatus types.SubscriptionStatus, fields subscription.TransitionFields, reason types.SubscriptionChangeReason) (*models.Subscription, error)
	CancelByExternalID(ctx context.Context, platform types.Platform, externalID string) (int64, error)
}

// Orders confirms checkout orders referenced by payment intents.
type Orders interface {
	ConfirmByPaymentIntent(ctx context.Context, orderID, paymentIntentID string) error
}

// Ledger records the event trail and answers redelivery lookups.
type Ledger interface {
	Record(ctx context.Context, entry *models.WebhookEventLog)
	AlreadyHandled(ctx context.Context, provider, eventID string) (bool, error)
}

// Reconciler maps verified billing events from the payment gateway onto
// local subscription state. Events arrive already signature-checked; an
// event without a matching local record is logged and dropped, never
// retried.
type Reconciler struct {
	store   Store
	orders  Orders
	ledger  Ledger
	catalog *plan.Catalog
	log     *zap.SugaredLogger
}

func New(store Store, orders Orders, ledger Ledger, catalog *plan.Catalog, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{store: store, orders: orders, ledger: ledger, catalog: catalog, log: log}
}

const provider = string(types.PlatformStripe)

// HandleEvent applies one gateway event. Transitions are idempotent
// assignments, and the ledger short-circuits events that were already
// handled, so redeliveries converge to the same state.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) (resErr error) {
	lg := logctx.FromCtx(ctx, r.log)

	handled, err := r.ledger.AlreadyHandled(ctx, provider, event.ID)
	if err != nil {
		return fmt.Errorf("failed to check event ledger: %w", err)
	}
	if handled {
		lg.Infow("webhook event already handled", "event_id", event.ID, "event_type", event.Type)
		r.recordEvent(ctx, event, models.WebhookEventLogStatusDuplicate, nil)
		return nil
	}

	r.recordEvent(ctx, event, models.WebhookEventLogStatusReceived, nil)
	defer func() {
		status := models.WebhookEventLogStatusHandled
		if resErr != nil {
			status = models.WebhookEventLogStatusHandleFailed
		}
		r.recordEvent(ctx, event, status, resErr)
	}()

	switch string(event.Type) {
	case "customer.subscription.created":
		// creation already happened via the subscription controller
		lg.Infow("gateway subscription created", "event_id", event.ID)
		return nil

	case "customer.subscription.updated":
		return r.handleSubscriptionUpdated(ctx, event)

	case "customer.subscription.deleted":
		return r.handleSubscriptionDeleted(ctx, event)

	case "invoice.payment_succeeded":
		lg.Infow("invoice payment succeeded", "event_id", event.ID)
		return nil

	case "invoice.payment_failed":
		// no automatic suspension; the provider moves the subscription to
		// past_due itself and we pick that up on the update event
		lg.Warnw("invoice payment failed", "event_id", event.ID)
		return nil

	case "payment_intent.succeeded":
		return r.handlePaymentIntentSucceeded(ctx, event)

	default:
		lg.Infow("ignoring unrecognized webhook event", "event_id", event.ID, "event_type", event.Type)
		return nil
	}
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var gwSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &gwSub); err != nil {
		return apperr.Validationf("malformed subscription payload: %v", err)
	}

	local, err := r.store.FindByExternalID(ctx, types.PlatformStripe, gwSub.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logctx.FromCtx(ctx, r.log).Warnw("webhook for unknown subscription dropped",
				"event_id", event.ID, "external_subscription_id", gwSub.ID)
			return nil
		}
		return err
	}

	newStatus := statusFromProvider(gwSub.Status)
	fields := subscription.TransitionFields{}

	if newStatus == types.SubscriptionStatusActive {
		if gwSub.CurrentPeriodStart > 0 {
			fields.CurrentPeriodStart = lo.ToPtr(time.Unix(gwSub.CurrentPeriodStart, 0))
		}
		if gwSub.CurrentPeriodEnd > 0 {
			fields.CurrentPeriodEnd = lo.ToPtr(time.Unix(gwSub.CurrentPeriodEnd, 0))
		}
		fields.CancelAtPeriodEnd = lo.ToPtr(gwSub.CancelAtPeriodEnd)
		if p := r.planFromItems(&gwSub); p != nil {
			fields.Tier = lo.ToPtr(p.Tier)
		}
	}

	_, err = r.store.Transition(ctx, local.ID, newStatus, fields, types.SubscriptionChangeReasonWebhook)
	return err
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var gwSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &gwSub); err != nil {
		return apperr.Validationf("malformed subscription payload: %v", err)
	}

	count, err := r.store.CancelByExternalID(ctx, types.PlatformStripe, gwSub.ID)
	if err != nil {
		return err
	}
	if count == 0 {
		logctx.FromCtx(ctx, r.log).Warnw("deletion webhook matched no local subscription",
			"event_id", event.ID, "external_subscription_id", gwSub.ID)
	}
	return nil
}

func (r *Reconciler) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return apperr.Validationf("malformed payment intent payload: %v", err)
	}

	orderID := pi.Metadata["order_id"]
	if orderID == "" {
		logctx.FromCtx(ctx, r.log).Infow("payment intent without order reference", "event_id", event.ID)
		return nil
	}

	if err := r.orders.ConfirmByPaymentIntent(ctx, orderID, pi.ID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logctx.FromCtx(ctx, r.log).Warnw("payment intent references unknown order",
				"event_id", event.ID, "order_id", orderID)
			return nil
		}
		return err
	}
	return nil
}

func (r *Reconciler) planFromItems(gwSub *stripe.Subscription) *types.Plan {
	if gwSub.Items == nil {
		return nil
	}
	for _, item := range gwSub.Items.Data {
		if item.Price == nil {
			continue
		}
		if p := r.catalog.ByStripePrice(item.Price.ID); p != nil {
			return p
		}
	}
	return nil
}

// statusFromProvider maps the gateway's subscription status onto ours.
// Anything unrecognized lands in INACTIVE.
func statusFromProvider(s stripe.SubscriptionStatus) types.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return types.SubscriptionStatusActive
	case stripe.SubscriptionStatusCanceled:
		return types.SubscriptionStatusCancelled
	case stripe.SubscriptionStatusPastDue:
		return types.SubscriptionStatusPastDue
	default:
		return types.SubscriptionStatusInactive
	}
}

func (r *Reconciler) recordEvent(ctx context.Context, event stripe.Event, status models.WebhookEventLogStatus, resErr error) {
	var traceID string
	if v, ok := ctx.Value("traceID").(string); ok {
		traceID = v
	}

	entry := &models.WebhookEventLog{
		Provider:  provider,
		EventID:   event.ID,
		EventType: string(event.Type),
		TraceID:   traceID,
		Status:    status,
		Data:      datatypes.JSON(event.Data.Raw),
	}
	if resErr != nil {
		resBytes, _ := json.Marshal(map[string]any{"error": resErr.Error()})
		entry.Result = lo.ToPtr(datatypes.JSON(resBytes))
	}
	r.ledger.Record(ctx, entry)
}
