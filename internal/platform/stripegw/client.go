package stripegw

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

// Client wraps the Stripe SDK behind the subscription.Gateway contract.
// It is constructed once and injected; no package-level key mutation.
type Client struct {
	api           *client.API
	webhookSecret string
	log           *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Client {
	api := &client.API{}
	api.Init(cfg.Stripe.SecretKey, nil)
	return &Client{api: api, webhookSecret: cfg.Stripe.WebhookSecret, log: log}
}

// NewGateway exposes the client as the subscription service's gateway port.
func NewGateway(c *Client) subscription.Gateway { return c }

func (c *Client) ensureCustomer(ctx context.Context, customerID, email, userID string) (string, error) {
	if customerID != "" {
		return customerID, nil
	}
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	cus, err := c.api.Customers.New(params)
	if err != nil {
		return "", apperr.Upstreamf("create customer: %v", err)
	}
	return cus.ID, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req *subscription.GatewayCreateRequest) (*subscription.GatewaySubscription, error) {
	customerID, err := c.ensureCustomer(ctx, req.CustomerID, req.Email, req.UserID)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.Plan.StripePriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("plan_id", req.Plan.ID)
	if req.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(req.PaymentMethodID)
	}
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, apperr.Upstreamf("create subscription: %v", err)
	}

	out := &subscription.GatewaySubscription{
		ID:                 sub.ID,
		CustomerID:         customerID,
		Status:             string(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0),
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out, nil
}

func (c *Client) CancelAtPeriodEnd(ctx context.Context, externalSubscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	if _, err := c.api.Subscriptions.Update(externalSubscriptionID, params); err != nil {
		return apperr.Upstreamf("cancel subscription %s: %v", externalSubscriptionID, err)
	}
	return nil
}

// VerifyEvent checks the webhook signature against the shared secret and
// returns the parsed event. Nothing is processed on verification failure.
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return stripe.Event{}, apperr.Validationf("webhook signature verification failed: %v", err)
	}
	return event, nil
}

// PlatformID identifies this gateway in subscription records.
func (c *Client) PlatformID() types.Platform { return types.PlatformStripe }
