package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/reelpass/billing/internal/app/service/access"
	"github.com/reelpass/billing/internal/app/service/receipt"
	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/logctx"
	"github.com/reelpass/billing/pkg/tool"
	"github.com/reelpass/billing/pkg/types"
)

// PurchaseResult is returned from the gateway checkout flow. ClientSecret
// lets the client complete payment confirmation.
type PurchaseResult struct {
	Subscription *models.Subscription `json:"subscription"`
	ClientSecret string               `json:"client_secret"`
}

// Purchase starts a gateway subscription for the user. Conflicts with an
// existing current subscription are rejected before the gateway is called;
// gateway failures propagate and abort the request.
func (s *Service) Purchase(ctx context.Context, userID, planID, paymentMethodID string) (*PurchaseResult, error) {
	p := s.catalog.ByID(planID)
	if p == nil {
		return nil, apperr.Validationf("unknown plan: %s", planID)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("user %s", userID)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if cur, err := s.Current(ctx, userID); err == nil && cur != nil {
		return nil, apperr.Conflictf("user %s already has an active subscription", userID)
	} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	gwSub, err := s.gateway.CreateSubscription(ctx, &GatewayCreateRequest{
		UserID:          userID,
		CustomerID:      lo.FromPtr(user.StripeCustomerID),
		Email:           user.Email,
		PaymentMethodID: paymentMethodID,
		Plan:            p,
	})
	if err != nil {
		return nil, err
	}

	if user.StripeCustomerID == nil && gwSub.CustomerID != "" {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
			Update("stripe_customer_id", gwSub.CustomerID).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to persist gateway customer id", "user_id", userID, "error", err)
		}
	}

	sub, err := s.Create(ctx, CreateParams{
		UserID:      userID,
		Plan:        p,
		Platform:    types.PlatformStripe,
		ExternalID:  gwSub.ID,
		PeriodStart: gwSub.CurrentPeriodStart,
		PeriodEnd:   gwSub.CurrentPeriodEnd,
		Reason:      types.SubscriptionChangeReasonPurchase,
	})
	if err != nil {
		return nil, err
	}

	return &PurchaseResult{Subscription: sub, ClientSecret: gwSub.ClientSecret}, nil
}

// Cancel marks the current subscription cancel-at-period-end. Paid access
// continues until the period lapses; the gateway is informed for gateway-
// billed subscriptions.
func (s *Service) Cancel(ctx context.Context, userID string) (*models.Subscription, error) {
	cur, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cur.Platform == types.PlatformStripe {
		if err := s.gateway.CancelAtPeriodEnd(ctx, cur.ExternalSubscriptionID); err != nil {
			return nil, err
		}
	}

	return s.Transition(ctx, cur.ID, cur.Status, TransitionFields{
		CancelAtPeriodEnd: lo.ToPtr(true),
	}, types.SubscriptionChangeReasonCancel)
}

// UpsertFromReceipt applies a validated mobile receipt: refresh the record
// already linked to the receipt's transaction, otherwise create a new one
// under the usual single-current-subscription rule.
func (s *Service) UpsertFromReceipt(ctx context.Context, userID string, platform types.Platform, res *receipt.Result) (*models.Subscription, error) {
	if res == nil || !res.IsValid {
		msg := "invalid receipt"
		if res != nil && res.Err != "" {
			msg = res.Err
		}
		return nil, apperr.Validationf("%s", msg)
	}

	p := s.catalog.ByStoreProduct(platform, res.ProductID)
	if p == nil {
		return nil, apperr.Validationf("unknown product for %s: %s", platform, res.ProductID)
	}

	periodStart, periodEnd := receiptPeriod(p, res, s.now())

	existing, err := s.FindByExternalID(ctx, platform, res.TransactionID)
	if err == nil {
		if existing.UserID != userID {
			return nil, apperr.Conflictf("receipt already linked to another account")
		}
		return s.Transition(ctx, existing.ID, types.SubscriptionStatusActive, TransitionFields{
			Tier:               lo.ToPtr(p.Tier),
			CurrentPeriodStart: lo.ToPtr(periodStart),
			CurrentPeriodEnd:   lo.ToPtr(periodEnd),
		}, types.SubscriptionChangeReasonReceipt)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	return s.Create(ctx, CreateParams{
		UserID:      userID,
		Plan:        p,
		Platform:    platform,
		ExternalID:  res.TransactionID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Receipt:     res.RawReceipt,
		Reason:      types.SubscriptionChangeReasonReceipt,
	})
}

// AdminGrant creates an internal subscription for the user, bypassing any
// payment provider. Used by the admin dashboard.
func (s *Service) AdminGrant(ctx context.Context, userID, planID string, days int) (*models.Subscription, error) {
	p := s.catalog.ByID(planID)
	if p == nil {
		return nil, apperr.Validationf("unknown plan: %s", planID)
	}
	if days <= 0 {
		days = p.PeriodDays
	}
	if days <= 0 {
		return nil, apperr.Validationf("grant duration must be positive")
	}

	now := s.now()
	return s.Create(ctx, CreateParams{
		UserID:      userID,
		Plan:        p,
		Platform:    types.PlatformInternal,
		ExternalID:  tool.GenerateUUIDV7(),
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 0, days),
		Reason:      types.SubscriptionChangeReasonAdminGrant,
	})
}

// Info returns the API view of the user's latest subscription, lazily
// correcting a lapsed period first so the reported status is accurate.
func (s *Service) Info(ctx context.Context, userID string) (*types.SubscriptionInfo, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("no subscription for user %s", userID)
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	now := s.now()
	if sub.Current() && sub.ExpiredAt(now) {
		corrected, err := s.Transition(ctx, sub.ID, types.SubscriptionStatusExpired, TransitionFields{}, types.SubscriptionChangeReasonExpirySweep)
		if err != nil {
			return nil, err
		}
		sub = *corrected
	}

	return InfoFor(&sub, now), nil
}

// CheckAccess derives the capability set from the current subscription
// record, never from the cached user tier.
func (s *Service) CheckAccess(ctx context.Context, userID string) (types.AccessLevel, error) {
	cur, err := s.Current(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return access.EvaluateAt(types.TierFree, nil, s.now()), nil
		}
		return types.AccessLevel{}, err
	}
	return access.EvaluateAt(cur.Tier, cur, s.now()), nil
}

// InfoFor converts a subscription record into its API view as of now.
func InfoFor(sub *models.Subscription, now time.Time) *types.SubscriptionInfo {
	info := &types.SubscriptionInfo{
		ID:                 sub.ID,
		PlanID:             sub.PlanID,
		Tier:               sub.Tier,
		Status:             sub.Status,
		Platform:           sub.Platform,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		IsExpired:          !sub.Current() || sub.ExpiredAt(now),
	}
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
		info.DaysUntilExpiry = int(sub.CurrentPeriodEnd.Sub(now).Hours() / 24)
	}
	return info
}

// receiptPeriod derives the paid period from the receipt, falling back to
// the plan's period length when the store did not report an expiry.
func receiptPeriod(p *types.Plan, res *receipt.Result, now time.Time) (time.Time, time.Time) {
	start := res.PurchaseDate
	if start.IsZero() {
		start = now
	}
	if res.ExpiresAt != nil {
		return start, *res.ExpiresAt
	}
	days := p.PeriodDays
	if days <= 0 {
		days = 30
	}
	return start, start.AddDate(0, 0, days)
}
