package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/logctx"
	"github.com/reelpass/billing/pkg/tool"
	"github.com/reelpass/billing/pkg/types"
)

// Current returns the most recent ACTIVE/PAST_DUE subscription for the user.
// A record whose period has already lapsed is lazily transitioned to EXPIRED
// before reporting that no current subscription exists.
func (s *Service) Current(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, currentStatuses()).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("no current subscription for user %s", userID)
		}
		return nil, fmt.Errorf("failed to load current subscription: %w", err)
	}

	if sub.ExpiredAt(s.now()) {
		if _, err := s.Transition(ctx, sub.ID, types.SubscriptionStatusExpired, TransitionFields{}, types.SubscriptionChangeReasonExpirySweep); err != nil {
			return nil, fmt.Errorf("failed to lazily expire subscription: %w", err)
		}
		return nil, apperr.NotFoundf("subscription expired for user %s", userID)
	}

	return &sub, nil
}

// FindByExternalID looks a subscription up by its provider-side id.
func (s *Service) FindByExternalID(ctx context.Context, platform types.Platform, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("platform = ? AND external_subscription_id = ?", platform, externalID).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("no subscription for %s/%s", platform, externalID)
		}
		return nil, fmt.Errorf("failed to load subscription by external id: %w", err)
	}
	return &sub, nil
}

type CreateParams struct {
	UserID      string
	Plan        *types.Plan
	Platform    types.Platform
	ExternalID  string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Receipt     datatypes.JSON
	Reason      types.SubscriptionChangeReason
}

// Create inserts a new subscription and promotes the user's tier cache in
// the same database transaction. Fails with Conflict when the user already
// holds a current record; the partial unique index backs this check against
// concurrent creations.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Subscription, error) {
	if p.Plan == nil {
		return nil, apperr.Validationf("plan is required")
	}

	sub := &models.Subscription{
		ID:                     tool.GenerateUUIDV7(),
		UserID:                 p.UserID,
		PlanID:                 p.Plan.ID,
		Tier:                   p.Plan.Tier,
		Status:                 types.SubscriptionStatusActive,
		Platform:               p.Platform,
		ExternalSubscriptionID: p.ExternalID,
		Receipt:                p.Receipt,
	}
	if !p.PeriodStart.IsZero() {
		start := p.PeriodStart
		sub.CurrentPeriodStart = &start
	}
	if !p.PeriodEnd.IsZero() {
		end := p.PeriodEnd
		sub.CurrentPeriodEnd = &end
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Where("user_id = ? AND status IN ?", p.UserID, currentStatuses()).First(&existing).Error
		if err == nil {
			return apperr.Conflictf("user %s already has a current subscription", p.UserID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check current subscription: %w", err)
		}

		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		if err := setUserTier(tx, p.UserID, p.Plan.Tier); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.saveLog(ctx, nil, sub, p.Reason)
	return sub, nil
}

// Transition applies a status change plus any period/cancellation fields.
// When the new status implies loss of paid access the owning user's tier
// cache is reset to free within the same database transaction.
func (s *Service) Transition(ctx context.Context, subID string, newStatus types.SubscriptionStatus, fields TransitionFields, reason types.SubscriptionChangeReason) (*models.Subscription, error) {
	var before, after models.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", subID).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("subscription %s", subID)
			}
			return fmt.Errorf("failed to load subscription: %w", err)
		}

		after = before
		after.Status = newStatus
		applyFields(&after, fields)

		if err := tx.Save(&after).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		switch {
		case newStatus.LosesPaidAccess():
			return setUserTier(tx, after.UserID, types.TierFree)
		case newStatus == types.SubscriptionStatusActive && fields.Tier != nil:
			return setUserTier(tx, after.UserID, *fields.Tier)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.saveLog(ctx, &before, &after, reason)
	return &after, nil
}

// CancelByExternalID transitions every record matching the provider-side id
// to CANCELLED and drops the affected users to the free tier. Used for
// provider-side deletion events, which are not scoped to one local row.
func (s *Service) CancelByExternalID(ctx context.Context, platform types.Platform, externalID string) (int64, error) {
	var subs []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("platform = ? AND external_subscription_id = ? AND status NOT IN ?", platform, externalID,
			[]types.SubscriptionStatus{types.SubscriptionStatusCancelled}).
		Find(&subs).Error; err != nil {
		return 0, fmt.Errorf("failed to match subscriptions by external id: %w", err)
	}

	var count int64
	for _, sub := range subs {
		if _, err := s.Transition(ctx, sub.ID, types.SubscriptionStatusCancelled, TransitionFields{}, types.SubscriptionChangeReasonWebhook); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ExpireDue sweeps current records whose period end has passed and
// transitions each to EXPIRED. Intended to run from the periodic sweeper;
// the read path performs the same correction lazily.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	var due []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND current_period_end IS NOT NULL AND current_period_end < ?", currentStatuses(), s.now()).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to scan due subscriptions: %w", err)
	}

	var count int64
	for _, sub := range due {
		if _, err := s.Transition(ctx, sub.ID, types.SubscriptionStatusExpired, TransitionFields{}, types.SubscriptionChangeReasonExpirySweep); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to expire subscription", "subscription_id", sub.ID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

func currentStatuses() []types.SubscriptionStatus {
	return []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusPastDue}
}

func applyFields(sub *models.Subscription, fields TransitionFields) {
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
	if fields.ExternalID != nil {
		sub.ExternalSubscriptionID = *fields.ExternalID
	}
}

func setUserTier(tx *gorm.DB, userID string, tier types.Tier) error {
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("subscription_tier", tier).Error; err != nil {
		return fmt.Errorf("failed to update user tier: %w", err)
	}
	return nil
}

// saveLog writes the audit trail asynchronously; failures are logged, never
// returned.
func (s *Service) saveLog(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason) {
	go func() {
		entry := &models.SubscriptionLog{
			ID:             tool.GenerateUUIDV7(),
			UserID:         after.UserID,
			SubscriptionID: after.ID,
			Reason:         reason,
			Before:         datatypes.NewJSONType(before),
			After:          datatypes.NewJSONType(after),
			Extra:          datatypes.JSONMap{},
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}()
}
