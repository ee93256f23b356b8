package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/reelpass/billing/pkg/types"
)

// Subscription is one billing lifecycle for a user on one platform.
// Terminal records (cancelled/expired) are kept and superseded by new rows,
// never deleted. The partial unique index enforces at most one
// active/past_due row per user at the storage layer, closing the
// check-then-act race between concurrent purchases.
type Subscription struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index;uniqueIndex:uniq_user_current,where:status = 'active' OR status = 'past_due'" json:"user_id"`
	PlanID string `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`

	Tier   types.Tier               `gorm:"column:tier;type:varchar(32);not null" json:"tier"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`

	Platform types.Platform `gorm:"column:platform;type:varchar(32);not null;uniqueIndex:uniq_platform_external,priority:1" json:"platform"`
	// ExternalSubscriptionID is the provider-side id (gateway subscription id
	// or store original transaction id), unique per platform.
	ExternalSubscriptionID string `gorm:"column:external_subscription_id;type:varchar(128);not null;uniqueIndex:uniq_platform_external,priority:2" json:"external_subscription_id"`

	CurrentPeriodStart *time.Time `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	CancelAtPeriodEnd  bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`

	// Receipt stores the raw mobile receipt payload; empty for gateway subs.
	Receipt datatypes.JSON `gorm:"column:receipt;type:jsonb;default:'{}'" json:"receipt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Current reports whether this record occupies the single current-
// subscription slot for its user.
func (s *Subscription) Current() bool {
	return s != nil && s.Status.Current()
}

// ExpiredAt reports whether the paid period has lapsed at the given time.
// A record without a period end never expires on its own.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return s != nil && s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now)
}
