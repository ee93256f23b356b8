package types

import "time"

type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
)

// Current reports whether the status counts toward the single-current-
// subscription rule.
func (s SubscriptionStatus) Current() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPastDue
}

// LosesPaidAccess reports whether a transition into this status should
// drop the owning user back to the free tier.
func (s SubscriptionStatus) LosesPaidAccess() bool {
	switch s {
	case SubscriptionStatusCancelled, SubscriptionStatusExpired, SubscriptionStatusInactive:
		return true
	}
	return false
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonPurchase    SubscriptionChangeReason = "purchase"
	SubscriptionChangeReasonReceipt     SubscriptionChangeReason = "receipt"
	SubscriptionChangeReasonWebhook     SubscriptionChangeReason = "webhook"
	SubscriptionChangeReasonCancel      SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonExpirySweep SubscriptionChangeReason = "expiry_sweep"
	SubscriptionChangeReasonAdminGrant  SubscriptionChangeReason = "admin_grant"
)

// SubscriptionInfo is the API view of the current subscription.
type SubscriptionInfo struct {
	ID                 string             `json:"id"`
	PlanID             string             `json:"plan_id"`
	Tier               Tier               `json:"tier"`
	Status             SubscriptionStatus `json:"status"`
	Platform           Platform           `json:"platform"`
	CurrentPeriodStart *time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	IsExpired          bool               `json:"is_expired"`
	DaysUntilExpiry    int                `json:"days_until_expiry"`
}
