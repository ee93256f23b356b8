package models

import (
	"time"

	"github.com/reelpass/billing/pkg/types"
)

// User holds account identity plus a denormalized cache of the current
// subscription tier. The tier cache is mutated only by the subscription
// service (reconciliation, expiry, admin grant) and must never be trusted
// for access decisions; access is always re-derived from the subscription
// record.
type User struct {
	ID               string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email            string     `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	SubscriptionTier types.Tier `gorm:"column:subscription_tier;type:varchar(32);not null;default:'free'" json:"subscription_tier"`
	// StripeCustomerID is set on first gateway checkout.
	StripeCustomerID *string   `gorm:"column:stripe_customer_id;type:varchar(64);default:null" json:"stripe_customer_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
