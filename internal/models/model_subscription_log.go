package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/reelpass/billing/pkg/types"
)

// SubscriptionLog is an append-only audit trail of subscription state
// changes with before/after snapshots.
type SubscriptionLog struct {
	ID             string                            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID         string                            `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	SubscriptionID string                            `gorm:"column:subscription_id;type:uuid;not null;index" json:"subscription_id"`
	Reason         types.SubscriptionChangeReason    `gorm:"column:reason;type:varchar(64);not null" json:"reason"`
	Before         datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb" json:"before"`
	After          datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb" json:"after"`
	Extra          datatypes.JSONMap                 `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt      time.Time                         `json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
