package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// Order is the checkout-side record confirmed by payment_intent.succeeded
// webhook events carrying an order reference.
type Order struct {
	ID     string      `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string      `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Status OrderStatus `gorm:"column:status;type:varchar(32);not null;default:'pending'" json:"status"`
	// AmountCents is the order total in the smallest currency unit.
	AmountCents     int64   `gorm:"column:amount_cents;type:bigint;not null" json:"amount_cents"`
	Currency        string  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	PaymentIntentID *string `gorm:"column:payment_intent_id;type:varchar(128);uniqueIndex;default:null" json:"payment_intent_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string {
	return "order"
}
