package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventLogStatus string

const (
	WebhookEventLogStatusReceived     WebhookEventLogStatus = "received"
	WebhookEventLogStatusHandled      WebhookEventLogStatus = "handled"
	WebhookEventLogStatusHandleFailed WebhookEventLogStatus = "handle_failed"
	WebhookEventLogStatusDuplicate    WebhookEventLogStatus = "duplicate"
)

// WebhookEventLog records every verified billing event received from the
// payment gateway. The provider event id doubles as an idempotency ledger:
// an event already marked handled is not re-processed on redelivery.
type WebhookEventLog struct {
	ID        string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider  string                `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	EventID   string                `gorm:"column:event_id;type:varchar(128);not null;index" json:"event_id"`
	EventType string                `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	TraceID   string                `gorm:"column:trace_id;type:varchar(64)" json:"trace_id"`
	Status    WebhookEventLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Data      datatypes.JSON        `gorm:"column:data;type:jsonb;default:'{}'" json:"data"`
	Result    *datatypes.JSON       `gorm:"column:result;type:jsonb;default:null" json:"result"`
	CreatedAt time.Time             `json:"created_at"`
}

func (WebhookEventLog) TableName() string {
	return "webhook_event_log"
}
