package eventlog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/logctx"
	"github.com/reelpass/billing/pkg/tool"
)

// Service persists the webhook event trail and answers idempotency lookups.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record asynchronously persists a webhook event log. Nil input is ignored.
func (s *Service) Record(ctx context.Context, entry *models.WebhookEventLog) {
	go func() {
		if entry == nil {
			return
		}
		if entry.ID == "" {
			entry.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event log: %v", err)
		}
	}()
}

// AlreadyHandled reports whether an event from the provider was processed
// before, making redeliveries a no-op.
func (s *Service) AlreadyHandled(ctx context.Context, provider, eventID string) (bool, error) {
	var entry models.WebhookEventLog
	err := s.db.WithContext(ctx).
		Where("provider = ? AND event_id = ? AND status = ?", provider, eventID, models.WebhookEventLogStatusHandled).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check event ledger: %w", err)
	}
	return true, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
