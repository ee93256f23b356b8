package order

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/logctx"
)

// Service owns checkout order records. Only the confirmation path matters
// to the billing webhook flow; order creation lives with the storefront.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// ConfirmByPaymentIntent marks the referenced order confirmed and links the
// payment intent. Confirming an already-confirmed order is a no-op.
func (s *Service) ConfirmByPaymentIntent(ctx context.Context, orderID, paymentIntentID string) error {
	var o models.Order
	if err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("order %s", orderID)
		}
		return fmt.Errorf("failed to load order: %w", err)
	}

	if o.Status == models.OrderStatusConfirmed {
		logctx.FromCtx(ctx, s.log).Infow("order already confirmed", "order_id", orderID)
		return nil
	}

	updates := map[string]any{
		"status":            models.OrderStatusConfirmed,
		"payment_intent_id": paymentIntentID,
	}
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to confirm order: %w", err)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
)
