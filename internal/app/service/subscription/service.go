package subscription

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelpass/billing/internal/app/service/plan"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

// Gateway is the payment-gateway port the purchase flow talks to.
type Gateway interface {
	CreateSubscription(ctx context.Context, req *GatewayCreateRequest) (*GatewaySubscription, error)
	CancelAtPeriodEnd(ctx context.Context, externalSubscriptionID string) error
}

type GatewayCreateRequest struct {
	UserID          string
	CustomerID      string
	Email           string
	PaymentMethodID string
	Plan            *types.Plan
}

type GatewaySubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	ClientSecret       string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// TransitionFields carries the optional updates applied together with a
// status change.
type TransitionFields struct {
	Tier               *types.Tier
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	ExternalID         *string
}

// Service owns the subscription records and the denormalized tier cache on
// the user row. All tier-cache writes go through here.
type Service struct {
	cfg     *config.Config
	db      *gorm.DB
	log     *zap.SugaredLogger
	catalog *plan.Catalog
	gateway Gateway
	// now is swapped in tests.
	now func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, catalog *plan.Catalog, gw Gateway) *Service {
	return &Service{cfg: cfg, db: db, log: log, catalog: catalog, gateway: gw, now: time.Now}
}
