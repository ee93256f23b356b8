package receipt

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

// Result is the unified shape both store receipt formats normalize into.
// Invalid receipts set IsValid=false and Err; they never surface as a
// returned error and never persist anything.
type Result struct {
	IsValid       bool           `json:"is_valid"`
	ProductID     string         `json:"product_id"`
	TransactionID string         `json:"transaction_id"`
	PurchaseDate  time.Time      `json:"purchase_date"`
	ExpiresAt     *time.Time     `json:"expires_at"`
	RawReceipt    datatypes.JSON `json:"raw_receipt"`
	Err           string         `json:"error,omitempty"`
}

func invalid(raw []byte, msg string) *Result {
	return &Result{IsValid: false, RawReceipt: datatypes.JSON(raw), Err: msg}
}

type Validator struct {
	cfg *config.Config
	log *zap.SugaredLogger
	// appleVerifyURL overrides the storefront endpoint in tests.
	appleVerifyURL string
}

func NewValidator(cfg *config.Config, log *zap.SugaredLogger) *Validator {
	return &Validator{cfg: cfg, log: log}
}

// Validate dispatches on platform. Unknown platforms are a validation error.
func (v *Validator) Validate(ctx context.Context, platform types.Platform, payload []byte) (*Result, error) {
	switch platform {
	case types.PlatformGooglePlay:
		return v.ValidateGooglePlay(ctx, payload), nil
	case types.PlatformAppleStore:
		return v.ValidateAppleStore(ctx, payload), nil
	default:
		return nil, apperr.Validationf("unsupported receipt platform: %s", platform)
	}
}

var Module = fx.Options(
	fx.Provide(NewValidator),
)
