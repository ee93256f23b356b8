package plan

import (
	"go.uber.org/fx"

	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

// defaultPlans is the code-defined catalog used when the config carries no
// plans section. Plans are immutable and not persisted.
var defaultPlans = []*types.Plan{
	{
		ID:              "standard_monthly",
		Name:            "Standard Monthly",
		Tier:            types.TierStandard,
		Price:           9.99,
		Currency:        "USD",
		StripePriceID:   "price_standard_monthly",
		AppleProductID:  "com.reelpass.standard.monthly",
		GoogleProductID: "reelpass_standard_monthly",
		PeriodDays:      30,
	},
	{
		ID:              "premium_monthly",
		Name:            "Premium Monthly",
		Tier:            types.TierPremium,
		Price:           19.99,
		Currency:        "USD",
		StripePriceID:   "price_premium_monthly",
		AppleProductID:  "com.reelpass.premium.monthly",
		GoogleProductID: "reelpass_premium_monthly",
		PeriodDays:      30,
	},
}

// Catalog is the source of truth for price/tier/external-price mapping.
type Catalog struct {
	plans []*types.Plan
}

func NewCatalog(cfg *config.Config) *Catalog {
	plans := cfg.Plans
	if len(plans) == 0 {
		plans = defaultPlans
	}
	return &Catalog{plans: plans}
}

// List returns all purchasable plans. Deterministic, side-effect-free.
func (c *Catalog) List() []*types.Plan {
	return c.plans
}

func (c *Catalog) ByID(id string) *types.Plan {
	for _, p := range c.plans {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ByStripePrice resolves a gateway price reference back to a plan.
func (c *Catalog) ByStripePrice(priceID string) *types.Plan {
	for _, p := range c.plans {
		if p.StripePriceID == priceID {
			return p
		}
	}
	return nil
}

// ByStoreProduct resolves a mobile store product id back to a plan.
func (c *Catalog) ByStoreProduct(platform types.Platform, productID string) *types.Plan {
	for _, p := range c.plans {
		switch platform {
		case types.PlatformAppleStore:
			if p.AppleProductID == productID {
				return p
			}
		case types.PlatformGooglePlay:
			if p.GoogleProductID == productID {
				return p
			}
		}
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewCatalog),
)
