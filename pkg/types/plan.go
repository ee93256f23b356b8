package types

type Platform string

const (
	PlatformStripe     Platform = "stripe"
	PlatformGooglePlay Platform = "google_play"
	PlatformAppleStore Platform = "apple_store"
	// PlatformInternal marks subscriptions granted by admin action rather
	// than a payment provider.
	PlatformInternal Platform = "internal"
)

// Plan is an immutable catalog entry. Tier is an explicit field rather than
// being derived from the plan id.
type Plan struct {
	ID       string  `json:"id" mapstructure:"id"`
	Name     string  `json:"name" mapstructure:"name"`
	Tier     Tier    `json:"tier" mapstructure:"tier"`
	Price    float64 `json:"price" mapstructure:"price"`
	Currency string  `json:"currency" mapstructure:"currency"`
	// StripePriceID is the gateway price reference used at checkout.
	StripePriceID string `json:"stripe_price_id" mapstructure:"stripe_price_id"`
	// AppleProductID / GoogleProductID map store receipts back to the plan.
	AppleProductID  string `json:"apple_product_id" mapstructure:"apple_product_id"`
	GoogleProductID string `json:"google_product_id" mapstructure:"google_product_id"`
	// PeriodDays is the billing period length used when the platform does
	// not report period boundaries itself.
	PeriodDays int `json:"period_days" mapstructure:"period_days"`
}
