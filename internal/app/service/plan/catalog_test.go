package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

func TestCatalogDefaults(t *testing.T) {
	c := NewCatalog(&config.Config{})

	plans := c.List()
	require.Len(t, plans, 2)

	std := c.ByID("standard_monthly")
	require.NotNil(t, std)
	assert.Equal(t, types.TierStandard, std.Tier)
	assert.Equal(t, 9.99, std.Price)

	prem := c.ByID("premium_monthly")
	require.NotNil(t, prem)
	assert.Equal(t, types.TierPremium, prem.Tier)
	assert.Equal(t, 19.99, prem.Price)

	// listing twice yields the same catalog
	assert.Equal(t, plans, c.List())
}

func TestCatalogLookups(t *testing.T) {
	c := NewCatalog(&config.Config{})

	assert.Nil(t, c.ByID("nope"))

	p := c.ByStripePrice("price_premium_monthly")
	require.NotNil(t, p)
	assert.Equal(t, "premium_monthly", p.ID)

	p = c.ByStoreProduct(types.PlatformAppleStore, "com.reelpass.standard.monthly")
	require.NotNil(t, p)
	assert.Equal(t, "standard_monthly", p.ID)

	p = c.ByStoreProduct(types.PlatformGooglePlay, "reelpass_premium_monthly")
	require.NotNil(t, p)
	assert.Equal(t, "premium_monthly", p.ID)

	// product ids do not cross platforms
	assert.Nil(t, c.ByStoreProduct(types.PlatformGooglePlay, "com.reelpass.standard.monthly"))
}

func TestCatalogFromConfig(t *testing.T) {
	cfg := &config.Config{Plans: []*types.Plan{
		{ID: "annual", Tier: types.TierPremium, Price: 99.99},
	}}
	c := NewCatalog(cfg)
	require.Len(t, c.List(), 1)
	assert.Equal(t, "annual", c.List()[0].ID)
}
