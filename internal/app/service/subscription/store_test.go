package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reelpass/billing/internal/app/service/plan"
	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

func newStoreService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Subscription{}, &models.SubscriptionLog{}))

	cfg := &config.Config{}
	return NewService(cfg, db, zap.NewNop().Sugar(), plan.NewCatalog(cfg), nil)
}

func seedUser(t *testing.T, svc *Service, id string, tier types.Tier) {
	t.Helper()
	require.NoError(t, svc.db.Create(&models.User{
		ID:               id,
		Email:            id + "@example.com",
		SubscriptionTier: tier,
	}).Error)
}

func userTier(t *testing.T, svc *Service, id string) types.Tier {
	t.Helper()
	var user models.User
	require.NoError(t, svc.db.First(&user, "id = ?", id).Error)
	return user.SubscriptionTier
}

func standardPlan() *types.Plan {
	return &types.Plan{ID: "standard_monthly", Tier: types.TierStandard, PeriodDays: 30}
}

func premiumPlan() *types.Plan {
	return &types.Plan{ID: "premium_monthly", Tier: types.TierPremium, PeriodDays: 30}
}

func TestCreate_SecondCurrentSubscriptionConflicts(t *testing.T) {
	svc := newStoreService(t)
	ctx := context.Background()
	seedUser(t, svc, "user-1", types.TierFree)

	now := time.Now()
	first, err := svc.Create(ctx, CreateParams{
		UserID:      "user-1",
		Plan:        standardPlan(),
		Platform:    types.PlatformStripe,
		ExternalID:  "sub_ext_1",
		PeriodStart: now,
		PeriodEnd:   now.Add(30 * 24 * time.Hour),
		Reason:      types.SubscriptionChangeReasonPurchase,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TierStandard, userTier(t, svc, "user-1"))

	_, err = svc.Create(ctx, CreateParams{
		UserID:      "user-1",
		Plan:        premiumPlan(),
		Platform:    types.PlatformStripe,
		ExternalID:  "sub_ext_2",
		PeriodStart: now,
		PeriodEnd:   now.Add(30 * 24 * time.Hour),
		Reason:      types.SubscriptionChangeReasonPurchase,
	})
	require.ErrorIs(t, err, apperr.ErrConflict)

	// The rejected create must not touch the existing record or tier cache.
	var got models.Subscription
	require.NoError(t, svc.db.First(&got, "id = ?", first.ID).Error)
	assert.Equal(t, types.SubscriptionStatusActive, got.Status)
	assert.Equal(t, "standard_monthly", got.PlanID)
	assert.Equal(t, types.TierStandard, got.Tier)
	assert.Equal(t, types.TierStandard, userTier(t, svc, "user-1"))

	var count int64
	require.NoError(t, svc.db.Model(&models.Subscription{}).Where("user_id = ?", "user-1").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCurrent_LazyExpiryIsIdempotent(t *testing.T) {
	svc := newStoreService(t)
	ctx := context.Background()
	seedUser(t, svc, "user-2", types.TierFree)

	now := time.Now()
	created, err := svc.Create(ctx, CreateParams{
		UserID:      "user-2",
		Plan:        standardPlan(),
		Platform:    types.PlatformInternal,
		ExternalID:  "grant-1",
		PeriodStart: now.Add(-40 * 24 * time.Hour),
		PeriodEnd:   now.Add(-10 * 24 * time.Hour),
		Reason:      types.SubscriptionChangeReasonAdminGrant,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TierStandard, userTier(t, svc, "user-2"))

	for i := 0; i < 3; i++ {
		_, err := svc.Current(ctx, "user-2")
		require.ErrorIs(t, err, apperr.ErrNotFound)
	}

	var got models.Subscription
	require.NoError(t, svc.db.First(&got, "id = ?", created.ID).Error)
	assert.Equal(t, types.SubscriptionStatusExpired, got.Status)
	assert.Equal(t, types.TierFree, userTier(t, svc, "user-2"))

	var count int64
	require.NoError(t, svc.db.Model(&models.Subscription{}).Where("user_id = ?", "user-2").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreate_AllowedAgainAfterExpiry(t *testing.T) {
	svc := newStoreService(t)
	ctx := context.Background()
	seedUser(t, svc, "user-3", types.TierFree)

	now := time.Now()
	_, err := svc.Create(ctx, CreateParams{
		UserID:      "user-3",
		Plan:        standardPlan(),
		Platform:    types.PlatformStripe,
		ExternalID:  "sub_ext_3",
		PeriodStart: now.Add(-40 * 24 * time.Hour),
		PeriodEnd:   now.Add(-10 * 24 * time.Hour),
		Reason:      types.SubscriptionChangeReasonPurchase,
	})
	require.NoError(t, err)

	_, err = svc.Current(ctx, "user-3")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	renewed, err := svc.Create(ctx, CreateParams{
		UserID:      "user-3",
		Plan:        premiumPlan(),
		Platform:    types.PlatformStripe,
		ExternalID:  "sub_ext_4",
		PeriodStart: now,
		PeriodEnd:   now.Add(30 * 24 * time.Hour),
		Reason:      types.SubscriptionChangeReasonPurchase,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, renewed.Status)
	assert.Equal(t, types.TierPremium, userTier(t, svc, "user-3"))
}
