package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reelpass/billing/internal/app/service/receipt"
	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/types"
)

type stubSubMgr struct {
	info      *types.SubscriptionInfo
	infoErr   error
	purchase  *subscription.PurchaseResult
	purchErr  error
	cancelErr error
	access    types.AccessLevel
}

func (s *stubSubMgr) Purchase(_ context.Context, _, _, _ string) (*subscription.PurchaseResult, error) {
	return s.purchase, s.purchErr
}

func (s *stubSubMgr) Cancel(_ context.Context, _ string) (*models.Subscription, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &models.Subscription{}, nil
}

func (s *stubSubMgr) UpsertFromReceipt(_ context.Context, _ string, _ types.Platform, _ *receipt.Result) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (s *stubSubMgr) Info(_ context.Context, _ string) (*types.SubscriptionInfo, error) {
	return s.info, s.infoErr
}

func (s *stubSubMgr) CheckAccess(_ context.Context, _ string) (types.AccessLevel, error) {
	return s.access, nil
}

type stubValidator struct {
	result *receipt.Result
	err    error
}

func (s *stubValidator) Validate(_ context.Context, _ types.Platform, _ []byte) (*receipt.Result, error) {
	return s.result, s.err
}

func authedRouter(mgr SubscriptionManager, validator ReceiptValidator) *gin.Engine {
	return authedRouterEnv(config.EnvDev, mgr, validator)
}

func authedRouterEnv(env config.Env, mgr SubscriptionManager, validator ReceiptValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", "user-1") })
	RegisterSubscriptionRoutes(r.Group("/api/v1"), &config.Config{Env: env}, zap.NewNop().Sugar(), mgr, validator)
	return r
}

func infoFixture() *types.SubscriptionInfo {
	end := time.Now().Add(20 * 24 * time.Hour)
	return &types.SubscriptionInfo{
		ID:               "sub-1",
		PlanID:           "premium_monthly",
		Tier:             types.TierPremium,
		Status:           types.SubscriptionStatusActive,
		Platform:         types.PlatformStripe,
		CurrentPeriodEnd: &end,
		DaysUntilExpiry:  20,
	}
}

func TestApiGetSubscription_ReturnsInfo(t *testing.T) {
	r := authedRouter(&stubSubMgr{info: infoFixture()}, &stubValidator{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "premium_monthly")
}

func TestApiGetSubscription_NotFoundMapsTo404(t *testing.T) {
	r := authedRouter(&stubSubMgr{infoErr: apperr.NotFoundf("no subscription")}, &stubValidator{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "40400")
}

func TestApiPurchaseSubscription_Returns201WithClientSecret(t *testing.T) {
	mgr := &stubSubMgr{
		info: infoFixture(),
		purchase: &subscription.PurchaseResult{
			Subscription: &models.Subscription{ID: "sub-1", UserID: "user-1"},
			ClientSecret: "pi_secret_123",
		},
	}
	r := authedRouter(mgr, &stubValidator{})

	body, _ := json.Marshal(map[string]any{"plan_id": "premium_monthly", "payment_method_id": "pm_1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), "pi_secret_123")
}

func TestApiPurchaseSubscription_ConflictMapsTo409(t *testing.T) {
	mgr := &stubSubMgr{purchErr: apperr.Conflictf("user already has a current subscription")}
	r := authedRouter(mgr, &stubValidator{})

	body, _ := json.Marshal(map[string]any{"plan_id": "premium_monthly"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "40900")
}

func TestApiPurchaseSubscription_ProdHidesUpstreamDetail(t *testing.T) {
	mgr := &stubSubMgr{purchErr: apperr.Upstreamf("create subscription: card_declined sk_live_secret_hint")}
	r := authedRouterEnv(config.EnvProd, mgr, &stubValidator{})

	body, _ := json.Marshal(map[string]any{"plan_id": "premium_monthly"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "50000")
	require.NotContains(t, w.Body.String(), "card_declined")
	require.NotContains(t, w.Body.String(), "sk_live_secret_hint")
}

func TestApiPurchaseSubscription_DevKeepsUpstreamDetail(t *testing.T) {
	mgr := &stubSubMgr{purchErr: apperr.Upstreamf("create subscription: card_declined")}
	r := authedRouterEnv(config.EnvDev, mgr, &stubValidator{})

	body, _ := json.Marshal(map[string]any{"plan_id": "premium_monthly"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "card_declined")
}

func TestApiPurchaseSubscription_InfoFailureFallsBackToCreatedRecord(t *testing.T) {
	mgr := &stubSubMgr{
		infoErr: apperr.NotFoundf("replica lag"),
		purchase: &subscription.PurchaseResult{
			Subscription: &models.Subscription{
				ID:     "sub-2",
				UserID: "user-1",
				PlanID: "premium_monthly",
				Tier:   types.TierPremium,
				Status: types.SubscriptionStatusActive,
			},
			ClientSecret: "pi_secret_456",
		},
	}
	r := authedRouter(mgr, &stubValidator{})

	body, _ := json.Marshal(map[string]any{"plan_id": "premium_monthly"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotContains(t, w.Body.String(), `"subscription":null`)
	require.Contains(t, w.Body.String(), "premium_monthly")
}

func TestApiPurchaseSubscription_MissingPlanIDIs400(t *testing.T) {
	r := authedRouter(&stubSubMgr{}, &stubValidator{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/create", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApiValidateReceipt_InvalidReceiptIs400(t *testing.T) {
	r := authedRouter(&stubSubMgr{info: infoFixture()}, &stubValidator{err: apperr.Validationf("receipt rejected by storefront")})

	body, _ := json.Marshal(map[string]any{"platform": "apple_store", "receipt": map[string]string{"receiptData": "zzz"}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/validate-receipt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApiCheckAccess_ReturnsCapabilities(t *testing.T) {
	mgr := &stubSubMgr{access: types.AccessLevel{
		Tier:         types.TierPremium,
		CanStream:    true,
		CanDownload:  true,
		MaxDownloads: types.UnlimitedDownloads,
	}}
	r := authedRouter(mgr, &stubValidator{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/check-access", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"max_downloads":-1`)
}

func TestRegisterSubscriptionRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterSubscriptionRoutes(r.Group("/api/v1"), &config.Config{}, zap.NewNop().Sugar(), nil, nil)

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("POST /api/v1/subscriptions/create"))
	require.True(t, contains("GET /api/v1/subscriptions"))
	require.True(t, contains("POST /api/v1/subscriptions/cancel"))
	require.True(t, contains("POST /api/v1/subscriptions/validate-receipt"))
	require.True(t, contains("GET /api/v1/subscriptions/check-access"))
}
