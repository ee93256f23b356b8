package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reelpass/billing/internal/app/service/plan"
	"github.com/reelpass/billing/internal/app/service/receipt"
	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/apperr"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/logctx"
	"github.com/reelpass/billing/pkg/response"
	"github.com/reelpass/billing/pkg/types"
)

// SubscriptionManager is the slice of the subscription service the user
// routes depend on.
type SubscriptionManager interface {
	Purchase(ctx context.Context, userID, planID, paymentMethodID string) (*subscription.PurchaseResult, error)
	Cancel(ctx context.Context, userID string) (*models.Subscription, error)
	UpsertFromReceipt(ctx context.Context, userID string, platform types.Platform, res *receipt.Result) (*models.Subscription, error)
	Info(ctx context.Context, userID string) (*types.SubscriptionInfo, error)
	CheckAccess(ctx context.Context, userID string) (types.AccessLevel, error)
}

// ReceiptValidator verifies a raw store receipt for one platform.
type ReceiptValidator interface {
	Validate(ctx context.Context, platform types.Platform, payload []byte) (*receipt.Result, error)
}

// @Summary      List Plans
// @Description  Returns the purchasable plan catalog.
// @Tags         Plan
// @Produce      json
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/subscriptions/plans [get]
func ApiListPlans(catalog *plan.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(catalog.List()))
	}
}

type purchaseRequest struct {
	PlanID          string `json:"plan_id" binding:"required"`
	PaymentMethodID string `json:"payment_method_id"`
}

type purchaseResponse struct {
	Subscription *types.SubscriptionInfo `json:"subscription"`
	ClientSecret string                  `json:"client_secret,omitempty"`
}

// @Summary      Purchase Subscription
// @Description  Creates a gateway subscription for the authenticated user.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body purchaseRequest true "Purchase request"
// @Success      201  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/create [post]
func ApiPurchaseSubscription(cfg *config.Config, log *zap.SugaredLogger, mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req purchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := mgr.Purchase(c.Request.Context(), c.GetString("user_id"), req.PlanID, req.PaymentMethodID)
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		out := purchaseResponse{ClientSecret: res.ClientSecret}
		info, err := mgr.Info(c.Request.Context(), res.Subscription.UserID)
		if err != nil {
			// The purchase itself committed; serve the created record.
			logctx.FromGin(c, log).Errorw("failed to reload subscription after purchase", "error", err)
			info = subscription.InfoFor(res.Subscription, time.Now())
		}
		out.Subscription = info
		c.JSON(http.StatusCreated, response.OKT(out))
	}
}

// @Summary      Current Subscription
// @Description  Returns the authenticated user's latest subscription.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscriptions [get]
func ApiGetSubscription(cfg *config.Config, mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := mgr.Info(c.Request.Context(), c.GetString("user_id"))
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Cancel Subscription
// @Description  Flags the current subscription to end at the period boundary. Access continues until then.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscriptions/cancel [post]
func ApiCancelSubscription(cfg *config.Config, mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if _, err := mgr.Cancel(c.Request.Context(), userID); err != nil {
			errJSON(c, cfg, err)
			return
		}
		info, err := mgr.Info(c.Request.Context(), userID)
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

type validateReceiptRequest struct {
	Platform types.Platform  `json:"platform" binding:"required"`
	Receipt  json.RawMessage `json:"receipt" binding:"required"`
}

// @Summary      Validate Receipt
// @Description  Verifies a mobile store receipt and syncs the user's subscription from it.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body validateReceiptRequest true "Receipt validation request"
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscriptions/validate-receipt [post]
func ApiValidateReceipt(cfg *config.Config, mgr SubscriptionManager, validator ReceiptValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateReceiptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		userID := c.GetString("user_id")
		res, err := validator.Validate(c.Request.Context(), req.Platform, req.Receipt)
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		if _, err := mgr.UpsertFromReceipt(c.Request.Context(), userID, req.Platform, res); err != nil {
			errJSON(c, cfg, err)
			return
		}
		info, err := mgr.Info(c.Request.Context(), userID)
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Check Access
// @Description  Returns the capability set derived from the user's current subscription.
// @Tags         Access
// @Produce      json
// @Success      200  {object}  handlers.RespAccessLevel
// @Router       /api/v1/subscriptions/check-access [get]
func ApiCheckAccess(cfg *config.Config, mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		level, err := mgr.CheckAccess(c.Request.Context(), c.GetString("user_id"))
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(level))
	}
}

func RegisterPlanRoutes(r gin.IRouter, catalog *plan.Catalog) {
	r.GET("/subscriptions/plans", ApiListPlans(catalog))
}

func RegisterSubscriptionRoutes(r gin.IRouter, cfg *config.Config, log *zap.SugaredLogger, mgr SubscriptionManager, validator ReceiptValidator) {
	r.GET("/subscriptions", ApiGetSubscription(cfg, mgr))
	r.POST("/subscriptions/create", ApiPurchaseSubscription(cfg, log, mgr))
	r.POST("/subscriptions/cancel", ApiCancelSubscription(cfg, mgr))
	r.POST("/subscriptions/validate-receipt", ApiValidateReceipt(cfg, mgr, validator))
	r.GET("/subscriptions/check-access", ApiCheckAccess(cfg, mgr))
}

// errJSON maps a service error onto HTTP status and envelope code. Internal
// and upstream failures only echo their detail outside of prod; production
// clients get the generic message.
func errJSON(c *gin.Context, cfg *config.Config, err error) {
	code := response.CodeOf(err)
	detail := err.Error()
	if code == response.APIResponseCodeError && cfg.IsProd() {
		detail = response.Msg(code)
	}
	c.JSON(apperr.HTTPStatus(err), response.ErrorT(code, detail))
}
