package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelpass/billing/internal/app/service/stats"
	subsvc "github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/response"
)

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a paginated and filterable list of all subscriptions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body subscription.ScanSubscriptionsRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListSubscriptions
// @Router       /api/v1/admin/subscriptions/list [post]
func ApiListSubscriptions(cfg *config.Config, sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subsvc.ScanSubscriptionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := sub.ScanSubscriptions(c.Request.Context(), &req)
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type adminGrantRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
	Days   int    `json:"days" binding:"required"`
}

// @Summary      Grant Subscription (Admin)
// @Description  Grants a user a subscription on the internal platform without a payment provider.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body adminGrantRequest true "Grant request"
// @Success      201  {object}  handlers.RespOK
// @Router       /api/v1/admin/subscriptions/grant [post]
func ApiAdminGrant(cfg *config.Config, sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adminGrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		granted, err := sub.AdminGrant(c.Request.Context(), req.UserID, req.PlanID, req.Days)
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(granted))
	}
}

// @Summary      Get Subscription Statistics (Admin)
// @Description  Retrieves aggregate subscription statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body stats.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespSubscriptionStatistic
// @Router       /api/v1/admin/subscriptions/statistic [post]
func ApiGetSubscriptionStatistic(cfg *config.Config, svc *stats.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stats.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetSubscriptionStatistic(c.Request.Context(), &req)
		if err != nil {
			errJSON(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, cfg *config.Config, sub *subsvc.Service, statSvc *stats.Service) {
	r.POST("/subscriptions/list", ApiListSubscriptions(cfg, sub))
	r.POST("/subscriptions/grant", ApiAdminGrant(cfg, sub))
	r.POST("/subscriptions/statistic", ApiGetSubscriptionStatistic(cfg, statSvc))
}
