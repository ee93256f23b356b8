package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"github.com/reelpass/billing/pkg/logctx"
	"github.com/reelpass/billing/pkg/response"
)

// EventVerifier checks the gateway signature on a raw webhook payload.
type EventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// EventHandler applies one verified gateway event to local state.
type EventHandler interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// @Summary      Stripe Webhook
// @Description  Handles signed billing events from the payment gateway.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/stripe [post]
func ApiStripeWebhook(verifier EventVerifier, handler EventHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "failed to read payload"))
			return
		}

		event, err := verifier.VerifyEvent(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			logctx.FromGin(c, log).Warnw("webhook_stripe_bad_signature", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "signature verification failed"))
			return
		}

		logctx.FromGin(c, log).Infow("webhook_stripe_received", "event_id", event.ID, "event_type", event.Type)
		if err := handler.HandleEvent(c.Request.Context(), event); err != nil {
			logctx.FromGin(c, log).Errorw("webhook_stripe_handle_error", "event_id", event.ID, "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, verifier EventVerifier, handler EventHandler, log *zap.SugaredLogger) {
	r.POST("/stripe", ApiStripeWebhook(verifier, handler, log))
}
