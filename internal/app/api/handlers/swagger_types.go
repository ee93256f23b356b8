package handlers

import (
	"github.com/reelpass/billing/internal/app/service/stats"
	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/pkg/response"
	"github.com/reelpass/billing/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespPlans wraps the plan catalog in the standard envelope.
type RespPlans struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []*types.Plan            `json:"data"`
}

// RespSubscriptionInfo wraps SubscriptionInfo in the standard envelope.
type RespSubscriptionInfo struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    types.SubscriptionInfo   `json:"data"`
}

// RespAccessLevel wraps AccessLevel in the standard envelope.
type RespAccessLevel struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    types.AccessLevel        `json:"data"`
}

// RespListSubscriptions wraps ScanSubscriptionsResponse in the standard envelope.
type RespListSubscriptions struct {
	Code    response.APIResponseCode               `json:"code"`
	Message string                                 `json:"message"`
	Data    subscription.ScanSubscriptionsResponse `json:"data"`
}

// RespSubscriptionStatistic wraps StatisticResponse in the standard envelope.
type RespSubscriptionStatistic struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stats.StatisticResponse  `json:"data"`
}
