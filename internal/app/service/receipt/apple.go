package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/reelpass/billing/internal/platform/apple"
	"github.com/reelpass/billing/pkg/logctx"
)

// appleReceiptPayload carries the base64 receipt blob the client got from
// StoreKit.
type appleReceiptPayload struct {
	ReceiptData string `json:"receiptData"`
}

// ValidateAppleStore POSTs the receipt to the storefront verification
// endpoint (sandbox or production per config). Provider, network and parse
// failures all come back as IsValid=false, never as a returned fault.
func (v *Validator) ValidateAppleStore(ctx context.Context, payload []byte) *Result {
	var p appleReceiptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		// fall back to treating the raw payload as the receipt blob
		p.ReceiptData = string(payload)
	}
	if p.ReceiptData == "" {
		return invalid(payload, "missing receiptData")
	}

	resp, err := apple.VerifyReceipt(ctx, p.ReceiptData, &apple.VerifyOptions{
		SharedSecret: v.cfg.AppleIAP.SharedSecret,
		Sandbox:      !v.cfg.AppleIAP.IsProd,
		URL:          v.appleVerifyURL,
	})
	if err != nil {
		logctx.FromCtx(ctx, v.log).Warnw("apple receipt verification call failed", "error", err)
		return invalid(payload, "receipt verification unavailable")
	}

	if resp.Status != 0 {
		return invalid(payload, fmt.Sprintf("receipt rejected by storefront, status %d", resp.Status))
	}
	if len(resp.LatestReceiptInfo) == 0 {
		return invalid(payload, "no transaction in receipt")
	}

	// latest_receipt_info is ordered oldest first; take the most recent.
	info := resp.LatestReceiptInfo[len(resp.LatestReceiptInfo)-1]

	res := &Result{
		IsValid:       true,
		ProductID:     info.ProductID,
		TransactionID: info.TransactionID,
		RawReceipt:    datatypes.JSON(payload),
	}
	if ms, err := strconv.ParseInt(info.PurchaseDateMs, 10, 64); err == nil && ms > 0 {
		res.PurchaseDate = time.UnixMilli(ms)
	} else {
		res.PurchaseDate = time.Now()
	}
	if ms, err := strconv.ParseInt(info.ExpiresDateMs, 10, 64); err == nil && ms > 0 {
		res.ExpiresAt = lo.ToPtr(time.UnixMilli(ms))
	}
	return res
}
