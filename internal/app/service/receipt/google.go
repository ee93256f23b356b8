package receipt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
)

// googlePlayReceipt is the client-supplied purchase payload from the Play
// Billing library.
type googlePlayReceipt struct {
	PurchaseToken    string `json:"purchaseToken"`
	ProductID        string `json:"productId"`
	OrderID          string `json:"orderId"`
	PurchaseTime     int64  `json:"purchaseTime"`
	ExpiryTimeMillis string `json:"expiryTimeMillis"`
}

// ValidateGooglePlay parses a Play purchase payload and requires a purchase
// token and product id. There is no live verification against the Play
// Developer API; the payload is taken at face value once structurally valid.
func (v *Validator) ValidateGooglePlay(ctx context.Context, payload []byte) *Result {
	var r googlePlayReceipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return invalid(payload, "malformed receipt payload")
	}
	if r.PurchaseToken == "" {
		return invalid(payload, "missing purchaseToken")
	}
	if r.ProductID == "" {
		return invalid(payload, "missing productId")
	}

	transactionID := r.OrderID
	if transactionID == "" {
		transactionID = r.PurchaseToken
	}

	res := &Result{
		IsValid:       true,
		ProductID:     r.ProductID,
		TransactionID: transactionID,
		RawReceipt:    datatypes.JSON(payload),
	}
	if r.PurchaseTime > 0 {
		res.PurchaseDate = time.UnixMilli(r.PurchaseTime)
	} else {
		res.PurchaseDate = time.Now()
	}
	if r.ExpiryTimeMillis != "" {
		if ms, err := strconv.ParseInt(r.ExpiryTimeMillis, 10, 64); err == nil && ms > 0 {
			res.ExpiresAt = lo.ToPtr(time.UnixMilli(ms))
		}
	}
	return res
}
