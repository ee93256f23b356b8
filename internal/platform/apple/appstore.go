package apple

import (
	"context"
	"errors"
	"fmt"

	"github.com/awa/go-iap/appstore"
)

type VerifyOptions struct {
	SharedSecret string
	Sandbox      bool
	// URL overrides both verification endpoints; used in tests.
	URL string
}

// ReceiptInfo is one transaction entry from the verification response,
// most recent last per Apple's ordering of latest_receipt_info.
type ReceiptInfo struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMs        string `json:"purchase_date_ms"`
	ExpiresDateMs         string `json:"expires_date_ms"`
}

// VerifyResponse is the subset of the storefront verification response the
// receipt validator consumes. Status 0 means the receipt is valid.
type VerifyResponse struct {
	Status            int            `json:"status"`
	LatestReceiptInfo []*ReceiptInfo `json:"latest_receipt_info"`
}

// VerifyReceipt POSTs the base64 receipt to the storefront verification
// endpoint, sandbox or production per options.
func VerifyReceipt(ctx context.Context, receiptData string, opts *VerifyOptions) (*VerifyResponse, error) {
	if opts == nil {
		return nil, errors.New("opts is nil")
	}

	client := appstore.New()
	if opts.Sandbox {
		client.ProductionURL = client.SandboxURL
	}
	if opts.URL != "" {
		client.ProductionURL = opts.URL
		client.SandboxURL = opts.URL
	}

	var result VerifyResponse
	err := client.Verify(ctx, appstore.IAPRequest{
		ReceiptData:            receiptData,
		Password:               opts.SharedSecret,
		ExcludeOldTransactions: true,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to verify receipt: %w", err)
	}

	return &result, nil
}
