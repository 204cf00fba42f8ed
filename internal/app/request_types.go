package app

import (
	"github.com/shopspring/decimal"
)

// CreatePartyRequest is the input for onboarding a customer or vendor.
type CreatePartyRequest struct {
	Name string
	Role string // customer | vendor
}

// ReceiveStockRequest is the input for recording a vendor delivery.
// ItemRef is an item id or an item name.
type ReceiveStockRequest struct {
	VendorID     int
	ItemRef      string
	DateReceived string // YYYY-MM-DD, today when empty
	Quantity     decimal.Decimal
}
