package app

import "github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"

// PartyListResult is returned by ListParties.
type PartyListResult struct {
	Parties []core.Party
}

// StockResult is returned by GetStock.
type StockResult struct {
	Item    core.Item
	Batches []core.InventoryBatch
}

// InvoiceResult is returned by invoice operations.
type InvoiceResult struct {
	Invoice *core.Invoice
}

// PaymentResult is returned by RecordPayment.
type PaymentResult struct {
	Payment *core.Payment
	Party   *core.Party // balance after the payment
}

// WatakDraftResult is returned by DraftWatak. Preview is the settlement the
// draft would produce if posted unchanged.
type WatakDraftResult struct {
	Draft   *core.WatakDraft
	Preview *core.Settlement
}

// WatakResult is returned by CreateWatak.
type WatakResult struct {
	Watak *core.Watak
}

// LedgerResult is returned by GetLedger.
type LedgerResult struct {
	Ledger *core.Ledger
}
