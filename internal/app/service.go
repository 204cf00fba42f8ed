package app

import (
	"context"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

// ApplicationService is the single interface all adapters call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// CreateParty onboards a customer or vendor with a zero balance.
	CreateParty(ctx context.Context, req CreatePartyRequest) (*core.Party, error)

	// ListParties returns parties, optionally restricted to one role.
	ListParties(ctx context.Context, role string) (*PartyListResult, error)

	// CreateItem registers a tradable item.
	CreateItem(ctx context.Context, name string) (*core.Item, error)

	// ReceiveStock records a vendor delivery as a new inventory batch.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*core.InventoryBatch, error)

	// GetStock returns the batches of an item that still hold stock, in FIFO order.
	GetStock(ctx context.Context, itemRef string, vendorID *int) (*StockResult, error)

	// CreateInvoice posts a draft invoice atomically.
	CreateInvoice(ctx context.Context, draft core.DraftInvoice) (*InvoiceResult, error)

	// UpdateInvoice replaces an invoice's lines and header, keeping its number.
	UpdateInvoice(ctx context.Context, ref string, draft core.DraftInvoice) (*InvoiceResult, error)

	// DeleteInvoice reverses and removes an invoice. ref is an id or a display number (INV-00042).
	DeleteInvoice(ctx context.Context, ref string) error

	// GetInvoice returns one invoice by id or display number.
	GetInvoice(ctx context.Context, ref string) (*InvoiceResult, error)

	// RecordPayment appends a payment against a party.
	RecordPayment(ctx context.Context, input core.PaymentInput) (*PaymentResult, error)

	// DeletePayment removes a payment and restores the settled balance.
	DeletePayment(ctx context.Context, paymentID int) error

	// DraftWatak aggregates a vendor's sales on a date into a watak draft and its preview.
	DraftWatak(ctx context.Context, vendorID int, date string) (*WatakDraftResult, error)

	// CreateWatak posts a watak settlement to a vendor.
	CreateWatak(ctx context.Context, draft core.WatakDraft) (*WatakResult, error)

	// DeleteWatak reverses and removes a watak.
	DeleteWatak(ctx context.Context, watakID int) error

	// AddSettlementRule stores commission and labor parameters for one or all vendors.
	AddSettlementRule(ctx context.Context, rule core.SettlementRule) (*core.SettlementRule, error)

	// GetLedger returns the chronological ledger of a party with running balances.
	GetLedger(ctx context.Context, partyID int) (*LedgerResult, error)

	// Reconcile replays a party's history against its stored balance.
	Reconcile(ctx context.Context, partyID int) (*core.Reconciliation, error)
}
