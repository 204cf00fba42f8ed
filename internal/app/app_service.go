package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

type appService struct {
	parties  core.PartyService
	stock    core.StockAllocator
	invoices core.InvoiceService
	payments core.PaymentService
	wataks   core.WatakService
	rules    core.SettlementRules
	ledger   core.PartyLedger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	parties core.PartyService,
	stock core.StockAllocator,
	invoices core.InvoiceService,
	payments core.PaymentService,
	wataks core.WatakService,
	rules core.SettlementRules,
	ledger core.PartyLedger,
) ApplicationService {
	return &appService{
		parties:  parties,
		stock:    stock,
		invoices: invoices,
		payments: payments,
		wataks:   wataks,
		rules:    rules,
		ledger:   ledger,
	}
}

func (s *appService) CreateParty(ctx context.Context, req CreatePartyRequest) (*core.Party, error) {
	return s.parties.CreateParty(ctx, req.Name, core.PartyRole(strings.ToLower(strings.TrimSpace(req.Role))))
}

func (s *appService) ListParties(ctx context.Context, role string) (*PartyListResult, error) {
	parties, err := s.parties.ListParties(ctx, core.PartyRole(strings.ToLower(role)))
	if err != nil {
		return nil, err
	}
	return &PartyListResult{Parties: parties}, nil
}

func (s *appService) CreateItem(ctx context.Context, name string) (*core.Item, error) {
	return s.parties.CreateItem(ctx, name)
}

func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*core.InventoryBatch, error) {
	item, err := s.resolveItem(ctx, req.ItemRef)
	if err != nil {
		return nil, err
	}
	date := req.DateReceived
	if date == "" {
		date = time.Now().Format(core.DateLayout)
	}
	return s.stock.ReceiveBatch(ctx, req.VendorID, item.ID, date, req.Quantity)
}

func (s *appService) GetStock(ctx context.Context, itemRef string, vendorID *int) (*StockResult, error) {
	item, err := s.resolveItem(ctx, itemRef)
	if err != nil {
		return nil, err
	}
	batches, err := s.stock.ListBatches(ctx, item.ID, vendorID)
	if err != nil {
		return nil, err
	}
	return &StockResult{Item: *item, Batches: batches}, nil
}

func (s *appService) CreateInvoice(ctx context.Context, draft core.DraftInvoice) (*InvoiceResult, error) {
	inv, err := s.invoices.CreateInvoice(ctx, draft)
	if err != nil {
		return nil, err
	}
	return &InvoiceResult{Invoice: inv}, nil
}

func (s *appService) UpdateInvoice(ctx context.Context, ref string, draft core.DraftInvoice) (*InvoiceResult, error) {
	existing, err := s.resolveInvoice(ctx, ref)
	if err != nil {
		return nil, err
	}
	inv, err := s.invoices.UpdateInvoice(ctx, existing.ID, draft)
	if err != nil {
		return nil, err
	}
	return &InvoiceResult{Invoice: inv}, nil
}

func (s *appService) DeleteInvoice(ctx context.Context, ref string) error {
	inv, err := s.resolveInvoice(ctx, ref)
	if err != nil {
		return err
	}
	return s.invoices.DeleteInvoice(ctx, inv.ID)
}

func (s *appService) GetInvoice(ctx context.Context, ref string) (*InvoiceResult, error) {
	inv, err := s.resolveInvoice(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &InvoiceResult{Invoice: inv}, nil
}

func (s *appService) RecordPayment(ctx context.Context, input core.PaymentInput) (*PaymentResult, error) {
	p, err := s.payments.RecordPayment(ctx, input)
	if err != nil {
		return nil, err
	}
	party, err := s.parties.GetParty(ctx, p.PartyID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Payment: p, Party: party}, nil
}

func (s *appService) DeletePayment(ctx context.Context, paymentID int) error {
	return s.payments.DeletePayment(ctx, paymentID)
}

func (s *appService) DraftWatak(ctx context.Context, vendorID int, date string) (*WatakDraftResult, error) {
	draft, err := s.wataks.DraftWatakFromSales(ctx, vendorID, date)
	if err != nil {
		return nil, err
	}
	preview, err := s.wataks.PreviewWatak(ctx, *draft)
	if err != nil {
		return nil, err
	}
	return &WatakDraftResult{Draft: draft, Preview: preview}, nil
}

func (s *appService) CreateWatak(ctx context.Context, draft core.WatakDraft) (*WatakResult, error) {
	w, err := s.wataks.CreateWatak(ctx, draft)
	if err != nil {
		return nil, err
	}
	return &WatakResult{Watak: w}, nil
}

func (s *appService) DeleteWatak(ctx context.Context, watakID int) error {
	return s.wataks.DeleteWatak(ctx, watakID)
}

func (s *appService) AddSettlementRule(ctx context.Context, rule core.SettlementRule) (*core.SettlementRule, error) {
	return s.rules.CreateRule(ctx, rule)
}

func (s *appService) GetLedger(ctx context.Context, partyID int) (*LedgerResult, error) {
	l, err := s.ledger.GetLedger(ctx, partyID)
	if err != nil {
		return nil, err
	}
	return &LedgerResult{Ledger: l}, nil
}

func (s *appService) Reconcile(ctx context.Context, partyID int) (*core.Reconciliation, error) {
	return s.ledger.Reconcile(ctx, partyID)
}

// resolveInvoice accepts a numeric id or a display number such as INV-00042.
func (s *appService) resolveInvoice(ctx context.Context, ref string) (*core.Invoice, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.Atoi(ref); err == nil {
		return s.invoices.GetInvoice(ctx, id)
	}
	number, err := ParseDisplayNumber(ref)
	if err != nil {
		return nil, err
	}
	return s.invoices.GetInvoiceByNumber(ctx, number)
}

func (s *appService) resolveItem(ctx context.Context, ref string) (*core.Item, error) {
	if id, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		return s.parties.GetItem(ctx, id)
	}
	return s.parties.GetItemByName(ctx, ref)
}

// ParseDisplayNumber extracts the sequence number from a display number
// (PREFIX-00042). The prefix is not checked.
func ParseDisplayNumber(ref string) (int64, error) {
	i := strings.LastIndex(ref, "-")
	if i < 0 || i == len(ref)-1 {
		return 0, fmt.Errorf("invalid document reference %q", ref)
	}
	n, err := strconv.ParseInt(ref[i+1:], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid document reference %q", ref)
	}
	return n, nil
}
