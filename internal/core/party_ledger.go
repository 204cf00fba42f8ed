package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

type TxnKind string

const (
	TxnInvoice TxnKind = "invoice"
	TxnWatak   TxnKind = "watak"
	TxnPayment TxnKind = "payment"
)

// priority orders same-day transactions: documents before payments.
func (k TxnKind) priority() int {
	if k == TxnPayment {
		return 1
	}
	return 0
}

type BalanceStatus string

const (
	StatusReceivable BalanceStatus = "RECEIVABLE"
	StatusPayable    BalanceStatus = "PAYABLE"
	StatusAdvance    BalanceStatus = "ADVANCE"
	StatusSettled    BalanceStatus = "SETTLED"
)

// StatusFor labels a balance from the party's side: a positive customer
// balance is owed to us, a positive vendor balance is owed by us.
func StatusFor(role PartyRole, balance decimal.Decimal) BalanceStatus {
	switch {
	case balance.IsZero():
		return StatusSettled
	case balance.IsNegative():
		return StatusAdvance
	case role == RoleVendor:
		return StatusPayable
	default:
		return StatusReceivable
	}
}

// PartyTxn is one balance-moving record. Debit raises the balance, Credit
// lowers it, for both roles.
type PartyTxn struct {
	Kind        TxnKind         `json:"kind"`
	ID          int             `json:"id"`
	Date        string          `json:"date"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

func (t PartyTxn) delta() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

type LedgerEntry struct {
	PartyTxn
	RunningBalance decimal.Decimal `json:"running_balance"`
	Status         BalanceStatus   `json:"status"`
}

type Ledger struct {
	Party          Party           `json:"party"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Entries        []LedgerEntry   `json:"entries"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Status         BalanceStatus   `json:"status"`
}

// Reconciliation compares a replay of the history with the stored balance.
// Parties start at zero, so a non-zero opening balance is balance the
// recorded history does not explain.
type Reconciliation struct {
	PartyID         int             `json:"party_id"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	ReplayedBalance decimal.Decimal `json:"replayed_balance"`
	Transactions    int             `json:"transactions"`
	Consistent      bool            `json:"consistent"`
}

// SortTxns puts txns in ledger order: date, then documents before payments, then id.
func SortTxns(txns []PartyTxn) {
	sort.SliceStable(txns, func(i, j int) bool {
		a, b := txns[i], txns[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Kind.priority() != b.Kind.priority() {
			return a.Kind.priority() < b.Kind.priority()
		}
		return a.ID < b.ID
	})
}

// ReconstructOpeningBalance recovers the balance before the first transaction
// by removing every transaction's effect from the current balance.
func ReconstructOpeningBalance(current decimal.Decimal, txns []PartyTxn) decimal.Decimal {
	net := decimal.Zero
	for _, t := range txns {
		net = net.Add(t.delta())
	}
	return current.Sub(net)
}

// BuildLedger replays txns from the reconstructed opening balance. txns may
// be in any order; the result is sorted and its closing balance equals
// party.CurrentBalance.
func BuildLedger(party Party, txns []PartyTxn) *Ledger {
	ordered := make([]PartyTxn, len(txns))
	copy(ordered, txns)
	SortTxns(ordered)

	opening := ReconstructOpeningBalance(party.CurrentBalance, ordered)
	l := &Ledger{
		Party:          party,
		OpeningBalance: opening,
		Entries:        make([]LedgerEntry, 0, len(ordered)),
	}
	running := opening
	for _, t := range ordered {
		running = running.Add(t.delta())
		l.Entries = append(l.Entries, LedgerEntry{
			PartyTxn:       t,
			RunningBalance: running,
			Status:         StatusFor(party.Role, running),
		})
	}
	l.ClosingBalance = running
	l.Status = StatusFor(party.Role, running)
	return l
}

// PartyLedger is the read side over a party's balance history.
type PartyLedger interface {
	// GetLedger loads the party and its whole history from one snapshot.
	GetLedger(ctx context.Context, partyID int) (*Ledger, error)
	OpeningBalance(ctx context.Context, partyID int) (decimal.Decimal, error)
	Reconcile(ctx context.Context, partyID int) (*Reconciliation, error)
}

type partyLedger struct {
	runner *TxRunner
	log    zerolog.Logger
}

func NewPartyLedger(runner *TxRunner) PartyLedger {
	return &partyLedger{runner: runner, log: logger.WithComponent("ledger")}
}

func (l *partyLedger) GetLedger(ctx context.Context, partyID int) (*Ledger, error) {
	var ledger *Ledger
	err := l.runner.RunInSnapshot(ctx, "ledger", func(tx pgx.Tx) error {
		party, err := getPartyWith(ctx, tx, partyID)
		if err != nil {
			return err
		}
		txns, err := loadPartyTxns(ctx, tx, partyID)
		if err != nil {
			return err
		}
		ledger = BuildLedger(*party, txns)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (l *partyLedger) OpeningBalance(ctx context.Context, partyID int) (decimal.Decimal, error) {
	ledger, err := l.GetLedger(ctx, partyID)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.OpeningBalance, nil
}

func (l *partyLedger) Reconcile(ctx context.Context, partyID int) (*Reconciliation, error) {
	ledger, err := l.GetLedger(ctx, partyID)
	if err != nil {
		return nil, err
	}
	r := &Reconciliation{
		PartyID:         partyID,
		StoredBalance:   ledger.Party.CurrentBalance,
		OpeningBalance:  ledger.OpeningBalance,
		ReplayedBalance: ledger.ClosingBalance,
		Transactions:    len(ledger.Entries),
	}
	r.Consistent = r.ReplayedBalance.Equal(r.StoredBalance) && r.OpeningBalance.IsZero()
	if !r.Consistent {
		l.log.Warn().Int("party_id", partyID).
			Str("stored", r.StoredBalance.String()).
			Str("opening", r.OpeningBalance.String()).
			Msg("party balance not explained by its history")
	}
	return r, nil
}

// loadPartyTxns reads every balance-moving record of a party. Wataks only
// exist for vendors, so the watak query is empty for customers.
func loadPartyTxns(ctx context.Context, q pgxQuerier, partyID int) ([]PartyTxn, error) {
	var txns []PartyTxn

	rows, err := q.Query(ctx, `
		SELECT id, number, invoice_date::text, total_amount
		FROM invoices WHERE party_id = $1
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices for ledger: %w", err)
	}
	for rows.Next() {
		t := PartyTxn{Kind: TxnInvoice, Credit: decimal.Zero}
		var number int64
		if err := rows.Scan(&t.ID, &number, &t.Date, &t.Debit); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan invoice for ledger: %w", err)
		}
		t.Reference = FormatNumber(CounterInvoice, number)
		t.Description = "Invoice " + t.Reference
		txns = append(txns, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invoices for ledger: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, number, watak_date::text, net_payable
		FROM wataks WHERE vendor_id = $1
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wataks for ledger: %w", err)
	}
	for rows.Next() {
		t := PartyTxn{Kind: TxnWatak, Credit: decimal.Zero}
		var number int64
		if err := rows.Scan(&t.ID, &number, &t.Date, &t.Debit); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan watak for ledger: %w", err)
		}
		t.Reference = FormatNumber(CounterWatak, number)
		t.Description = "Watak " + t.Reference
		txns = append(txns, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wataks for ledger: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, payment_date::text, amount, discount, mode, receipt_no
		FROM payments WHERE party_id = $1
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments for ledger: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Date, &p.Amount, &p.Discount, &p.Mode, &p.ReceiptNo); err != nil {
			return nil, fmt.Errorf("failed to scan payment for ledger: %w", err)
		}
		txns = append(txns, paymentTxn(p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payments for ledger: %w", err)
	}
	return txns, nil
}

func paymentTxn(p Payment) PartyTxn {
	t := PartyTxn{
		Kind:        TxnPayment,
		ID:          p.ID,
		Date:        p.Date,
		Description: fmt.Sprintf("Payment (%s)", p.Mode),
		Debit:       decimal.Zero,
		Credit:      p.Settled(),
	}
	if p.ReceiptNo != nil {
		t.Reference = *p.ReceiptNo
	}
	if p.Discount.IsPositive() {
		t.Description += fmt.Sprintf(", discount %s", p.Discount)
	}
	return t
}
