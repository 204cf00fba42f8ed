package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

// InvoiceService is the only path by which stock and party balances change
// together. Create, update and delete each run as one transaction: the
// number, every line's allocation and the balance move commit together or
// not at all.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, draft DraftInvoice) (*Invoice, error)
	// UpdateInvoice reverses the invoice's current effects and applies draft in
	// their place, keeping the invoice id and number.
	UpdateInvoice(ctx context.Context, invoiceID int, draft DraftInvoice) (*Invoice, error)
	// DeleteInvoice returns every allocated quantity to its batch, removes the
	// invoice total from the party balance and deletes the invoice.
	DeleteInvoice(ctx context.Context, invoiceID int) error

	GetInvoice(ctx context.Context, invoiceID int) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number int64) (*Invoice, error)
	ListInvoices(ctx context.Context, partyID int) ([]Invoice, error)
}

type invoiceService struct {
	runner    *TxRunner
	sequences SequenceService
	stock     StockAllocator
	log       zerolog.Logger
	now       func() time.Time
}

func NewInvoiceService(runner *TxRunner, sequences SequenceService, stock StockAllocator) InvoiceService {
	return &invoiceService{
		runner:    runner,
		sequences: sequences,
		stock:     stock,
		log:       logger.WithComponent("invoice"),
		now:       time.Now,
	}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, draft DraftInvoice) (*Invoice, error) {
	draft.Normalize(s.now())
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	log := s.log.With().Str("op_id", uuid.NewString()).Int("party_id", draft.PartyID).Logger()

	var invoiceID int
	err := s.runner.RunInTx(ctx, "create_invoice", func(tx pgx.Tx) error {
		if _, err := getPartyWith(ctx, tx, draft.PartyID); err != nil {
			return err
		}

		number, err := s.sequences.NextTx(ctx, tx, CounterInvoice)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO invoices (party_id, number, invoice_date, display_date, total_amount)
			VALUES ($1, $2, $3, $4, 0)
			RETURNING id
		`, draft.PartyID, number, draft.Date, draft.DisplayDate).Scan(&invoiceID)
		if err != nil {
			return fmt.Errorf("failed to insert invoice header: %w", err)
		}

		total, err := s.applyLinesTx(ctx, tx, invoiceID, draft.Lines)
		if err != nil {
			return err
		}
		return s.postTotalTx(ctx, tx, invoiceID, draft.PartyID, total)
	})
	if err != nil {
		log.Debug().Err(err).Msg("invoice creation aborted")
		return nil, err
	}

	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	log.Info().Int("invoice_id", inv.ID).Str("number", inv.DisplayNumber).
		Str("total", inv.TotalAmount.String()).Int("lines", len(inv.Lines)).Msg("invoice created")
	return inv, nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, invoiceID int, draft DraftInvoice) (*Invoice, error) {
	draft.Normalize(s.now())
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	log := s.log.With().Str("op_id", uuid.NewString()).Int("invoice_id", invoiceID).Logger()

	err := s.runner.RunInTx(ctx, "update_invoice", func(tx pgx.Tx) error {
		if err := s.reverseTx(ctx, tx, invoiceID); err != nil {
			return err
		}
		if _, err := getPartyWith(ctx, tx, draft.PartyID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE invoices
			SET party_id = $2, invoice_date = $3, display_date = $4, total_amount = 0
			WHERE id = $1
		`, invoiceID, draft.PartyID, draft.Date, draft.DisplayDate); err != nil {
			return fmt.Errorf("failed to update invoice header: %w", err)
		}

		total, err := s.applyLinesTx(ctx, tx, invoiceID, draft.Lines)
		if err != nil {
			return err
		}
		return s.postTotalTx(ctx, tx, invoiceID, draft.PartyID, total)
	})
	if err != nil {
		return nil, err
	}

	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("number", inv.DisplayNumber).Str("total", inv.TotalAmount.String()).Msg("invoice updated")
	return inv, nil
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, invoiceID int) error {
	err := s.runner.RunInTx(ctx, "delete_invoice", func(tx pgx.Tx) error {
		if err := s.reverseTx(ctx, tx, invoiceID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoices WHERE id = $1", invoiceID); err != nil {
			return fmt.Errorf("failed to delete invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Int("invoice_id", invoiceID).Msg("invoice deleted")
	return nil
}

// ── Read operations ───────────────────────────────────────────────────────────

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID int) (*Invoice, error) {
	return loadInvoice(ctx, s.runner.Pool(), "i.id = $1", invoiceID)
}

func (s *invoiceService) GetInvoiceByNumber(ctx context.Context, number int64) (*Invoice, error) {
	return loadInvoice(ctx, s.runner.Pool(), "i.number = $1", number)
}

// ListInvoices returns headers only, oldest first.
func (s *invoiceService) ListInvoices(ctx context.Context, partyID int) ([]Invoice, error) {
	rows, err := s.runner.Pool().Query(ctx, `
		SELECT `+invoiceHeaderColumns+`
		FROM invoices i
		JOIN parties p ON p.id = i.party_id
		WHERE i.party_id = $1
		ORDER BY i.invoice_date, i.id
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(invoiceHeaderDest(&inv)...); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.DisplayNumber = FormatNumber(CounterInvoice, inv.Number)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ── Transaction steps ─────────────────────────────────────────────────────────

// applyLinesTx allocates and inserts lines in input order and returns their
// summed amount. The first failing line aborts the caller's transaction.
func (s *invoiceService) applyLinesTx(ctx context.Context, tx pgx.Tx, invoiceID int, lines []DraftLine) (decimal.Decimal, error) {
	total := decimal.Zero
	for i, line := range lines {
		n := i + 1
		if _, err := getItemWith(ctx, tx, line.ItemID); err != nil {
			return decimal.Zero, fmt.Errorf("line %d: %w", n, err)
		}

		allocs, batchID, err := s.allocateLineTx(ctx, tx, n, line)
		if err != nil {
			return decimal.Zero, err
		}

		amount := LineAmount(line.Quantity, line.Weight, line.Rate)
		var lineID int
		err = tx.QueryRow(ctx, `
			INSERT INTO invoice_lines (invoice_id, line_number, item_id, batch_id, quantity, weight, rate, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, invoiceID, n, line.ItemID, batchID, line.Quantity, line.Weight, line.Rate, amount).Scan(&lineID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("line %d: failed to insert invoice line: %w", n, err)
		}

		for _, a := range allocs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO invoice_line_allocations (line_id, batch_id, quantity)
				VALUES ($1, $2, $3)
			`, lineID, a.BatchID, a.Quantity); err != nil {
				return decimal.Zero, fmt.Errorf("line %d: failed to record allocation: %w", n, err)
			}
		}
		total = total.Add(amount)
	}
	return total, nil
}

// allocateLineTx picks the allocation mode from the line: an explicit batch
// is used alone, otherwise FIFO. The returned batch id is the one stored on
// the line: the explicit batch, or the oldest batch a FIFO allocation drew from.
func (s *invoiceService) allocateLineTx(ctx context.Context, tx pgx.Tx, n int, line DraftLine) ([]Allocation, *int, error) {
	if line.BatchID != nil {
		batch, allocs, err := s.stock.AllocateBatchTx(ctx, tx, *line.BatchID, line.Quantity)
		if err != nil {
			return nil, nil, withLine(n, err)
		}
		if batch.ItemID != line.ItemID {
			return nil, nil, lineError(n, "batch_id", "batch %d holds item %d, not item %d", batch.ID, batch.ItemID, line.ItemID)
		}
		if line.VendorID != nil && batch.VendorID != *line.VendorID {
			return nil, nil, lineError(n, "batch_id", "batch %d belongs to vendor %d, not vendor %d", batch.ID, batch.VendorID, *line.VendorID)
		}
		id := batch.ID
		return allocs, &id, nil
	}

	if line.Quantity.IsZero() {
		// Weight-only sale: no stock moves, but the line still names the
		// batch it came from so the vendor's watak picks it up.
		batch, err := s.stock.OldestBatchTx(ctx, tx, line.ItemID, line.VendorID)
		if err != nil {
			return nil, nil, withLine(n, err)
		}
		if batch == nil {
			return nil, nil, nil
		}
		id := batch.ID
		return nil, &id, nil
	}

	allocs, err := s.stock.AllocateFIFOTx(ctx, tx, line.ItemID, line.VendorID, line.Quantity)
	if err != nil {
		return nil, nil, withLine(n, err)
	}
	id := allocs[0].BatchID
	return allocs, &id, nil
}

func (s *invoiceService) postTotalTx(ctx context.Context, tx pgx.Tx, invoiceID, partyID int, total decimal.Decimal) error {
	if _, err := tx.Exec(ctx, "UPDATE invoices SET total_amount = $2 WHERE id = $1", invoiceID, total); err != nil {
		return fmt.Errorf("failed to set invoice total: %w", err)
	}
	_, err := applyBalanceDeltaTx(ctx, tx, partyID, total)
	return err
}

// reverseTx undoes everything postTotalTx and applyLinesTx did for an
// invoice, leaving only its header row.
func (s *invoiceService) reverseTx(ctx context.Context, tx pgx.Tx, invoiceID int) error {
	var partyID int
	var total decimal.Decimal
	err := tx.QueryRow(ctx, "SELECT party_id, total_amount FROM invoices WHERE id = $1 FOR UPDATE", invoiceID).Scan(&partyID, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrInvoiceNotFound, invoiceID)
		}
		return fmt.Errorf("failed to lock invoice: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT a.batch_id, a.quantity
		FROM invoice_line_allocations a
		JOIN invoice_lines l ON l.id = a.line_id
		WHERE l.invoice_id = $1
		ORDER BY a.id
	`, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to query allocations: %w", err)
	}
	allocs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Allocation, error) {
		var a Allocation
		err := row.Scan(&a.BatchID, &a.Quantity)
		return a, err
	})
	if err != nil {
		return fmt.Errorf("failed to read allocations: %w", err)
	}

	if err := s.stock.DeallocateTx(ctx, tx, allocs); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM invoice_lines WHERE invoice_id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice lines: %w", err)
	}
	if _, err := applyBalanceDeltaTx(ctx, tx, partyID, total.Neg()); err != nil {
		return err
	}
	return nil
}

// withLine attaches a 1-based line number to allocator errors that carry one.
func withLine(n int, err error) error {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		stockErr.Line = n
		return err
	}
	var itemErr *LineItemError
	if errors.As(err, &itemErr) {
		itemErr.Line = n
		return err
	}
	return fmt.Errorf("line %d: %w", n, err)
}

// ── Loading ───────────────────────────────────────────────────────────────────

const invoiceHeaderColumns = `i.id, i.party_id, p.name, i.number, i.invoice_date::text, i.display_date::text, i.total_amount, i.created_at`

func invoiceHeaderDest(inv *Invoice) []any {
	return []any{&inv.ID, &inv.PartyID, &inv.PartyName, &inv.Number, &inv.Date, &inv.DisplayDate, &inv.TotalAmount, &inv.CreatedAt}
}

func loadInvoice(ctx context.Context, q pgxQuerier, where string, arg any) (*Invoice, error) {
	var inv Invoice
	err := q.QueryRow(ctx, `
		SELECT `+invoiceHeaderColumns+`
		FROM invoices i
		JOIN parties p ON p.id = i.party_id
		WHERE `+where, arg).Scan(invoiceHeaderDest(&inv)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", ErrInvoiceNotFound, arg)
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	inv.DisplayNumber = FormatNumber(CounterInvoice, inv.Number)

	rows, err := q.Query(ctx, `
		SELECT l.id, l.invoice_id, l.line_number, l.item_id, it.name, l.batch_id,
		       l.quantity, l.weight, l.rate, l.amount
		FROM invoice_lines l
		JOIN items it ON it.id = l.item_id
		WHERE l.invoice_id = $1
		ORDER BY l.line_number
	`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice lines: %w", err)
	}
	byID := make(map[int]int)
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNumber, &l.ItemID, &l.ItemName, &l.BatchID,
			&l.Quantity, &l.Weight, &l.Rate, &l.Amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		byID[l.ID] = len(inv.Lines)
		inv.Lines = append(inv.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invoice lines: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT a.line_id, a.batch_id, a.quantity
		FROM invoice_line_allocations a
		JOIN invoice_lines l ON l.id = a.line_id
		WHERE l.invoice_id = $1
		ORDER BY a.id
	`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lineID int
		var a Allocation
		if err := rows.Scan(&lineID, &a.BatchID, &a.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan invoice allocation: %w", err)
		}
		if idx, ok := byID[lineID]; ok {
			inv.Lines[idx].Allocations = append(inv.Lines[idx].Allocations, a)
		}
	}
	return &inv, rows.Err()
}
