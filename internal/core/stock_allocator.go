package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

// StockAllocator depletes inventory batches. Every decrement happens under a
// row lock on the batch, so concurrent sales from one batch serialise instead
// of overselling.
type StockAllocator interface {
	// Standalone operations (manage their own transactions).
	ReceiveBatch(ctx context.Context, vendorID, itemID int, dateReceived string, quantity decimal.Decimal) (*InventoryBatch, error)
	GetBatch(ctx context.Context, batchID int) (*InventoryBatch, error)
	// ListBatches returns batches with stock left, in FIFO order. A nil vendorID lists every vendor.
	ListBatches(ctx context.Context, itemID int, vendorID *int) ([]InventoryBatch, error)
	AllocateFIFO(ctx context.Context, itemID int, vendorID *int, quantity decimal.Decimal) ([]Allocation, error)
	AllocateBatch(ctx context.Context, batchID int, quantity decimal.Decimal) ([]Allocation, error)
	// AuditBatches returns every batch whose consumed stock differs from the
	// quantity recorded against it by invoice allocations.
	AuditBatches(ctx context.Context) ([]BatchDrift, error)

	// TX-scoped operations: work within a caller-provided transaction.
	// Used by InvoiceService so stock moves commit or roll back with the invoice.

	// AllocateFIFOTx takes quantity from the oldest batches first, possibly
	// spanning several. Nothing is decremented unless the whole quantity fits.
	AllocateFIFOTx(ctx context.Context, tx pgx.Tx, itemID int, vendorID *int, quantity decimal.Decimal) ([]Allocation, error)
	// AllocateBatchTx takes quantity from batchID only and never spills into
	// another batch. It returns the batch as it was before the decrement.
	AllocateBatchTx(ctx context.Context, tx pgx.Tx, batchID int, quantity decimal.Decimal) (*InventoryBatch, []Allocation, error)
	// DeallocateTx returns exactly the recorded quantities to their batches.
	DeallocateTx(ctx context.Context, tx pgx.Tx, allocations []Allocation) error
	// OldestBatchTx returns the batch a FIFO allocation of the item would draw
	// from first, without taking stock. Drained batches are used only when no
	// batch has stock left; nil means the item was never received.
	OldestBatchTx(ctx context.Context, tx pgx.Tx, itemID int, vendorID *int) (*InventoryBatch, error)
}

type stockAllocator struct {
	runner *TxRunner
	log    zerolog.Logger
}

func NewStockAllocator(runner *TxRunner) StockAllocator {
	return &stockAllocator{runner: runner, log: logger.WithComponent("stock")}
}

// PlanFIFO decides how quantity is spread over batches, which must already be
// in FIFO order. It is pure; the returned error is an *InsufficientStockError
// when the batches together hold less than quantity.
func PlanFIFO(batches []InventoryBatch, quantity decimal.Decimal) ([]Allocation, error) {
	if !quantity.IsPositive() {
		return nil, nil
	}
	available := decimal.Zero
	for _, b := range batches {
		if b.RemainingStock.IsPositive() {
			available = available.Add(b.RemainingStock)
		}
	}
	if available.LessThan(quantity) {
		return nil, &InsufficientStockError{Requested: quantity, Available: available}
	}

	var plan []Allocation
	need := quantity
	for _, b := range batches {
		if !need.IsPositive() {
			break
		}
		if !b.RemainingStock.IsPositive() {
			continue
		}
		take := decimal.Min(need, b.RemainingStock)
		plan = append(plan, Allocation{BatchID: b.ID, Quantity: take})
		need = need.Sub(take)
	}
	return plan, nil
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (s *stockAllocator) ReceiveBatch(ctx context.Context, vendorID, itemID int, dateReceived string, quantity decimal.Decimal) (*InventoryBatch, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity received must be positive, got %s", ErrInvalidBatch, quantity)
	}
	if _, err := time.Parse(DateLayout, dateReceived); err != nil {
		return nil, fmt.Errorf("%w: invalid date received %q, expected YYYY-MM-DD", ErrInvalidBatch, dateReceived)
	}

	var b InventoryBatch
	err := s.runner.RunInTx(ctx, "receive_batch", func(tx pgx.Tx) error {
		vendor, err := getPartyWith(ctx, tx, vendorID)
		if err != nil {
			return err
		}
		if vendor.Role != RoleVendor {
			return fmt.Errorf("%w: party %d is a %s, batches are received from vendors", ErrRoleMismatch, vendorID, vendor.Role)
		}
		if _, err := getItemWith(ctx, tx, itemID); err != nil {
			return err
		}
		return scanBatch(tx.QueryRow(ctx, `
			INSERT INTO inventory_batches (vendor_id, item_id, date_received, quantity_received, remaining_stock)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING `+batchColumns,
			vendorID, itemID, dateReceived, quantity,
		), &b)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("batch_id", b.ID).Int("vendor_id", vendorID).Int("item_id", itemID).
		Str("quantity", quantity.String()).Msg("batch received")
	return &b, nil
}

func (s *stockAllocator) GetBatch(ctx context.Context, batchID int) (*InventoryBatch, error) {
	var b InventoryBatch
	err := scanBatch(s.runner.Pool().QueryRow(ctx, "SELECT "+batchColumns+" FROM inventory_batches WHERE id = $1", batchID), &b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, batchID)
		}
		return nil, fmt.Errorf("failed to fetch batch: %w", err)
	}
	return &b, nil
}

func (s *stockAllocator) ListBatches(ctx context.Context, itemID int, vendorID *int) ([]InventoryBatch, error) {
	return queryBatches(ctx, s.runner.Pool(), `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE item_id = $1
		  AND ($2::int IS NULL OR vendor_id = $2)
		  AND remaining_stock > 0
		ORDER BY date_received, id
	`, itemID, vendorID)
}

func (s *stockAllocator) AllocateFIFO(ctx context.Context, itemID int, vendorID *int, quantity decimal.Decimal) ([]Allocation, error) {
	var allocs []Allocation
	err := s.runner.RunInTx(ctx, "allocate_fifo", func(tx pgx.Tx) error {
		var err error
		allocs, err = s.AllocateFIFOTx(ctx, tx, itemID, vendorID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

func (s *stockAllocator) AllocateBatch(ctx context.Context, batchID int, quantity decimal.Decimal) ([]Allocation, error) {
	var allocs []Allocation
	err := s.runner.RunInTx(ctx, "allocate_batch", func(tx pgx.Tx) error {
		var err error
		_, allocs, err = s.AllocateBatchTx(ctx, tx, batchID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

func (s *stockAllocator) AuditBatches(ctx context.Context) ([]BatchDrift, error) {
	rows, err := s.runner.Pool().Query(ctx, `
		SELECT b.id, b.item_id, b.vendor_id, b.quantity_received, b.remaining_stock,
		       COALESCE(SUM(a.quantity), 0)
		FROM inventory_batches b
		LEFT JOIN invoice_line_allocations a ON a.batch_id = b.id
		GROUP BY b.id
		HAVING b.quantity_received - b.remaining_stock <> COALESCE(SUM(a.quantity), 0)
		ORDER BY b.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to audit batches: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (BatchDrift, error) {
		var d BatchDrift
		err := row.Scan(&d.BatchID, &d.ItemID, &d.VendorID, &d.Received, &d.Remaining, &d.Allocated)
		return d, err
	})
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (s *stockAllocator) AllocateFIFOTx(ctx context.Context, tx pgx.Tx, itemID int, vendorID *int, quantity decimal.Decimal) ([]Allocation, error) {
	if quantity.IsNegative() {
		return nil, fmt.Errorf("%w: allocation quantity cannot be negative, got %s", ErrInvalidLineItem, quantity)
	}
	if quantity.IsZero() {
		return nil, nil
	}

	// Rows are locked in FIFO order so that two FIFO allocators for the same
	// item always acquire locks in the same sequence.
	batches, err := queryBatches(ctx, tx, `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE item_id = $1
		  AND ($2::int IS NULL OR vendor_id = $2)
		  AND remaining_stock > 0
		ORDER BY date_received, id
		FOR UPDATE
	`, itemID, vendorID)
	if err != nil {
		return nil, err
	}

	plan, err := PlanFIFO(batches, quantity)
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			stockErr.ItemID = itemID
			stockErr.VendorID = vendorID
		}
		return nil, err
	}

	for _, a := range plan {
		if err := decrementBatch(ctx, tx, a.BatchID, a.Quantity); err != nil {
			return nil, err
		}
	}
	s.log.Debug().Int("item_id", itemID).Int("batches", len(plan)).Str("quantity", quantity.String()).Msg("fifo allocation")
	return plan, nil
}

func (s *stockAllocator) AllocateBatchTx(ctx context.Context, tx pgx.Tx, batchID int, quantity decimal.Decimal) (*InventoryBatch, []Allocation, error) {
	if quantity.IsNegative() {
		return nil, nil, fmt.Errorf("%w: allocation quantity cannot be negative, got %s", ErrInvalidLineItem, quantity)
	}

	var b InventoryBatch
	err := scanBatch(tx.QueryRow(ctx, "SELECT "+batchColumns+" FROM inventory_batches WHERE id = $1 FOR UPDATE", batchID), &b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %d", ErrBatchNotFound, batchID)
		}
		return nil, nil, fmt.Errorf("failed to lock batch %d: %w", batchID, err)
	}

	if quantity.IsZero() {
		return &b, nil, nil
	}
	if b.RemainingStock.LessThan(quantity) {
		id := b.ID
		return nil, nil, &InsufficientStockError{
			ItemID:    b.ItemID,
			BatchID:   &id,
			Requested: quantity,
			Available: b.RemainingStock,
		}
	}
	if err := decrementBatch(ctx, tx, b.ID, quantity); err != nil {
		return nil, nil, err
	}
	s.log.Debug().Int("batch_id", b.ID).Str("quantity", quantity.String()).Msg("batch allocation")
	return &b, []Allocation{{BatchID: b.ID, Quantity: quantity}}, nil
}

func (s *stockAllocator) DeallocateTx(ctx context.Context, tx pgx.Tx, allocations []Allocation) error {
	ordered := make([]Allocation, len(allocations))
	copy(ordered, allocations)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].BatchID < ordered[j].BatchID })

	for _, a := range ordered {
		if !a.Quantity.IsPositive() {
			continue
		}
		tag, err := tx.Exec(ctx, `
			UPDATE inventory_batches
			SET remaining_stock = remaining_stock + $2
			WHERE id = $1 AND remaining_stock + $2 <= quantity_received
		`, a.BatchID, a.Quantity)
		if err != nil {
			return fmt.Errorf("failed to return stock to batch %d: %w", a.BatchID, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: returning %s to batch %d would exceed its received quantity or the batch is gone",
				ErrInvalidBatch, a.Quantity, a.BatchID)
		}
	}
	return nil
}

func (s *stockAllocator) OldestBatchTx(ctx context.Context, tx pgx.Tx, itemID int, vendorID *int) (*InventoryBatch, error) {
	var b InventoryBatch
	err := scanBatch(tx.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE item_id = $1
		  AND ($2::int IS NULL OR vendor_id = $2)
		ORDER BY remaining_stock > 0 DESC, date_received, id
		LIMIT 1
	`, itemID, vendorID), &b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find oldest batch of item %d: %w", itemID, err)
	}
	return &b, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

const batchColumns = "id, vendor_id, item_id, date_received::text, quantity_received, remaining_stock"

func scanBatch(row pgx.Row, b *InventoryBatch) error {
	return row.Scan(&b.ID, &b.VendorID, &b.ItemID, &b.DateReceived, &b.QuantityReceived, &b.RemainingStock)
}

func queryBatches(ctx context.Context, q pgxQuerier, sql string, args ...any) ([]InventoryBatch, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []InventoryBatch
	for rows.Next() {
		var b InventoryBatch
		if err := scanBatch(rows, &b); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batches: %w", err)
	}
	return batches, nil
}

// decrementBatch is the shared decrement of both allocation modes. The guard
// in the WHERE clause makes it a compare-and-set even if a caller forgot the lock.
func decrementBatch(ctx context.Context, tx pgx.Tx, batchID int, quantity decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE inventory_batches
		SET remaining_stock = remaining_stock - $2
		WHERE id = $1 AND remaining_stock >= $2
	`, batchID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement batch %d: %w", batchID, err)
	}
	if tag.RowsAffected() != 1 {
		id := batchID
		return &InsufficientStockError{BatchID: &id, Requested: quantity}
	}
	return nil
}
