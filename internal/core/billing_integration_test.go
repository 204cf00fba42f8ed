package core_test

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/db"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/migrations"
)

type billingFixture struct {
	ctx       context.Context
	pool      *pgxpool.Pool
	sequences core.SequenceService
	parties   core.PartyService
	stock     core.StockAllocator
	invoices  core.InvoiceService
	payments  core.PaymentService
	wataks    core.WatakService
	rules     core.SettlementRules
	ledger    core.PartyLedger

	customerID int
	vendorID   int
	vendor2ID  int
	appleID    int
	pearID     int
}

// setupBillingDB migrates the test database, wipes every table and seeds two
// vendors, one customer and two items.
func setupBillingDB(t *testing.T) *billingFixture {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool, migrations.FS, logger.Nop()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE invoice_line_allocations, invoice_lines, invoices, watak_items, wataks,
			payments, settlement_rules, inventory_batches, document_sequences, items, parties
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}

	runner := core.NewTxRunner(pool, core.DefaultRetryPolicy(), logger.Nop())
	sequences := core.NewSequenceService(pool)
	stock := core.NewStockAllocator(runner)
	rules := core.NewSettlementRules(pool, core.SettlementDefaults{
		CommissionPercent: decimal.NewFromInt(6),
		LaborRate:         decimal.Zero,
	})
	f := &billingFixture{
		ctx:       ctx,
		pool:      pool,
		sequences: sequences,
		parties:   core.NewPartyService(pool),
		stock:     stock,
		invoices:  core.NewInvoiceService(runner, sequences, stock),
		payments:  core.NewPaymentService(runner),
		wataks:    core.NewWatakService(runner, sequences, rules),
		rules:     rules,
		ledger:    core.NewPartyLedger(runner),
	}

	mustParty := func(name string, role core.PartyRole) int {
		p, err := f.parties.CreateParty(ctx, name, role)
		if err != nil {
			t.Fatalf("CreateParty(%s) failed: %v", name, err)
		}
		return p.ID
	}
	mustItem := func(name string) int {
		it, err := f.parties.CreateItem(ctx, name)
		if err != nil {
			t.Fatalf("CreateItem(%s) failed: %v", name, err)
		}
		return it.ID
	}
	f.customerID = mustParty("Test Customer", core.RoleCustomer)
	f.vendorID = mustParty("Test Vendor", core.RoleVendor)
	f.vendor2ID = mustParty("Second Vendor", core.RoleVendor)
	f.appleID = mustItem("Apple")
	f.pearID = mustItem("Pear")
	return f
}

func (f *billingFixture) receive(t *testing.T, vendorID, itemID int, date, qty string) int {
	t.Helper()
	b, err := f.stock.ReceiveBatch(f.ctx, vendorID, itemID, date, d(qty))
	if err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	return b.ID
}

func (f *billingFixture) remaining(t *testing.T, batchID int) decimal.Decimal {
	t.Helper()
	b, err := f.stock.GetBatch(f.ctx, batchID)
	if err != nil {
		t.Fatalf("GetBatch(%d) failed: %v", batchID, err)
	}
	return b.RemainingStock
}

func (f *billingFixture) balance(t *testing.T, partyID int) decimal.Decimal {
	t.Helper()
	p, err := f.parties.GetParty(f.ctx, partyID)
	if err != nil {
		t.Fatalf("GetParty(%d) failed: %v", partyID, err)
	}
	return p.CurrentBalance
}

func (f *billingFixture) sale(itemID int, qty, rate string) core.DraftLine {
	return core.DraftLine{ItemID: itemID, Quantity: d(qty), Weight: decimal.Zero, Rate: d(rate)}
}

// ── Stock allocation ──────────────────────────────────────────────────────────

func TestStock_AllocateFIFOSpansBatches(t *testing.T) {
	f := setupBillingDB(t)
	b1 := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "50")
	b2 := f.receive(t, f.vendorID, f.appleID, "2024-01-03", "30")

	allocs, err := f.stock.AllocateFIFO(f.ctx, f.appleID, &f.vendorID, d("60"))
	if err != nil {
		t.Fatalf("AllocateFIFO failed: %v", err)
	}
	if len(allocs) != 2 || allocs[0].BatchID != b1 || allocs[1].BatchID != b2 {
		t.Fatalf("Expected allocations from batches %d then %d, got %+v", b1, b2, allocs)
	}
	if !allocs[0].Quantity.Equal(d("50")) || !allocs[1].Quantity.Equal(d("10")) {
		t.Errorf("Expected quantities 50 and 10, got %s and %s", allocs[0].Quantity, allocs[1].Quantity)
	}
	if got := f.remaining(t, b1); !got.IsZero() {
		t.Errorf("Expected batch %d drained, got %s", b1, got)
	}
	if got := f.remaining(t, b2); !got.Equal(d("20")) {
		t.Errorf("Expected batch %d at 20, got %s", b2, got)
	}
}

func TestStock_AllocateFIFOScopedToVendor(t *testing.T) {
	f := setupBillingDB(t)
	f.receive(t, f.vendorID, f.appleID, "2024-01-01", "5")
	other := f.receive(t, f.vendor2ID, f.appleID, "2023-12-01", "100")

	_, err := f.stock.AllocateFIFO(f.ctx, f.appleID, &f.vendorID, d("6"))
	var stockErr *core.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if !stockErr.Available.Equal(d("5")) {
		t.Errorf("Expected available 5, got %s", stockErr.Available)
	}
	if got := f.remaining(t, other); !got.Equal(d("100")) {
		t.Errorf("Expected other vendor's batch untouched, got %s", got)
	}
}

func TestStock_AllocateBatchNeverSpills(t *testing.T) {
	f := setupBillingDB(t)
	b1 := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "50")
	b2 := f.receive(t, f.vendorID, f.appleID, "2024-01-03", "30")

	_, err := f.stock.AllocateBatch(f.ctx, b1, d("60"))
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}
	if got := f.remaining(t, b1); !got.Equal(d("50")) {
		t.Errorf("Expected batch %d unchanged at 50, got %s", b1, got)
	}
	if got := f.remaining(t, b2); !got.Equal(d("30")) {
		t.Errorf("Expected batch %d unchanged at 30, got %s", b2, got)
	}

	if _, err := f.stock.AllocateBatch(f.ctx, 9999, d("1")); !errors.Is(err, core.ErrBatchNotFound) {
		t.Errorf("Expected ErrBatchNotFound, got %v", err)
	}
}

// ── Invoices ──────────────────────────────────────────────────────────────────

func TestInvoice_CreatePostsEverything(t *testing.T) {
	f := setupBillingDB(t)
	b1 := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "50")
	b2 := f.receive(t, f.vendorID, f.appleID, "2024-01-03", "30")
	pear := f.receive(t, f.vendorID, f.pearID, "2024-01-02", "20")

	pearLine := f.sale(f.pearID, "4", "12.5")
	pearLine.BatchID = &pear
	inv, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "60", "10"), pearLine},
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	if inv.DisplayNumber != "INV-00001" {
		t.Errorf("Expected INV-00001, got %s", inv.DisplayNumber)
	}
	if !inv.TotalAmount.Equal(d("650")) {
		t.Errorf("Expected total 650, got %s", inv.TotalAmount)
	}
	sum := decimal.Zero
	for _, l := range inv.Lines {
		sum = sum.Add(l.Amount)
	}
	if !sum.Equal(inv.TotalAmount) {
		t.Errorf("Expected line amounts to sum to total %s, got %s", inv.TotalAmount, sum)
	}
	if len(inv.Lines[0].Allocations) != 2 || *inv.Lines[0].BatchID != b1 {
		t.Errorf("Expected FIFO line across two batches recorded on %d, got %+v", b1, inv.Lines[0])
	}

	if got := f.remaining(t, b1); !got.IsZero() {
		t.Errorf("Expected batch %d drained, got %s", b1, got)
	}
	if got := f.remaining(t, b2); !got.Equal(d("20")) {
		t.Errorf("Expected batch %d at 20, got %s", b2, got)
	}
	if got := f.remaining(t, pear); !got.Equal(d("16")) {
		t.Errorf("Expected pear batch at 16, got %s", got)
	}
	if got := f.balance(t, f.customerID); !got.Equal(d("650")) {
		t.Errorf("Expected customer balance 650, got %s", got)
	}
}

func TestInvoice_FailingLineRollsBackEverything(t *testing.T) {
	f := setupBillingDB(t)
	apple := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "50")
	pear := f.receive(t, f.vendorID, f.pearID, "2024-01-01", "5")

	before, err := f.sequences.Peek(f.ctx, core.CounterInvoice)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}

	_, err = f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "10", "10"), f.sale(f.pearID, "6", "10")},
	})
	var stockErr *core.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if stockErr.Line != 2 {
		t.Errorf("Expected failure on line 2, got line %d", stockErr.Line)
	}

	after, _ := f.sequences.Peek(f.ctx, core.CounterInvoice)
	if after != before {
		t.Errorf("Expected no number consumed, counter moved %d -> %d", before, after)
	}
	var count int
	if err := f.pool.QueryRow(f.ctx, "SELECT COUNT(*) FROM invoices").Scan(&count); err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no invoice rows, got %d", count)
	}
	if got := f.remaining(t, apple); !got.Equal(d("50")) {
		t.Errorf("Expected apple batch restored to 50, got %s", got)
	}
	if got := f.remaining(t, pear); !got.Equal(d("5")) {
		t.Errorf("Expected pear batch untouched at 5, got %s", got)
	}
	if got := f.balance(t, f.customerID); !got.IsZero() {
		t.Errorf("Expected customer balance 0, got %s", got)
	}

	// The next successful invoice takes the number the failed one never got.
	inv, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "10", "10")},
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if inv.Number != before+1 {
		t.Errorf("Expected number %d, got %d", before+1, inv.Number)
	}
}

func TestInvoice_ExplicitBatchMismatch(t *testing.T) {
	f := setupBillingDB(t)
	pear := f.receive(t, f.vendorID, f.pearID, "2024-01-01", "10")

	line := f.sale(f.appleID, "1", "10")
	line.BatchID = &pear
	_, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{PartyID: f.customerID, Date: "2024-02-01", Lines: []core.DraftLine{line}})

	var lineErr *core.LineItemError
	if !errors.As(err, &lineErr) || lineErr.Field != "batch_id" || lineErr.Line != 1 {
		t.Fatalf("Expected batch_id LineItemError on line 1, got %v", err)
	}
	if got := f.remaining(t, pear); !got.Equal(d("10")) {
		t.Errorf("Expected pear batch untouched, got %s", got)
	}
}

func TestInvoice_UnknownParty(t *testing.T) {
	f := setupBillingDB(t)
	f.receive(t, f.vendorID, f.appleID, "2024-01-01", "10")

	_, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{PartyID: 9999, Date: "2024-02-01", Lines: []core.DraftLine{f.sale(f.appleID, "1", "10")}})
	if !errors.Is(err, core.ErrPartyNotFound) {
		t.Fatalf("Expected ErrPartyNotFound, got %v", err)
	}
}

func TestInvoice_DeleteRestoresStockAndBalance(t *testing.T) {
	f := setupBillingDB(t)
	b1 := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "50")
	b2 := f.receive(t, f.vendorID, f.appleID, "2024-01-03", "30")

	inv, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "60", "10")},
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if err := f.invoices.DeleteInvoice(f.ctx, inv.ID); err != nil {
		t.Fatalf("DeleteInvoice failed: %v", err)
	}

	if got := f.remaining(t, b1); !got.Equal(d("50")) {
		t.Errorf("Expected batch %d back at 50, got %s", b1, got)
	}
	if got := f.remaining(t, b2); !got.Equal(d("30")) {
		t.Errorf("Expected batch %d back at 30, got %s", b2, got)
	}
	if got := f.balance(t, f.customerID); !got.IsZero() {
		t.Errorf("Expected customer balance 0, got %s", got)
	}
	if _, err := f.invoices.GetInvoice(f.ctx, inv.ID); !errors.Is(err, core.ErrInvoiceNotFound) {
		t.Errorf("Expected ErrInvoiceNotFound after delete, got %v", err)
	}
	if err := f.invoices.DeleteInvoice(f.ctx, inv.ID); !errors.Is(err, core.ErrInvoiceNotFound) {
		t.Errorf("Expected second delete to fail with ErrInvoiceNotFound, got %v", err)
	}
}

func TestInvoice_UpdateReappliesAndKeepsNumber(t *testing.T) {
	f := setupBillingDB(t)
	apple := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "50")
	pear := f.receive(t, f.vendorID, f.pearID, "2024-01-01", "20")

	inv, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "40", "10")},
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	updated, err := f.invoices.UpdateInvoice(f.ctx, inv.ID, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-02",
		Lines:   []core.DraftLine{f.sale(f.appleID, "45", "10"), f.sale(f.pearID, "5", "20")},
	})
	if err != nil {
		t.Fatalf("UpdateInvoice failed: %v", err)
	}
	if updated.Number != inv.Number {
		t.Errorf("Expected number %d kept, got %d", inv.Number, updated.Number)
	}
	if !updated.TotalAmount.Equal(d("550")) {
		t.Errorf("Expected total 550, got %s", updated.TotalAmount)
	}
	if got := f.remaining(t, apple); !got.Equal(d("5")) {
		t.Errorf("Expected apple at 5, got %s", got)
	}
	if got := f.remaining(t, pear); !got.Equal(d("15")) {
		t.Errorf("Expected pear at 15, got %s", got)
	}
	if got := f.balance(t, f.customerID); !got.Equal(d("550")) {
		t.Errorf("Expected balance 550, got %s", got)
	}

	// A failing update leaves the previous version in place.
	_, err = f.invoices.UpdateInvoice(f.ctx, inv.ID, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-02",
		Lines:   []core.DraftLine{f.sale(f.appleID, "51", "10")},
	})
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}
	if got := f.remaining(t, apple); !got.Equal(d("5")) {
		t.Errorf("Expected apple still at 5, got %s", got)
	}
	if got := f.balance(t, f.customerID); !got.Equal(d("550")) {
		t.Errorf("Expected balance still 550, got %s", got)
	}
}

func TestInvoice_ConcurrentCreatesGetConsecutiveNumbers(t *testing.T) {
	f := setupBillingDB(t)
	f.receive(t, f.vendorID, f.appleID, "2024-01-01", "100")

	const workers = 2
	var wg sync.WaitGroup
	numbers := make(chan int64, workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
				PartyID: f.customerID,
				Date:    "2024-02-01",
				Lines:   []core.DraftLine{f.sale(f.appleID, "10", "10")},
			})
			if err != nil {
				errCh <- err
				return
			}
			numbers <- inv.Number
		}()
	}
	wg.Wait()
	close(numbers)
	close(errCh)

	for err := range errCh {
		t.Fatalf("Concurrent CreateInvoice failed: %v", err)
	}
	var got []int64
	for n := range numbers {
		got = append(got, n)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != workers || got[1] != got[0]+1 {
		t.Fatalf("Expected two consecutive numbers, got %v", got)
	}
	if got := f.balance(t, f.customerID); !got.Equal(d("200")) {
		t.Errorf("Expected balance 200, got %s", got)
	}
}

func TestInvoice_ConcurrentSalesFromOneBatch(t *testing.T) {
	f := setupBillingDB(t)
	batch := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "100")

	const workers = 2
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			line := f.sale(f.appleID, "60", "10")
			line.BatchID = &batch
			_, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
				PartyID: f.customerID,
				Date:    "2024-02-01",
				Lines:   []core.DraftLine{line},
			})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	succeeded, short := 0, 0
	for err := range errCh {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, core.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("Unexpected CreateInvoice error: %v", err)
		}
	}
	if succeeded != 1 || short != 1 {
		t.Fatalf("Expected one sale and one insufficient stock error, got %d and %d", succeeded, short)
	}
	if got := f.remaining(t, batch); !got.Equal(d("40")) {
		t.Errorf("Expected batch at 40, got %s", got)
	}
	if got := f.balance(t, f.customerID); !got.Equal(d("600")) {
		t.Errorf("Expected balance 600, got %s", got)
	}
	invoices, err := f.invoices.ListInvoices(f.ctx, f.customerID)
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(invoices) != 1 || invoices[0].DisplayNumber != "INV-00001" {
		t.Errorf("Expected only INV-00001, got %+v", invoices)
	}
}

func TestInvoice_LockTimeoutBecomesConcurrentModification(t *testing.T) {
	f := setupBillingDB(t)
	batch := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "100")
	if _, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "10", "10")},
	}); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	shortPool, err := db.NewPool(f.ctx, os.Getenv("TEST_DATABASE_URL"), db.PoolOptions{
		MaxConns:    2,
		LockTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(shortPool.Close)

	runner := core.NewTxRunner(shortPool, core.RetryPolicy{MaxAttempts: 2, Backoff: 10 * time.Millisecond}, logger.Nop())
	stock := core.NewStockAllocator(runner)
	invoices := core.NewInvoiceService(runner, core.NewSequenceService(shortPool), stock)

	// Another writer holds the invoice counter for the whole test.
	holder, err := f.pool.Begin(f.ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer holder.Rollback(f.ctx)
	if _, err := holder.Exec(f.ctx,
		"SELECT last_number FROM document_sequences WHERE counter_key = $1 FOR UPDATE", core.CounterInvoice); err != nil {
		t.Fatalf("Failed to lock counter: %v", err)
	}

	_, err = invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-02",
		Lines:   []core.DraftLine{f.sale(f.appleID, "5", "10")},
	})
	if !errors.Is(err, core.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification, got %v", err)
	}
	var concErr *core.ConcurrencyError
	if !errors.As(err, &concErr) || concErr.Attempts != 2 {
		t.Fatalf("Expected *ConcurrencyError after 2 attempts, got %v", err)
	}
	if err := holder.Rollback(f.ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	var count int
	if err := f.pool.QueryRow(f.ctx, "SELECT COUNT(*) FROM invoices").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 invoice, got %d", count)
	}
	if got := f.remaining(t, batch); !got.Equal(d("90")) {
		t.Errorf("Expected batch at 90, got %s", got)
	}
	if got := f.balance(t, f.customerID); !got.Equal(d("100")) {
		t.Errorf("Expected balance 100, got %s", got)
	}
}

// ── Payments and ledger ───────────────────────────────────────────────────────

func TestLedger_MatchesStoredBalance(t *testing.T) {
	f := setupBillingDB(t)
	f.receive(t, f.vendorID, f.appleID, "2024-01-01", "100")

	if _, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "10", "50")},
	}); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	p, err := f.payments.RecordPayment(f.ctx, core.PaymentInput{
		PartyID:  f.customerID,
		Amount:   d("150"),
		Discount: d("50"),
		Date:     "2024-02-05",
	})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if p.Mode != "cash" {
		t.Errorf("Expected default mode cash, got %s", p.Mode)
	}

	ledger, err := f.ledger.GetLedger(f.ctx, f.customerID)
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	stored := f.balance(t, f.customerID)
	if !stored.Equal(d("300")) {
		t.Errorf("Expected stored balance 300, got %s", stored)
	}
	if !ledger.ClosingBalance.Equal(stored) {
		t.Errorf("Expected ledger to close at %s, got %s", stored, ledger.ClosingBalance)
	}
	if !ledger.OpeningBalance.IsZero() {
		t.Errorf("Expected opening balance 0, got %s", ledger.OpeningBalance)
	}
	if ledger.Status != core.StatusReceivable {
		t.Errorf("Expected RECEIVABLE, got %s", ledger.Status)
	}

	rec, err := f.ledger.Reconcile(f.ctx, f.customerID)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !rec.Consistent || rec.Transactions != 2 {
		t.Errorf("Expected consistent reconciliation over 2 transactions, got %+v", rec)
	}

	if err := f.payments.DeletePayment(f.ctx, p.ID); err != nil {
		t.Fatalf("DeletePayment failed: %v", err)
	}
	if got := f.balance(t, f.customerID); !got.Equal(d("500")) {
		t.Errorf("Expected balance 500 after deleting payment, got %s", got)
	}
	if err := f.payments.DeletePayment(f.ctx, p.ID); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Errorf("Expected ErrPaymentNotFound, got %v", err)
	}
}

func TestLedger_UnknownParty(t *testing.T) {
	f := setupBillingDB(t)
	if _, err := f.ledger.GetLedger(f.ctx, 9999); !errors.Is(err, core.ErrPartyNotFound) {
		t.Fatalf("Expected ErrPartyNotFound, got %v", err)
	}
}

// ── Wataks ────────────────────────────────────────────────────────────────────

func TestWatak_DraftFromSalesAndSettle(t *testing.T) {
	f := setupBillingDB(t)
	f.receive(t, f.vendorID, f.appleID, "2024-01-01", "30")
	f.receive(t, f.vendor2ID, f.appleID, "2024-01-02", "30")

	// 25 apples: the first vendor's 30 cover it all.
	if _, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "20", "50"), f.sale(f.appleID, "5", "50")},
	}); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	draft, err := f.wataks.DraftWatakFromSales(f.ctx, f.vendorID, "2024-02-01")
	if err != nil {
		t.Fatalf("DraftWatakFromSales failed: %v", err)
	}
	if len(draft.Items) != 1 || draft.Items[0].ItemName != "Apple" || !draft.Items[0].Quantity.Equal(d("25")) {
		t.Fatalf("Expected one Apple line of 25, got %+v", draft.Items)
	}
	if _, err := f.wataks.DraftWatakFromSales(f.ctx, f.vendor2ID, "2024-02-01"); !errors.Is(err, core.ErrSettlementCalculation) {
		t.Errorf("Expected no sales for second vendor, got %v", err)
	}

	commission := d("10")
	draft.CommissionPercent = &commission
	draft.VehicleCharges = d("20.75")
	w, err := f.wataks.CreateWatak(f.ctx, *draft)
	if err != nil {
		t.Fatalf("CreateWatak failed: %v", err)
	}
	// gross 1250, commission 125, vehicle floor(20.75)=20, net 1250-145
	if w.DisplayNumber != "WTK-00001" {
		t.Errorf("Expected WTK-00001, got %s", w.DisplayNumber)
	}
	if !w.NetPayable.Equal(d("1105")) {
		t.Errorf("Expected net payable 1105, got %s", w.NetPayable)
	}
	if got := f.balance(t, f.vendorID); !got.Equal(d("1105")) {
		t.Errorf("Expected vendor balance 1105, got %s", got)
	}

	ledger, err := f.ledger.GetLedger(f.ctx, f.vendorID)
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if ledger.Status != core.StatusPayable {
		t.Errorf("Expected PAYABLE, got %s", ledger.Status)
	}

	if err := f.wataks.DeleteWatak(f.ctx, w.ID); err != nil {
		t.Fatalf("DeleteWatak failed: %v", err)
	}
	if got := f.balance(t, f.vendorID); !got.IsZero() {
		t.Errorf("Expected vendor balance 0 after delete, got %s", got)
	}
}

func TestWatak_DraftIncludesWeightOnlyFIFOSale(t *testing.T) {
	f := setupBillingDB(t)
	f.receive(t, f.vendor2ID, f.appleID, "2023-12-01", "40")
	batch := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "30")

	inv, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines: []core.DraftLine{{
			ItemID: f.appleID, VendorID: &f.vendorID, Quantity: decimal.Zero, Weight: d("12.5"), Rate: d("8"),
		}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if got := inv.Lines[0].BatchID; got == nil || *got != batch {
		t.Fatalf("Expected line attributed to batch %d, got %v", batch, got)
	}
	if got := f.remaining(t, batch); !got.Equal(d("30")) {
		t.Errorf("Expected weight-only sale to leave batch at 30, got %s", got)
	}

	draft, err := f.wataks.DraftWatakFromSales(f.ctx, f.vendorID, "2024-02-01")
	if err != nil {
		t.Fatalf("DraftWatakFromSales failed: %v", err)
	}
	if len(draft.Items) != 1 || !draft.Items[0].Weight.Equal(d("12.5")) || !draft.Items[0].Quantity.IsZero() {
		t.Fatalf("Expected one Apple line of weight 12.5, got %+v", draft.Items)
	}
	if _, err := f.wataks.DraftWatakFromSales(f.ctx, f.vendor2ID, "2024-02-01"); !errors.Is(err, core.ErrSettlementCalculation) {
		t.Errorf("Expected no sales for second vendor, got %v", err)
	}
}

func TestWatak_DraftSplitsWeightExactly(t *testing.T) {
	f := setupBillingDB(t)
	f.receive(t, f.vendorID, f.appleID, "2024-01-01", "1")
	f.receive(t, f.vendorID, f.appleID, "2024-01-02", "1")
	f.receive(t, f.vendor2ID, f.appleID, "2024-01-03", "1")

	// 3 units weighing 10 drawn from three batches: 10/3 does not terminate.
	if _, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines: []core.DraftLine{{
			ItemID: f.appleID, Quantity: d("3"), Weight: d("10"), Rate: d("7"),
		}},
	}); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	first, err := f.wataks.DraftWatakFromSales(f.ctx, f.vendorID, "2024-02-01")
	if err != nil {
		t.Fatalf("DraftWatakFromSales failed: %v", err)
	}
	second, err := f.wataks.DraftWatakFromSales(f.ctx, f.vendor2ID, "2024-02-01")
	if err != nil {
		t.Fatalf("DraftWatakFromSales failed: %v", err)
	}
	if len(first.Items) != 1 || len(second.Items) != 1 {
		t.Fatalf("Expected one line per vendor, got %+v and %+v", first.Items, second.Items)
	}
	if got := first.Items[0].Weight; !got.Equal(d("6.666")) {
		t.Errorf("Expected first vendor weight 6.666, got %s", got)
	}
	if got := second.Items[0].Weight; !got.Equal(d("3.334")) {
		t.Errorf("Expected second vendor weight 3.334, got %s", got)
	}
	if got := first.Items[0].Weight.Add(second.Items[0].Weight); !got.Equal(d("10")) {
		t.Errorf("Expected apportioned weights to sum to 10, got %s", got)
	}
}

func TestWatak_RejectsCustomer(t *testing.T) {
	f := setupBillingDB(t)
	_, err := f.wataks.CreateWatak(f.ctx, core.WatakDraft{
		VendorID: f.customerID,
		Date:     "2024-02-01",
		Items:    []core.SettlementLine{{ItemName: "Apple", Quantity: d("1"), Rate: d("10")}},
	})
	if !errors.Is(err, core.ErrRoleMismatch) {
		t.Fatalf("Expected ErrRoleMismatch, got %v", err)
	}
}

func TestSettlementRules_Resolve(t *testing.T) {
	f := setupBillingDB(t)
	if _, err := f.rules.CreateRule(f.ctx, core.SettlementRule{CommissionPercent: d("8"), LaborRate: d("1")}); err != nil {
		t.Fatalf("CreateRule (global) failed: %v", err)
	}
	expired := "2024-01-31"
	if _, err := f.rules.CreateRule(f.ctx, core.SettlementRule{VendorID: &f.vendorID, CommissionPercent: d("4"), Priority: 5, EffectiveTo: &expired}); err != nil {
		t.Fatalf("CreateRule (expired) failed: %v", err)
	}
	if _, err := f.rules.CreateRule(f.ctx, core.SettlementRule{VendorID: &f.vendorID, CommissionPercent: d("5"), LaborExemptItem: "Pear"}); err != nil {
		t.Fatalf("CreateRule (vendor) failed: %v", err)
	}

	tests := []struct {
		name       string
		vendorID   int
		date       string
		commission string
	}{
		{"vendor rule outranks global", f.vendorID, "2024-02-01", "5"},
		{"expired rule still applies before its end", f.vendorID, "2024-01-15", "4"},
		{"global rule for other vendors", f.vendor2ID, "2024-02-01", "8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := f.rules.ResolveRule(f.ctx, nil, tt.vendorID, tt.date)
			if err != nil {
				t.Fatalf("ResolveRule failed: %v", err)
			}
			if rule == nil || !rule.CommissionPercent.Equal(d(tt.commission)) {
				t.Errorf("Expected commission %s, got %+v", tt.commission, rule)
			}
		})
	}

	override := d("3")
	params, err := f.rules.ResolveParams(f.ctx, nil, core.WatakDraft{VendorID: f.vendorID, Date: "2024-02-01", CommissionPercent: &override})
	if err != nil {
		t.Fatalf("ResolveParams failed: %v", err)
	}
	if !params.CommissionPercent.Equal(d("3")) || params.LaborExemptItem != "Pear" {
		t.Errorf("Expected draft commission 3 and rule exemption Pear, got %+v", params)
	}
}

func TestStock_AuditBatches(t *testing.T) {
	f := setupBillingDB(t)
	b1 := f.receive(t, f.vendorID, f.appleID, "2024-01-01", "50")
	b2 := f.receive(t, f.vendorID, f.pearID, "2024-01-01", "50")

	if _, err := f.invoices.CreateInvoice(f.ctx, core.DraftInvoice{
		PartyID: f.customerID,
		Date:    "2024-02-01",
		Lines:   []core.DraftLine{f.sale(f.appleID, "20", "10")},
	}); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	drift, err := f.stock.AuditBatches(f.ctx)
	if err != nil {
		t.Fatalf("AuditBatches failed: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("Expected no drift after invoicing, got %+v", drift)
	}

	// Stock taken outside an invoice leaves no allocation rows behind.
	if _, err := f.stock.AllocateBatch(f.ctx, b2, d("7")); err != nil {
		t.Fatalf("AllocateBatch failed: %v", err)
	}
	drift, err = f.stock.AuditBatches(f.ctx)
	if err != nil {
		t.Fatalf("AuditBatches failed: %v", err)
	}
	if len(drift) != 1 || drift[0].BatchID != b2 || !drift[0].Unexplained().Equal(d("7")) {
		t.Errorf("Expected batch %d to drift by 7, got %+v", b2, drift)
	}
	if got := f.remaining(t, b1); !got.Equal(d("30")) {
		t.Errorf("Expected batch %d at 30, got %s", b1, got)
	}
}
