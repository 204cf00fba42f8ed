package main

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/db"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/migrations"
)

func setupVerifyDB(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	_ = godotenv.Load("../../.env")

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
	return ctx, pool
}

func TestVerify_DetectsBalanceAndStockDrift(t *testing.T) {
	ctx, pool := setupVerifyDB(t)
	runner := core.NewTxRunner(pool, core.DefaultRetryPolicy(), logger.Nop())
	parties := core.NewPartyService(pool)
	stock := core.NewStockAllocator(runner)
	sequences := core.NewSequenceService(pool)
	invoices := core.NewInvoiceService(runner, sequences, stock)
	ledger := core.NewPartyLedger(runner)

	customer, err := parties.CreateParty(ctx, "Verify Customer", core.RoleCustomer)
	if err != nil {
		t.Fatalf("CreateParty failed: %v", err)
	}
	vendor, err := parties.CreateParty(ctx, "Verify Vendor", core.RoleVendor)
	if err != nil {
		t.Fatalf("CreateParty failed: %v", err)
	}
	item, err := parties.CreateItem(ctx, "Plum")
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	batch, err := stock.ReceiveBatch(ctx, vendor.ID, item.ID, "2024-01-01", decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if _, err := invoices.CreateInvoice(ctx, core.DraftInvoice{
		PartyID: customer.ID,
		Date:    "2024-02-01",
		Lines: []core.DraftLine{{
			ItemID: item.ID, Quantity: decimal.NewFromInt(5), Weight: decimal.Zero, Rate: decimal.NewFromInt(10),
		}},
	}); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	if got := verifyBalances(ctx, parties, ledger); got != 0 {
		t.Errorf("Expected consistent balances, got %d problems", got)
	}
	if got := verifyStock(ctx, stock); got != 0 {
		t.Errorf("Expected no stock drift, got %d problems", got)
	}

	if _, err := pool.Exec(ctx, "UPDATE parties SET current_balance = current_balance + 1 WHERE id = $1", customer.ID); err != nil {
		t.Fatalf("Failed to skew balance: %v", err)
	}
	if _, err := stock.AllocateBatch(ctx, batch.ID, decimal.NewFromInt(3)); err != nil {
		t.Fatalf("AllocateBatch failed: %v", err)
	}

	if got := verifyBalances(ctx, parties, ledger); got != 1 {
		t.Errorf("Expected 1 mismatched party, got %d", got)
	}
	if got := verifyStock(ctx, stock); got != 1 {
		t.Errorf("Expected 1 drifted batch, got %d", got)
	}
}
