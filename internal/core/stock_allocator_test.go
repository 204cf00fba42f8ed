package core_test

import (
	"errors"
	"testing"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

func batch(id int, date, remaining string) core.InventoryBatch {
	return core.InventoryBatch{
		ID:               id,
		VendorID:         1,
		ItemID:           1,
		DateReceived:     date,
		QuantityReceived: d(remaining),
		RemainingStock:   d(remaining),
	}
}

func TestPlanFIFO_SpansBatches(t *testing.T) {
	batches := []core.InventoryBatch{
		batch(10, "2024-01-01", "50"),
		batch(11, "2024-01-03", "30"),
	}

	plan, err := core.PlanFIFO(batches, d("60"))
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("Expected 2 allocations, got %d: %+v", len(plan), plan)
	}
	if plan[0].BatchID != 10 || !plan[0].Quantity.Equal(d("50")) {
		t.Errorf("Expected (10, 50), got (%d, %s)", plan[0].BatchID, plan[0].Quantity)
	}
	if plan[1].BatchID != 11 || !plan[1].Quantity.Equal(d("10")) {
		t.Errorf("Expected (11, 10), got (%d, %s)", plan[1].BatchID, plan[1].Quantity)
	}
}

func TestPlanFIFO(t *testing.T) {
	tests := []struct {
		name      string
		batches   []core.InventoryBatch
		quantity  string
		want      map[int]string
		wantShort string
	}{
		{
			name:     "fits in first batch",
			batches:  []core.InventoryBatch{batch(1, "2024-01-01", "50"), batch(2, "2024-01-02", "50")},
			quantity: "20",
			want:     map[int]string{1: "20"},
		},
		{
			name:     "exactly drains everything",
			batches:  []core.InventoryBatch{batch(1, "2024-01-01", "5"), batch(2, "2024-01-02", "7.5")},
			quantity: "12.5",
			want:     map[int]string{1: "5", 2: "7.5"},
		},
		{
			name:     "skips empty batches",
			batches:  []core.InventoryBatch{batch(1, "2024-01-01", "0"), batch(2, "2024-01-02", "9")},
			quantity: "4",
			want:     map[int]string{2: "4"},
		},
		{
			name:     "zero quantity allocates nothing",
			batches:  []core.InventoryBatch{batch(1, "2024-01-01", "9")},
			quantity: "0",
			want:     map[int]string{},
		},
		{
			name:      "insufficient",
			batches:   []core.InventoryBatch{batch(1, "2024-01-01", "50"), batch(2, "2024-01-03", "30")},
			quantity:  "81",
			wantShort: "1",
		},
		{
			name:      "no batches",
			quantity:  "1",
			wantShort: "1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := core.PlanFIFO(tt.batches, d(tt.quantity))
			if tt.wantShort != "" {
				var stockErr *core.InsufficientStockError
				if !errors.As(err, &stockErr) {
					t.Fatalf("Expected InsufficientStockError, got %v", err)
				}
				if !errors.Is(err, core.ErrInsufficientStock) {
					t.Errorf("Expected error to match ErrInsufficientStock")
				}
				if !stockErr.Shortfall().Equal(d(tt.wantShort)) {
					t.Errorf("Expected shortfall %s, got %s", tt.wantShort, stockErr.Shortfall())
				}
				if plan != nil {
					t.Errorf("Expected no plan on failure, got %+v", plan)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlanFIFO failed: %v", err)
			}
			if len(plan) != len(tt.want) {
				t.Fatalf("Expected %d allocations, got %+v", len(tt.want), plan)
			}
			for _, a := range plan {
				want, ok := tt.want[a.BatchID]
				if !ok {
					t.Errorf("Unexpected allocation from batch %d", a.BatchID)
					continue
				}
				if !a.Quantity.Equal(d(want)) {
					t.Errorf("Batch %d: expected %s, got %s", a.BatchID, want, a.Quantity)
				}
			}
		})
	}
}
