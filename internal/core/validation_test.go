package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

func intPtr(v int) *int { return &v }

func validLine() core.DraftLine {
	return core.DraftLine{ItemID: 1, Quantity: d("10"), Weight: d("0"), Rate: d("5")}
}

func TestDraftInvoice_NormalizeDefaultsDate(t *testing.T) {
	blank := "  "
	draft := core.DraftInvoice{PartyID: 1, DisplayDate: &blank, Lines: []core.DraftLine{validLine()}}
	draft.Normalize(time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC))

	if draft.Date != "2024-02-01" {
		t.Errorf("Expected date 2024-02-01, got %q", draft.Date)
	}
	if draft.DisplayDate != nil {
		t.Errorf("Expected blank display date to be cleared, got %q", *draft.DisplayDate)
	}
	if err := draft.Validate(); err != nil {
		t.Errorf("Expected valid draft, got %v", err)
	}
}

func TestDraftInvoice_Validate(t *testing.T) {
	badDate := "01/02/2024"
	tests := []struct {
		name      string
		mutate    func(*core.DraftInvoice)
		wantLine  int
		wantField string
	}{
		{"valid", func(*core.DraftInvoice) {}, -1, ""},
		{"missing party", func(dr *core.DraftInvoice) { dr.PartyID = 0 }, 0, "party_id"},
		{"bad date", func(dr *core.DraftInvoice) { dr.Date = "2024-13-01" }, 0, "date"},
		{"bad display date", func(dr *core.DraftInvoice) { dr.DisplayDate = &badDate }, 0, "display_date"},
		{"no lines", func(dr *core.DraftInvoice) { dr.Lines = nil }, 0, "lines"},
		{"zero rate", func(dr *core.DraftInvoice) { dr.Lines[1].Rate = decimal.Zero }, 2, "rate"},
		{"negative quantity", func(dr *core.DraftInvoice) { dr.Lines[0].Quantity = d("-1") }, 1, "quantity"},
		{"negative weight", func(dr *core.DraftInvoice) { dr.Lines[0].Weight = d("-0.5") }, 1, "weight"},
		{"no quantity or weight", func(dr *core.DraftInvoice) {
			dr.Lines[1].Quantity = decimal.Zero
			dr.Lines[1].Weight = decimal.Zero
		}, 2, "quantity"},
		{"weight only", func(dr *core.DraftInvoice) {
			dr.Lines[1].Quantity = decimal.Zero
			dr.Lines[1].Weight = d("12.5")
		}, -1, ""},
		{"missing item", func(dr *core.DraftInvoice) { dr.Lines[0].ItemID = 0 }, 1, "item_id"},
		{"bad batch id", func(dr *core.DraftInvoice) { dr.Lines[1].BatchID = intPtr(-3) }, 2, "batch_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := core.DraftInvoice{
				PartyID: 7,
				Date:    "2024-02-01",
				Lines:   []core.DraftLine{validLine(), validLine()},
			}
			tt.mutate(&draft)

			err := draft.Validate()
			if tt.wantLine < 0 {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, core.ErrInvalidLineItem) {
				t.Fatalf("Expected ErrInvalidLineItem, got %v", err)
			}
			var lineErr *core.LineItemError
			if !errors.As(err, &lineErr) {
				t.Fatalf("Expected *LineItemError, got %T", err)
			}
			if lineErr.Line != tt.wantLine || lineErr.Field != tt.wantField {
				t.Errorf("Expected line %d field %s, got line %d field %s", tt.wantLine, tt.wantField, lineErr.Line, lineErr.Field)
			}
		})
	}
}

func TestPaymentInput_Validate(t *testing.T) {
	now := time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		input   core.PaymentInput
		wantErr bool
	}{
		{"amount only", core.PaymentInput{PartyID: 1, Amount: d("150")}, false},
		{"discount only", core.PaymentInput{PartyID: 1, Discount: d("50")}, false},
		{"nothing settled", core.PaymentInput{PartyID: 1}, true},
		{"negative amount", core.PaymentInput{PartyID: 1, Amount: d("-1"), Discount: d("5")}, true},
		{"negative discount", core.PaymentInput{PartyID: 1, Amount: d("10"), Discount: d("-5")}, true},
		{"no party", core.PaymentInput{Amount: d("10")}, true},
		{"bad date", core.PaymentInput{PartyID: 1, Amount: d("10"), Date: "yesterday"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			in.Normalize(now)
			err := in.Validate()
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidPayment) {
					t.Errorf("Expected ErrInvalidPayment, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if in.Mode != "cash" {
				t.Errorf("Expected default mode cash, got %q", in.Mode)
			}
			if in.Date != "2024-02-05" {
				t.Errorf("Expected default date 2024-02-05, got %q", in.Date)
			}
		})
	}
}

func TestWatakDraft_ValidateFailsFastOnMalformedItem(t *testing.T) {
	draft := core.WatakDraft{
		VendorID: 3,
		Date:     "2024-02-01",
		Items: []core.SettlementLine{
			{ItemName: "Apple", Quantity: d("10"), Rate: d("20")},
			{ItemName: "  ", Quantity: d("5"), Rate: d("20")},
			{ItemName: "Pear", Quantity: d("-1"), Rate: d("20")},
		},
	}
	draft.Normalize(time.Now())

	var lineErr *core.LineItemError
	if err := draft.Validate(); !errors.As(err, &lineErr) {
		t.Fatalf("Expected *LineItemError, got %v", err)
	}
	if lineErr.Line != 2 || lineErr.Field != "item_name" {
		t.Errorf("Expected line 2 item_name, got line %d %s", lineErr.Line, lineErr.Field)
	}
}

func TestWatakDraft_RejectsNegativeCharges(t *testing.T) {
	draft := core.WatakDraft{
		VendorID: 3,
		Date:     "2024-02-01",
		Items:    []core.SettlementLine{{ItemName: "Apple", Quantity: d("10"), Rate: d("20")}},
		Bardan:   d("-2"),
	}
	var lineErr *core.LineItemError
	if err := draft.Validate(); !errors.As(err, &lineErr) || lineErr.Field != "bardan" {
		t.Fatalf("Expected bardan LineItemError, got %v", err)
	}
}
