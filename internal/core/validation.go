package core

import (
	"fmt"
	"strings"
	"time"
)

// Normalize trims text fields and defaults an empty date to now's calendar day.
func (d *DraftInvoice) Normalize(now time.Time) {
	d.Date = strings.TrimSpace(d.Date)
	if d.Date == "" {
		d.Date = now.Format(DateLayout)
	}
	if d.DisplayDate != nil {
		trimmed := strings.TrimSpace(*d.DisplayDate)
		if trimmed == "" {
			d.DisplayDate = nil
		} else {
			d.DisplayDate = &trimmed
		}
	}
}

// Validate checks the draft's shape. It never touches the database; party and
// item existence are checked inside the invoice transaction.
func (d *DraftInvoice) Validate() error {
	if d.PartyID <= 0 {
		return lineError(0, "party_id", "must be a positive id, got %d", d.PartyID)
	}
	if err := validateDate("date", d.Date); err != nil {
		return err
	}
	if d.DisplayDate != nil {
		if err := validateDate("display_date", *d.DisplayDate); err != nil {
			return err
		}
	}
	if len(d.Lines) == 0 {
		return lineError(0, "lines", "invoice must have at least one line")
	}
	for i, line := range d.Lines {
		if err := line.validate(i + 1); err != nil {
			return err
		}
	}
	return nil
}

func (l DraftLine) validate(n int) error {
	if l.ItemID <= 0 {
		return lineError(n, "item_id", "must be a positive id, got %d", l.ItemID)
	}
	if l.BatchID != nil && *l.BatchID <= 0 {
		return lineError(n, "batch_id", "must be a positive id, got %d", *l.BatchID)
	}
	if l.VendorID != nil && *l.VendorID <= 0 {
		return lineError(n, "vendor_id", "must be a positive id, got %d", *l.VendorID)
	}
	if !l.Rate.IsPositive() {
		return lineError(n, "rate", "must be positive, got %s", l.Rate)
	}
	if l.Quantity.IsNegative() {
		return lineError(n, "quantity", "cannot be negative, got %s", l.Quantity)
	}
	if l.Weight.IsNegative() {
		return lineError(n, "weight", "cannot be negative, got %s", l.Weight)
	}
	if !l.Quantity.IsPositive() && !l.Weight.IsPositive() {
		return lineError(n, "quantity", "quantity or weight must be greater than zero")
	}
	return nil
}

func (p *PaymentInput) Normalize(now time.Time) {
	p.Date = strings.TrimSpace(p.Date)
	if p.Date == "" {
		p.Date = now.Format(DateLayout)
	}
	p.Mode = strings.ToLower(strings.TrimSpace(p.Mode))
	if p.Mode == "" {
		p.Mode = "cash"
	}
	if p.ReceiptNo != nil && strings.TrimSpace(*p.ReceiptNo) == "" {
		p.ReceiptNo = nil
	}
}

func (p *PaymentInput) Validate() error {
	if p.PartyID <= 0 {
		return fmt.Errorf("%w: party_id must be a positive id, got %d", ErrInvalidPayment, p.PartyID)
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: amount cannot be negative, got %s", ErrInvalidPayment, p.Amount)
	}
	if p.Discount.IsNegative() {
		return fmt.Errorf("%w: discount cannot be negative, got %s", ErrInvalidPayment, p.Discount)
	}
	if !p.Amount.Add(p.Discount).IsPositive() {
		return fmt.Errorf("%w: amount plus discount must be greater than zero", ErrInvalidPayment)
	}
	if _, err := time.Parse(DateLayout, p.Date); err != nil {
		return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrInvalidPayment, p.Date)
	}
	return nil
}

func (w *WatakDraft) Normalize(now time.Time) {
	w.Date = strings.TrimSpace(w.Date)
	if w.Date == "" {
		w.Date = now.Format(DateLayout)
	}
	for i := range w.Items {
		w.Items[i].ItemName = strings.TrimSpace(w.Items[i].ItemName)
	}
}

// Validate rejects the first malformed item. A bad item fails the whole
// draft; it is never skipped.
func (w *WatakDraft) Validate() error {
	if w.VendorID <= 0 {
		return lineError(0, "vendor_id", "must be a positive id, got %d", w.VendorID)
	}
	if err := validateDate("date", w.Date); err != nil {
		return err
	}
	if len(w.Items) == 0 {
		return lineError(0, "items", "watak must have at least one item")
	}
	for i, item := range w.Items {
		n := i + 1
		if item.ItemName == "" {
			return lineError(n, "item_name", "is required")
		}
		if item.Quantity.IsNegative() {
			return lineError(n, "quantity", "cannot be negative, got %s", item.Quantity)
		}
		if item.Weight.IsNegative() {
			return lineError(n, "weight", "cannot be negative, got %s", item.Weight)
		}
		if item.Rate.IsNegative() {
			return lineError(n, "rate", "cannot be negative, got %s", item.Rate)
		}
	}
	if w.CommissionPercent != nil && w.CommissionPercent.IsNegative() {
		return lineError(0, "commission_percent", "cannot be negative, got %s", *w.CommissionPercent)
	}
	if w.LaborRate != nil && w.LaborRate.IsNegative() {
		return lineError(0, "labor_rate", "cannot be negative, got %s", *w.LaborRate)
	}
	charges := []struct {
		name  string
		value fmt.Stringer
		neg   bool
	}{
		{"vehicle_charges", w.VehicleCharges, w.VehicleCharges.IsNegative()},
		{"other_charges", w.OtherCharges, w.OtherCharges.IsNegative()},
		{"bardan", w.Bardan, w.Bardan.IsNegative()},
	}
	for _, c := range charges {
		if c.neg {
			return lineError(0, c.name, "cannot be negative, got %s", c.value)
		}
	}
	return nil
}

func validateDate(field, value string) error {
	if _, err := time.Parse(DateLayout, value); err != nil {
		return lineError(0, field, "invalid date %q, expected YYYY-MM-DD", value)
	}
	return nil
}
