package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Failures surfaced to callers. Typed errors below wrap these so callers can
// branch with errors.Is and still read the detail with errors.As.
var (
	// ErrInvalidLineItem is returned for malformed draft input, before any side effect.
	ErrInvalidLineItem = errors.New("invalid line item")

	// ErrInsufficientStock is returned when a batch (or an item/vendor scope) cannot cover a request.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConcurrentModification is returned when lock contention outlasted the retry budget.
	// The whole operation may be retried.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrPartyNotFound = errors.New("party not found")

	// ErrSettlementCalculation is returned when a settlement has no line with a non-zero amount.
	ErrSettlementCalculation = errors.New("settlement calculation failed")

	ErrItemNotFound    = errors.New("item not found")
	ErrBatchNotFound   = errors.New("batch not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrWatakNotFound   = errors.New("watak not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrInvalidPayment  = errors.New("invalid payment")
	ErrInvalidBatch    = errors.New("invalid batch")
	ErrRoleMismatch    = errors.New("party role does not allow this document")
)

// LineItemError identifies the offending line (1-based) and field.
type LineItemError struct {
	Line   int
	Field  string
	Reason string
}

func (e *LineItemError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *LineItemError) Unwrap() error {
	return ErrInvalidLineItem
}

func lineError(line int, field, format string, args ...any) error {
	return &LineItemError{Line: line, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientStockError reports the scope that ran short. BatchID is set for
// explicit-batch allocations, VendorID for vendor-scoped FIFO allocations.
type InsufficientStockError struct {
	Line      int
	ItemID    int
	VendorID  *int
	BatchID   *int
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	scope := fmt.Sprintf("item %d", e.ItemID)
	if e.BatchID != nil {
		scope = fmt.Sprintf("batch %d (item %d)", *e.BatchID, e.ItemID)
	} else if e.VendorID != nil {
		scope = fmt.Sprintf("item %d from vendor %d", e.ItemID, *e.VendorID)
	}
	prefix := ""
	if e.Line > 0 {
		prefix = fmt.Sprintf("line %d: ", e.Line)
	}
	return fmt.Sprintf("%sinsufficient stock for %s: requested %s, available %s, short by %s",
		prefix, scope, e.Requested, e.Available, e.Shortfall())
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ConcurrencyError is returned by RunInTx once every attempt failed on a
// retryable lock, deadlock or serialization error.
type ConcurrencyError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last database error.
func (e *ConcurrencyError) Unwrap() []error {
	return []error{ErrConcurrentModification, e.Err}
}
