package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of every business date (DATE columns scanned as ::text).
const DateLayout = "2006-01-02"

type PartyRole string

const (
	RoleCustomer PartyRole = "customer"
	RoleVendor   PartyRole = "vendor"
)

func (r PartyRole) Valid() bool {
	return r == RoleCustomer || r == RoleVendor
}

// Party is a customer or vendor. CurrentBalance is the materialised sum of every
// posted document and payment; it is only ever changed in the same transaction
// that appends the causing record.
//
// For a customer a positive balance is a receivable, for a vendor a payable.
type Party struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Role           PartyRole       `json:"role"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// InventoryBatch is one vendor delivery of one item on one date.
// RemainingStock only decreases through allocation and only increases through
// the exact reversal of a recorded allocation.
type InventoryBatch struct {
	ID               int             `json:"id"`
	VendorID         int             `json:"vendor_id"`
	ItemID           int             `json:"item_id"`
	DateReceived     string          `json:"date_received"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	RemainingStock   decimal.Decimal `json:"remaining_stock"`
}

// Allocation records how much of one batch a line consumed.
type Allocation struct {
	BatchID  int             `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BatchDrift is a batch whose consumption is not fully explained by invoice
// allocations. Stock taken with the standalone allocator shows up here too.
type BatchDrift struct {
	BatchID   int             `json:"batch_id"`
	ItemID    int             `json:"item_id"`
	VendorID  int             `json:"vendor_id"`
	Received  decimal.Decimal `json:"received"`
	Remaining decimal.Decimal `json:"remaining"`
	Allocated decimal.Decimal `json:"allocated"`
}

// Unexplained is the consumed quantity no allocation row accounts for.
func (b BatchDrift) Unexplained() decimal.Decimal {
	return b.Received.Sub(b.Remaining).Sub(b.Allocated)
}

type Invoice struct {
	ID            int             `json:"id"`
	PartyID       int             `json:"party_id"`
	PartyName     string          `json:"party_name"` // joined from parties
	Number        int64           `json:"number"`
	DisplayNumber string          `json:"display_number"`
	Date          string          `json:"date"`
	DisplayDate   *string         `json:"display_date,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Lines         []InvoiceLine   `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
}

type InvoiceLine struct {
	ID          int             `json:"id"`
	InvoiceID   int             `json:"invoice_id"`
	LineNumber  int             `json:"line_number"`
	ItemID      int             `json:"item_id"`
	ItemName    string          `json:"item_name"` // joined from items
	BatchID     *int            `json:"batch_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Weight      decimal.Decimal `json:"weight"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	Allocations []Allocation    `json:"allocations"`
}

// DraftInvoice is the normalised shape produced by direct entry or by the
// OCR/mapping step upstream. Date defaults to today when empty.
type DraftInvoice struct {
	PartyID     int         `json:"party_id" jsonschema:"required" jsonschema_description:"ID of the customer or vendor the invoice is raised against"`
	Date        string      `json:"date,omitempty" jsonschema_description:"System date in YYYY-MM-DD format; today when omitted"`
	DisplayDate *string     `json:"display_date,omitempty" jsonschema_description:"Date printed on the document, YYYY-MM-DD"`
	Lines       []DraftLine `json:"lines" jsonschema:"required,minItems=1" jsonschema_description:"Line items in the order they are allocated"`
}

// DraftLine is one requested line. When BatchID is set the line is bound to
// that batch only; otherwise stock is taken FIFO from VendorID's batches of
// the item (or from every vendor's batches when VendorID is nil).
type DraftLine struct {
	ItemID   int             `json:"item_id" jsonschema:"required"`
	BatchID  *int            `json:"batch_id,omitempty" jsonschema_description:"Explicit batch; stock never spills into other batches"`
	VendorID *int            `json:"vendor_id,omitempty" jsonschema_description:"Restricts FIFO selection to one vendor's batches"`
	Quantity decimal.Decimal `json:"quantity" jsonschema:"type=string" jsonschema_description:"Units sold; drawn from batch stock"`
	Weight   decimal.Decimal `json:"weight" jsonschema:"type=string" jsonschema_description:"Weight sold; when > 0 the amount is weight x rate"`
	Rate     decimal.Decimal `json:"rate" jsonschema:"type=string" jsonschema_description:"Price per unit or per weight unit, must be > 0"`
}

type Payment struct {
	ID        int             `json:"id"`
	PartyID   int             `json:"party_id"`
	Amount    decimal.Decimal `json:"amount"`
	Discount  decimal.Decimal `json:"discount"`
	Mode      string          `json:"mode"`
	Date      string          `json:"date"`
	ReceiptNo *string         `json:"receipt_no,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Settled is the amount the payment removes from the party balance.
func (p Payment) Settled() decimal.Decimal {
	return p.Amount.Add(p.Discount)
}

// PaymentInput is a payment posting received from the excluded UI layer.
type PaymentInput struct {
	PartyID   int             `json:"party_id" jsonschema:"required"`
	Amount    decimal.Decimal `json:"amount" jsonschema:"type=string"`
	Discount  decimal.Decimal `json:"discount" jsonschema:"type=string"`
	Mode      string          `json:"mode,omitempty" jsonschema_description:"cash, bank, upi...; defaults to cash"`
	Date      string          `json:"date,omitempty" jsonschema_description:"YYYY-MM-DD; today when omitted"`
	ReceiptNo *string         `json:"receipt_no,omitempty"`
}

// Watak is a commission settlement document for a vendor's consigned goods.
type Watak struct {
	ID              int             `json:"id"`
	VendorID        int             `json:"vendor_id"`
	VendorName      string          `json:"vendor_name"`
	Number          int64           `json:"number"`
	DisplayNumber   string          `json:"display_number"`
	Date            string          `json:"date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalLabor      decimal.Decimal `json:"total_labor"`
	VehicleCharges  decimal.Decimal `json:"vehicle_charges"`
	OtherCharges    decimal.Decimal `json:"other_charges"`
	Bardan          decimal.Decimal `json:"bardan"`
	NetPayable      decimal.Decimal `json:"net_payable"`
	Items           []WatakItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
}

type WatakItem struct {
	ID                int             `json:"id"`
	WatakID           int             `json:"watak_id"`
	ItemName          string          `json:"item_name"`
	Quantity          decimal.Decimal `json:"quantity"`
	Weight            decimal.Decimal `json:"weight"`
	Rate              decimal.Decimal `json:"rate"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	Labor             decimal.Decimal `json:"labor"`
	Amount            decimal.Decimal `json:"amount"`
}

// WatakDraft is the input for CreateWatak. Nil settlement parameters are
// resolved from settlement rules and then from configured defaults.
type WatakDraft struct {
	VendorID          int              `json:"vendor_id" jsonschema:"required"`
	Date              string           `json:"date,omitempty" jsonschema_description:"YYYY-MM-DD; today when omitted"`
	Items             []SettlementLine `json:"items" jsonschema:"required,minItems=1"`
	CommissionPercent *decimal.Decimal `json:"commission_percent,omitempty" jsonschema:"type=string"`
	LaborRate         *decimal.Decimal `json:"labor_rate,omitempty" jsonschema:"type=string"`
	LaborExemptItem   *string          `json:"labor_exempt_item,omitempty"`
	VehicleCharges    decimal.Decimal  `json:"vehicle_charges" jsonschema:"type=string"`
	OtherCharges      decimal.Decimal  `json:"other_charges" jsonschema:"type=string"`
	Bardan            decimal.Decimal  `json:"bardan" jsonschema:"type=string"`
}
