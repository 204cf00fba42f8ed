package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

// LineAmount prices a line by weight when a weight is given, otherwise by quantity.
func LineAmount(quantity, weight, rate decimal.Decimal) decimal.Decimal {
	if weight.IsPositive() {
		return weight.Mul(rate)
	}
	return quantity.Mul(rate)
}

// SettlementLine is one sold item in a watak.
type SettlementLine struct {
	ItemName string          `json:"item_name" jsonschema:"required"`
	Quantity decimal.Decimal `json:"quantity" jsonschema:"type=string"`
	Weight   decimal.Decimal `json:"weight" jsonschema:"type=string"`
	Rate     decimal.Decimal `json:"rate" jsonschema:"type=string"`
}

// SettlementParams are the vendor-level inputs of a settlement.
// LaborExemptItem is matched case-insensitively; empty exempts nothing.
type SettlementParams struct {
	CommissionPercent decimal.Decimal
	LaborRate         decimal.Decimal
	LaborExemptItem   string
	VehicleCharges    decimal.Decimal
	OtherCharges      decimal.Decimal
	Bardan            decimal.Decimal
}

type SettledLine struct {
	SettlementLine
	Amount decimal.Decimal `json:"amount"`
	Labor  decimal.Decimal `json:"labor"` // unfloored; only the total is floored
}

// Settlement is the computed watak. Every expense field is already floored.
type Settlement struct {
	Lines             []SettledLine   `json:"lines"`
	TotalGross        decimal.Decimal `json:"total_gross"`
	Commission        decimal.Decimal `json:"commission"`
	Labor             decimal.Decimal `json:"labor"`
	VehicleCharges    decimal.Decimal `json:"vehicle_charges"`
	OtherCharges      decimal.Decimal `json:"other_charges"`
	Bardan            decimal.Decimal `json:"bardan"`
	GoodsSaleProceeds decimal.Decimal `json:"goods_sale_proceeds"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	NetPayable        decimal.Decimal `json:"net_payable"`
}

// CalculateSettlement computes a watak. Each expense is floored on its own
// before the expenses are summed. Gross proceeds round half up to a whole unit.
func CalculateSettlement(lines []SettlementLine, p SettlementParams) (*Settlement, error) {
	s := &Settlement{Lines: make([]SettledLine, 0, len(lines))}
	exempt := strings.TrimSpace(p.LaborExemptItem)

	laborSum := decimal.Zero
	for _, l := range lines {
		sl := SettledLine{SettlementLine: l, Amount: LineAmount(l.Quantity, l.Weight, l.Rate), Labor: decimal.Zero}
		if exempt == "" || !strings.EqualFold(strings.TrimSpace(l.ItemName), exempt) {
			sl.Labor = l.Quantity.Mul(p.LaborRate)
		}
		s.TotalGross = s.TotalGross.Add(sl.Amount)
		laborSum = laborSum.Add(sl.Labor)
		s.Lines = append(s.Lines, sl)
	}
	if s.TotalGross.IsZero() {
		return nil, fmt.Errorf("%w: no line has a non-zero amount", ErrSettlementCalculation)
	}

	s.Commission = s.TotalGross.Mul(p.CommissionPercent).Div(hundred).Floor()
	s.Labor = laborSum.Floor()
	s.VehicleCharges = p.VehicleCharges.Floor()
	s.OtherCharges = p.OtherCharges.Floor()
	s.Bardan = p.Bardan.Floor()

	s.GoodsSaleProceeds = roundHalfUp(s.TotalGross)
	s.TotalExpenses = s.Commission.Add(s.Labor).Add(s.VehicleCharges).Add(s.OtherCharges).Add(s.Bardan)
	s.NetPayable = s.GoodsSaleProceeds.Sub(s.TotalExpenses).Floor()
	return s, nil
}

// roundHalfUp rounds to a whole unit, .5 and above going up.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Add(half).Floor()
}
