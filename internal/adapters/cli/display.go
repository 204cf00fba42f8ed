package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/app"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

func rule(w io.Writer, ch string, n int) {
	fmt.Fprintln(w, strings.Repeat(ch, n))
}

func printParties(w io.Writer, parties []core.Party) {
	fmt.Fprintln(w)
	rule(w, "=", 72)
	fmt.Fprintf(w, "  %-6s %-30s %-9s %14s  %s\n", "ID", "NAME", "ROLE", "BALANCE", "STATUS")
	rule(w, "-", 72)
	if len(parties) == 0 {
		fmt.Fprintln(w, "  No parties found.")
	}
	for _, p := range parties {
		fmt.Fprintf(w, "  %-6d %-30s %-9s %14s  %s\n",
			p.ID, p.Name, p.Role, p.CurrentBalance.StringFixed(2), core.StatusFor(p.Role, p.CurrentBalance))
	}
	rule(w, "=", 72)
}

func printStock(w io.Writer, result *app.StockResult) {
	fmt.Fprintln(w)
	rule(w, "=", 66)
	fmt.Fprintf(w, "  STOCK: %s (item #%d)\n", result.Item.Name, result.Item.ID)
	rule(w, "=", 66)
	if len(result.Batches) == 0 {
		fmt.Fprintln(w, "  No stock on hand.")
		rule(w, "=", 66)
		return
	}
	fmt.Fprintf(w, "  %-8s %-8s %-12s %14s %14s\n", "BATCH", "VENDOR", "RECEIVED", "QTY RECEIVED", "REMAINING")
	rule(w, "-", 66)
	for _, b := range result.Batches {
		fmt.Fprintf(w, "  %-8d %-8d %-12s %14s %14s\n",
			b.ID, b.VendorID, b.DateReceived, b.QuantityReceived.String(), b.RemainingStock.String())
	}
	rule(w, "=", 66)
}

func printInvoice(w io.Writer, inv *core.Invoice) {
	fmt.Fprintln(w)
	rule(w, "=", 78)
	fmt.Fprintf(w, "  INVOICE %s   Party: %s (#%d)\n", inv.DisplayNumber, inv.PartyName, inv.PartyID)
	date := inv.Date
	if inv.DisplayDate != nil {
		date = fmt.Sprintf("%s (printed %s)", inv.Date, *inv.DisplayDate)
	}
	fmt.Fprintf(w, "  Date: %s\n", date)
	rule(w, "=", 78)
	fmt.Fprintf(w, "  %-3s %-20s %10s %10s %10s %14s  %s\n", "#", "ITEM", "QTY", "WEIGHT", "RATE", "AMOUNT", "BATCHES")
	rule(w, "-", 78)
	for _, l := range inv.Lines {
		var batches []string
		for _, a := range l.Allocations {
			batches = append(batches, fmt.Sprintf("%d:%s", a.BatchID, a.Quantity))
		}
		if len(batches) == 0 && l.BatchID != nil {
			batches = append(batches, fmt.Sprintf("%d", *l.BatchID))
		}
		fmt.Fprintf(w, "  %-3d %-20s %10s %10s %10s %14s  %s\n",
			l.LineNumber, l.ItemName, l.Quantity, l.Weight, l.Rate, l.Amount.StringFixed(2), strings.Join(batches, ","))
	}
	rule(w, "-", 78)
	fmt.Fprintf(w, "  %-57s %14s\n", "TOTAL", inv.TotalAmount.StringFixed(2))
	rule(w, "=", 78)
}

func printSettlement(w io.Writer, s *core.Settlement) {
	fmt.Fprintln(w)
	rule(w, "=", 70)
	fmt.Fprintf(w, "  %-20s %10s %10s %10s %14s\n", "ITEM", "QTY", "WEIGHT", "RATE", "AMOUNT")
	rule(w, "-", 70)
	for _, l := range s.Lines {
		fmt.Fprintf(w, "  %-20s %10s %10s %10s %14s\n", l.ItemName, l.Quantity, l.Weight, l.Rate, l.Amount.StringFixed(2))
	}
	rule(w, "-", 70)
	rows := []struct {
		label string
		value string
	}{
		{"Gross sales", s.TotalGross.StringFixed(2)},
		{"Goods sale proceeds", s.GoodsSaleProceeds.String()},
		{"Commission", s.Commission.String()},
		{"Labor", s.Labor.String()},
		{"Vehicle charges", s.VehicleCharges.String()},
		{"Other charges", s.OtherCharges.String()},
		{"Bardan", s.Bardan.String()},
		{"Total expenses", s.TotalExpenses.String()},
		{"NET PAYABLE", s.NetPayable.String()},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-52s %14s\n", r.label, r.value)
	}
	rule(w, "=", 70)
}

func printWatak(w io.Writer, wk *core.Watak) {
	fmt.Fprintln(w)
	rule(w, "=", 70)
	fmt.Fprintf(w, "  WATAK %s   Vendor: %s (#%d)   Date: %s\n", wk.DisplayNumber, wk.VendorName, wk.VendorID, wk.Date)
	rule(w, "=", 70)
	for _, it := range wk.Items {
		fmt.Fprintf(w, "  %-20s %10s %10s %10s %14s\n", it.ItemName, it.Quantity, it.Weight, it.Rate, it.Amount.StringFixed(2))
	}
	rule(w, "-", 70)
	fmt.Fprintf(w, "  %-52s %14s\n", "Gross sales", wk.TotalAmount.StringFixed(2))
	fmt.Fprintf(w, "  %-52s %14s\n", "Commission", wk.TotalCommission.String())
	fmt.Fprintf(w, "  %-52s %14s\n", "Labor", wk.TotalLabor.String())
	fmt.Fprintf(w, "  %-52s %14s\n", "Vehicle + other + bardan",
		wk.VehicleCharges.Add(wk.OtherCharges).Add(wk.Bardan).String())
	fmt.Fprintf(w, "  %-52s %14s\n", "NET PAYABLE", wk.NetPayable.String())
	rule(w, "=", 70)
}

func printLedger(w io.Writer, l *core.Ledger) {
	fmt.Fprintln(w)
	rule(w, "=", 96)
	fmt.Fprintf(w, "  LEDGER: %s (#%d, %s)\n", l.Party.Name, l.Party.ID, l.Party.Role)
	rule(w, "=", 96)
	fmt.Fprintf(w, "  %-10s %-32s %13s %13s %13s  %s\n", "DATE", "DESCRIPTION", "DEBIT", "CREDIT", "BALANCE", "STATUS")
	rule(w, "-", 96)
	fmt.Fprintf(w, "  %-10s %-32s %13s %13s %13s  %s\n", "", "Opening balance", "", "",
		l.OpeningBalance.StringFixed(2), core.StatusFor(l.Party.Role, l.OpeningBalance))
	for _, e := range l.Entries {
		fmt.Fprintf(w, "  %-10s %-32s %13s %13s %13s  %s\n",
			e.Date, truncate(e.Description, 32), blankZero(e.Debit.StringFixed(2)), blankZero(e.Credit.StringFixed(2)),
			e.RunningBalance.StringFixed(2), e.Status)
	}
	rule(w, "-", 96)
	fmt.Fprintf(w, "  %-10s %-32s %13s %13s %13s  %s\n", "", "Closing balance", "", "",
		l.ClosingBalance.StringFixed(2), l.Status)
	rule(w, "=", 96)
}

func printReconciliation(w io.Writer, r *core.Reconciliation) {
	state := "CONSISTENT"
	if !r.Consistent {
		state = "OUT OF BALANCE"
	}
	fmt.Fprintf(w, "Party #%d: %s\n", r.PartyID, state)
	fmt.Fprintf(w, "  stored balance   %s\n", r.StoredBalance.StringFixed(2))
	fmt.Fprintf(w, "  replayed balance %s over %d transactions\n", r.ReplayedBalance.StringFixed(2), r.Transactions)
	fmt.Fprintf(w, "  unexplained      %s\n", r.OpeningBalance.StringFixed(2))
}

func blankZero(s string) string {
	if s == "0.00" {
		return ""
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
