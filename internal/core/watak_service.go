package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

// WatakService issues commission settlements to vendors. The settlement,
// its number and the vendor balance move commit together.
type WatakService interface {
	CreateWatak(ctx context.Context, draft WatakDraft) (*Watak, error)
	DeleteWatak(ctx context.Context, watakID int) error
	GetWatak(ctx context.Context, watakID int) (*Watak, error)
	ListWataks(ctx context.Context, vendorID int) ([]Watak, error)
	// PreviewWatak computes the settlement for draft without persisting anything.
	PreviewWatak(ctx context.Context, draft WatakDraft) (*Settlement, error)
	// DraftWatakFromSales builds a draft from the customer sales made on date
	// out of vendorID's batches, grouped by item and rate.
	DraftWatakFromSales(ctx context.Context, vendorID int, date string) (*WatakDraft, error)
}

type watakService struct {
	runner    *TxRunner
	sequences SequenceService
	rules     SettlementRules
	log       zerolog.Logger
	now       func() time.Time
}

func NewWatakService(runner *TxRunner, sequences SequenceService, rules SettlementRules) WatakService {
	return &watakService{
		runner:    runner,
		sequences: sequences,
		rules:     rules,
		log:       logger.WithComponent("watak"),
		now:       time.Now,
	}
}

func (s *watakService) CreateWatak(ctx context.Context, draft WatakDraft) (*Watak, error) {
	draft.Normalize(s.now())
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var watakID int
	var settlement *Settlement
	err := s.runner.RunInTx(ctx, "create_watak", func(tx pgx.Tx) error {
		if err := requireVendor(ctx, tx, draft.VendorID); err != nil {
			return err
		}
		params, err := s.rules.ResolveParams(ctx, tx, draft)
		if err != nil {
			return err
		}
		settlement, err = CalculateSettlement(draft.Items, params)
		if err != nil {
			return err
		}

		number, err := s.sequences.NextTx(ctx, tx, CounterWatak)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO wataks (vendor_id, number, watak_date, total_amount, total_commission, total_labor,
			                    vehicle_charges, other_charges, bardan, net_payable)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`, draft.VendorID, number, draft.Date, settlement.TotalGross, settlement.Commission, settlement.Labor,
			settlement.VehicleCharges, settlement.OtherCharges, settlement.Bardan, settlement.NetPayable,
		).Scan(&watakID)
		if err != nil {
			return fmt.Errorf("failed to insert watak header: %w", err)
		}

		for i, line := range settlement.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO watak_items (watak_id, item_name, quantity, weight, rate, commission_percent, labor, amount)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, watakID, line.ItemName, line.Quantity, line.Weight, line.Rate, params.CommissionPercent, line.Labor, line.Amount); err != nil {
				return fmt.Errorf("item %d: failed to insert watak item: %w", i+1, err)
			}
		}

		_, err = applyBalanceDeltaTx(ctx, tx, draft.VendorID, settlement.NetPayable)
		return err
	})
	if err != nil {
		return nil, err
	}

	w, err := s.GetWatak(ctx, watakID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("watak_id", w.ID).Str("number", w.DisplayNumber).Int("vendor_id", w.VendorID).
		Str("gross", settlement.TotalGross.String()).Str("net_payable", w.NetPayable.String()).Msg("watak created")
	return w, nil
}

func (s *watakService) DeleteWatak(ctx context.Context, watakID int) error {
	err := s.runner.RunInTx(ctx, "delete_watak", func(tx pgx.Tx) error {
		var vendorID int
		var net decimal.Decimal
		err := tx.QueryRow(ctx, "DELETE FROM wataks WHERE id = $1 RETURNING vendor_id, net_payable", watakID).Scan(&vendorID, &net)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrWatakNotFound, watakID)
			}
			return fmt.Errorf("failed to delete watak: %w", err)
		}
		_, err = applyBalanceDeltaTx(ctx, tx, vendorID, net.Neg())
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Int("watak_id", watakID).Msg("watak deleted")
	return nil
}

func (s *watakService) PreviewWatak(ctx context.Context, draft WatakDraft) (*Settlement, error) {
	draft.Normalize(s.now())
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	params, err := s.rules.ResolveParams(ctx, s.runner.Pool(), draft)
	if err != nil {
		return nil, err
	}
	return CalculateSettlement(draft.Items, params)
}

func (s *watakService) GetWatak(ctx context.Context, watakID int) (*Watak, error) {
	q := s.runner.Pool()
	var w Watak
	err := q.QueryRow(ctx, `
		SELECT `+watakHeaderColumns+`
		FROM wataks w
		JOIN parties p ON p.id = w.vendor_id
		WHERE w.id = $1
	`, watakID).Scan(watakHeaderDest(&w)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrWatakNotFound, watakID)
		}
		return nil, fmt.Errorf("failed to fetch watak: %w", err)
	}
	w.DisplayNumber = FormatNumber(CounterWatak, w.Number)

	rows, err := q.Query(ctx, `
		SELECT id, watak_id, item_name, quantity, weight, rate, commission_percent, labor, amount
		FROM watak_items
		WHERE watak_id = $1
		ORDER BY id
	`, watakID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watak items: %w", err)
	}
	w.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (WatakItem, error) {
		var it WatakItem
		err := row.Scan(&it.ID, &it.WatakID, &it.ItemName, &it.Quantity, &it.Weight, &it.Rate,
			&it.CommissionPercent, &it.Labor, &it.Amount)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read watak items: %w", err)
	}
	return &w, nil
}

func (s *watakService) ListWataks(ctx context.Context, vendorID int) ([]Watak, error) {
	rows, err := s.runner.Pool().Query(ctx, `
		SELECT `+watakHeaderColumns+`
		FROM wataks w
		JOIN parties p ON p.id = w.vendor_id
		WHERE w.vendor_id = $1
		ORDER BY w.watak_date, w.id
	`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wataks: %w", err)
	}
	defer rows.Close()

	var wataks []Watak
	for rows.Next() {
		var w Watak
		if err := rows.Scan(watakHeaderDest(&w)...); err != nil {
			return nil, fmt.Errorf("failed to scan watak: %w", err)
		}
		w.DisplayNumber = FormatNumber(CounterWatak, w.Number)
		wataks = append(wataks, w)
	}
	return wataks, rows.Err()
}

func (s *watakService) DraftWatakFromSales(ctx context.Context, vendorID int, date string) (*WatakDraft, error) {
	if err := validateDate("date", date); err != nil {
		return nil, err
	}
	if err := requireVendor(ctx, s.runner.Pool(), vendorID); err != nil {
		return nil, err
	}

	// Weight is apportioned to each batch by its share of the line quantity,
	// rounded to 3 places; the line's last allocation takes the remainder so
	// the shares add back up to the line weight exactly. Weight-only lines
	// have no allocation rows and are attributed through the line's own batch.
	rows, err := s.runner.Pool().Query(ctx, `
		SELECT it.name, l.rate, SUM(x.quantity), SUM(x.weight)
		FROM (
			SELECT line_id, quantity, weight
			FROM (
				SELECT a.line_id,
				       a.quantity,
				       b.vendor_id,
				       CASE
				           WHEN ROW_NUMBER() OVER (PARTITION BY a.line_id ORDER BY a.id DESC) = 1
				           THEN l.weight - COALESCE(SUM(ROUND(l.weight * a.quantity / l.quantity, 3)) OVER (
				                    PARTITION BY a.line_id ORDER BY a.id
				                    ROWS BETWEEN UNBOUNDED PRECEDING AND 1 PRECEDING), 0)
				           ELSE ROUND(l.weight * a.quantity / l.quantity, 3)
				       END AS weight
				FROM invoice_line_allocations a
				JOIN invoice_lines l ON l.id = a.line_id
				JOIN inventory_batches b ON b.id = a.batch_id
				JOIN invoices i ON i.id = l.invoice_id
				WHERE l.quantity > 0 AND i.invoice_date = $2::date
			) shares
			WHERE vendor_id = $1
			UNION ALL
			SELECT l.id, 0, l.weight
			FROM invoice_lines l
			JOIN inventory_batches b ON b.id = l.batch_id
			WHERE b.vendor_id = $1 AND l.quantity = 0
		) x
		JOIN invoice_lines l ON l.id = x.line_id
		JOIN invoices i      ON i.id = l.invoice_id
		JOIN parties c       ON c.id = i.party_id
		JOIN items it        ON it.id = l.item_id
		WHERE i.invoice_date = $2::date
		  AND c.role = 'customer'
		GROUP BY it.name, l.rate, (l.weight > 0)
		ORDER BY it.name, l.rate
	`, vendorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales for watak: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SettlementLine, error) {
		var l SettlementLine
		err := row.Scan(&l.ItemName, &l.Rate, &l.Quantity, &l.Weight)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read aggregated sales: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no sales from vendor %d on %s", ErrSettlementCalculation, vendorID, date)
	}

	return &WatakDraft{
		VendorID:       vendorID,
		Date:           date,
		Items:          items,
		VehicleCharges: decimal.Zero,
		OtherCharges:   decimal.Zero,
		Bardan:         decimal.Zero,
	}, nil
}

const watakHeaderColumns = `w.id, w.vendor_id, p.name, w.number, w.watak_date::text, w.total_amount, w.total_commission,
	w.total_labor, w.vehicle_charges, w.other_charges, w.bardan, w.net_payable, w.created_at`

func watakHeaderDest(w *Watak) []any {
	return []any{&w.ID, &w.VendorID, &w.VendorName, &w.Number, &w.Date, &w.TotalAmount, &w.TotalCommission,
		&w.TotalLabor, &w.VehicleCharges, &w.OtherCharges, &w.Bardan, &w.NetPayable, &w.CreatedAt}
}

func requireVendor(ctx context.Context, q pgxQuerier, partyID int) error {
	party, err := getPartyWith(ctx, q, partyID)
	if err != nil {
		return err
	}
	if party.Role != RoleVendor {
		return fmt.Errorf("%w: party %d is a %s, wataks are issued to vendors", ErrRoleMismatch, partyID, party.Role)
	}
	return nil
}
