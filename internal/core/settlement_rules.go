package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SettlementDefaults are the configured fallbacks used when neither a watak
// draft nor a settlement rule supplies a parameter.
type SettlementDefaults struct {
	CommissionPercent decimal.Decimal
	LaborRate         decimal.Decimal
	LaborExemptItem   string
}

// SettlementRule is a row of settlement_rules. A nil VendorID applies to every vendor.
type SettlementRule struct {
	ID                int             `json:"id"`
	VendorID          *int            `json:"vendor_id,omitempty"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	LaborRate         decimal.Decimal `json:"labor_rate"`
	LaborExemptItem   string          `json:"labor_exempt_item"`
	Priority          int             `json:"priority"`
	EffectiveTo       *string         `json:"effective_to,omitempty"`
}

// SettlementRules resolves commission and labor parameters from the
// settlement_rules table, replacing hardcoded rates in the watak service.
type SettlementRules interface {
	CreateRule(ctx context.Context, rule SettlementRule) (*SettlementRule, error)
	// ResolveRule returns the rule in force for vendorID on date: vendor-specific
	// rules outrank global ones, then highest priority wins. nil when none applies.
	ResolveRule(ctx context.Context, q pgxQuerier, vendorID int, date string) (*SettlementRule, error)
	// ResolveParams fills the draft's unset parameters from the rule in force,
	// then from defaults.
	ResolveParams(ctx context.Context, q pgxQuerier, draft WatakDraft) (SettlementParams, error)
}

type settlementRules struct {
	pool     *pgxpool.Pool
	defaults SettlementDefaults
}

func NewSettlementRules(pool *pgxpool.Pool, defaults SettlementDefaults) SettlementRules {
	return &settlementRules{pool: pool, defaults: defaults}
}

func (r *settlementRules) CreateRule(ctx context.Context, rule SettlementRule) (*SettlementRule, error) {
	if rule.CommissionPercent.IsNegative() || rule.LaborRate.IsNegative() {
		return nil, fmt.Errorf("settlement rule rates cannot be negative")
	}
	if rule.VendorID != nil {
		vendor, err := getPartyWith(ctx, r.pool, *rule.VendorID)
		if err != nil {
			return nil, err
		}
		if vendor.Role != RoleVendor {
			return nil, fmt.Errorf("%w: party %d is not a vendor", ErrRoleMismatch, vendor.ID)
		}
	}
	out := rule
	err := r.pool.QueryRow(ctx, `
		INSERT INTO settlement_rules (vendor_id, commission_percent, labor_rate, labor_exempt_item, priority, effective_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, rule.VendorID, rule.CommissionPercent, rule.LaborRate, strings.TrimSpace(rule.LaborExemptItem), rule.Priority, rule.EffectiveTo).Scan(&out.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement rule: %w", err)
	}
	return &out, nil
}

func (r *settlementRules) ResolveRule(ctx context.Context, q pgxQuerier, vendorID int, date string) (*SettlementRule, error) {
	if q == nil {
		q = r.pool
	}
	var rule SettlementRule
	err := q.QueryRow(ctx, `
		SELECT id, vendor_id, commission_percent, labor_rate, labor_exempt_item, priority, effective_to::text
		FROM settlement_rules
		WHERE (vendor_id = $1 OR vendor_id IS NULL)
		  AND (effective_to IS NULL OR effective_to >= $2::date)
		ORDER BY (vendor_id IS NULL), priority DESC, id DESC
		LIMIT 1
	`, vendorID, date).Scan(&rule.ID, &rule.VendorID, &rule.CommissionPercent, &rule.LaborRate,
		&rule.LaborExemptItem, &rule.Priority, &rule.EffectiveTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve settlement rule (vendor_id=%d, date=%s): %w", vendorID, date, err)
	}
	return &rule, nil
}

func (r *settlementRules) ResolveParams(ctx context.Context, q pgxQuerier, draft WatakDraft) (SettlementParams, error) {
	p := SettlementParams{
		CommissionPercent: r.defaults.CommissionPercent,
		LaborRate:         r.defaults.LaborRate,
		LaborExemptItem:   r.defaults.LaborExemptItem,
		VehicleCharges:    draft.VehicleCharges,
		OtherCharges:      draft.OtherCharges,
		Bardan:            draft.Bardan,
	}

	if draft.CommissionPercent == nil || draft.LaborRate == nil || draft.LaborExemptItem == nil {
		rule, err := r.ResolveRule(ctx, q, draft.VendorID, draft.Date)
		if err != nil {
			return SettlementParams{}, err
		}
		if rule != nil {
			p.CommissionPercent = rule.CommissionPercent
			p.LaborRate = rule.LaborRate
			p.LaborExemptItem = rule.LaborExemptItem
		}
	}

	if draft.CommissionPercent != nil {
		p.CommissionPercent = *draft.CommissionPercent
	}
	if draft.LaborRate != nil {
		p.LaborRate = *draft.LaborRate
	}
	if draft.LaborExemptItem != nil {
		p.LaborExemptItem = *draft.LaborExemptItem
	}
	return p, nil
}
