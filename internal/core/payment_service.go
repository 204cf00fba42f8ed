package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

// PaymentService appends payments. A payment and its balance effect of
// -(amount+discount) always commit together.
type PaymentService interface {
	RecordPayment(ctx context.Context, input PaymentInput) (*Payment, error)
	// DeletePayment removes a payment and restores the balance it settled.
	DeletePayment(ctx context.Context, paymentID int) error
	GetPayment(ctx context.Context, paymentID int) (*Payment, error)
	ListPayments(ctx context.Context, partyID int) ([]Payment, error)
}

type paymentService struct {
	runner *TxRunner
	log    zerolog.Logger
	now    func() time.Time
}

func NewPaymentService(runner *TxRunner) PaymentService {
	return &paymentService{runner: runner, log: logger.WithComponent("payment"), now: time.Now}
}

func (s *paymentService) RecordPayment(ctx context.Context, input PaymentInput) (*Payment, error) {
	input.Normalize(s.now())
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var p Payment
	err := s.runner.RunInTx(ctx, "record_payment", func(tx pgx.Tx) error {
		if _, err := getPartyWith(ctx, tx, input.PartyID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO payments (party_id, amount, discount, mode, payment_date, receipt_no)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+paymentColumns,
			input.PartyID, input.Amount, input.Discount, input.Mode, input.Date, input.ReceiptNo,
		).Scan(paymentDest(&p)...)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		_, err = applyBalanceDeltaTx(ctx, tx, p.PartyID, p.Settled().Neg())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("payment_id", p.ID).Int("party_id", p.PartyID).
		Str("amount", p.Amount.String()).Str("discount", p.Discount.String()).Msg("payment recorded")
	return &p, nil
}

func (s *paymentService) DeletePayment(ctx context.Context, paymentID int) error {
	var p Payment
	err := s.runner.RunInTx(ctx, "delete_payment", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, "DELETE FROM payments WHERE id = $1 RETURNING "+paymentColumns, paymentID).Scan(paymentDest(&p)...)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrPaymentNotFound, paymentID)
			}
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		_, err = applyBalanceDeltaTx(ctx, tx, p.PartyID, p.Settled())
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Int("payment_id", paymentID).Int("party_id", p.PartyID).Msg("payment deleted")
	return nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID int) (*Payment, error) {
	var p Payment
	err := s.runner.Pool().QueryRow(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", paymentID).Scan(paymentDest(&p)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	return &p, nil
}

func (s *paymentService) ListPayments(ctx context.Context, partyID int) ([]Payment, error) {
	rows, err := s.runner.Pool().Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE party_id = $1
		ORDER BY payment_date, id
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(paymentDest(&p)...); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const paymentColumns = "id, party_id, amount, discount, mode, payment_date::text, receipt_no, created_at"

func paymentDest(p *Payment) []any {
	return []any{&p.ID, &p.PartyID, &p.Amount, &p.Discount, &p.Mode, &p.Date, &p.ReceiptNo, &p.CreatedAt}
}
