package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Counter keys. Each key is an independent gapless series.
const (
	CounterInvoice = "invoice"
	CounterWatak   = "watak"
)

var counterPrefixes = map[string]string{
	CounterInvoice: "INV",
	CounterWatak:   "WTK",
}

// SequenceService issues document numbers.
type SequenceService interface {
	// NextTx increments the counter inside the caller's transaction. The counter
	// row stays locked until that transaction ends, so a concurrent caller waits
	// (bounded by lock_timeout) and then sees the committed value. A rollback
	// releases the number, leaving no gap.
	NextTx(ctx context.Context, tx pgx.Tx, key string) (int64, error)
	// Peek returns the last issued number without reserving anything. It is for
	// display only; never insert a document with Peek()+1.
	Peek(ctx context.Context, key string) (int64, error)
}

type sequenceService struct {
	pool *pgxpool.Pool
}

func NewSequenceService(pool *pgxpool.Pool) SequenceService {
	return &sequenceService{pool: pool}
}

func (s *sequenceService) NextTx(ctx context.Context, tx pgx.Tx, key string) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("counter key is required")
	}
	var n int64
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sequences (counter_key, last_number)
		VALUES ($1, 1)
		ON CONFLICT (counter_key)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to generate gapless sequence number for %q: %w", key, err)
	}
	return n, nil
}

func (s *sequenceService) Peek(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT last_number FROM document_sequences WHERE counter_key = $1", key).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read sequence %q: %w", key, err)
	}
	return n, nil
}

// FormatNumber renders n for display, e.g. INV-00042. Unknown keys use the
// upper-cased key as prefix.
func FormatNumber(key string, n int64) string {
	prefix, ok := counterPrefixes[key]
	if !ok {
		prefix = strings.ToUpper(key)
	}
	return fmt.Sprintf("%s-%05d", prefix, n)
}
