package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

// PartyService manages customers, vendors and items.
type PartyService interface {
	CreateParty(ctx context.Context, name string, role PartyRole) (*Party, error)
	GetParty(ctx context.Context, id int) (*Party, error)
	// ListParties returns parties ordered by name. An empty role lists both roles.
	ListParties(ctx context.Context, role PartyRole) ([]Party, error)

	CreateItem(ctx context.Context, name string) (*Item, error)
	GetItem(ctx context.Context, id int) (*Item, error)
	GetItemByName(ctx context.Context, name string) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
}

type partyService struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPartyService(pool *pgxpool.Pool) PartyService {
	return &partyService{pool: pool, log: logger.WithComponent("party")}
}

func (s *partyService) CreateParty(ctx context.Context, name string, role PartyRole) (*Party, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("party name is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid party role %q: must be customer or vendor", role)
	}

	var p Party
	err := s.pool.QueryRow(ctx, `
		INSERT INTO parties (name, role)
		VALUES ($1, $2)
		RETURNING `+partyColumns,
		name, string(role),
	).Scan(&p.ID, &p.Name, &p.Role, &p.CurrentBalance, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create party: %w", err)
	}
	s.log.Info().Int("party_id", p.ID).Str("role", string(role)).Msg("party created")
	return &p, nil
}

func (s *partyService) GetParty(ctx context.Context, id int) (*Party, error) {
	return getPartyWith(ctx, s.pool, id)
}

func (s *partyService) ListParties(ctx context.Context, role PartyRole) ([]Party, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+partyColumns+`
		FROM parties
		WHERE ($1 = '' OR role = $1)
		ORDER BY name, id
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.CurrentBalance, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (s *partyService) CreateItem(ctx context.Context, name string) (*Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	var it Item
	err := s.pool.QueryRow(ctx, "INSERT INTO items (name) VALUES ($1) RETURNING id, name", name).Scan(&it.ID, &it.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("item %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	s.log.Info().Int("item_id", it.ID).Str("name", it.Name).Msg("item created")
	return &it, nil
}

func (s *partyService) GetItem(ctx context.Context, id int) (*Item, error) {
	return getItemWith(ctx, s.pool, id)
}

func (s *partyService) GetItemByName(ctx context.Context, name string) (*Item, error) {
	var it Item
	err := s.pool.QueryRow(ctx, "SELECT id, name FROM items WHERE lower(name) = lower($1)", strings.TrimSpace(name)).Scan(&it.ID, &it.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrItemNotFound, name)
		}
		return nil, fmt.Errorf("failed to fetch item: %w", err)
	}
	return &it, nil
}

func (s *partyService) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM items ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ── shared helpers ────────────────────────────────────────────────────────────

const partyColumns = "id, name, role, current_balance, created_at"

func getPartyWith(ctx context.Context, q pgxQuerier, id int) (*Party, error) {
	var p Party
	err := q.QueryRow(ctx, "SELECT "+partyColumns+" FROM parties WHERE id = $1", id).
		Scan(&p.ID, &p.Name, &p.Role, &p.CurrentBalance, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrPartyNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch party: %w", err)
	}
	return &p, nil
}

func getItemWith(ctx context.Context, q pgxQuerier, id int) (*Item, error) {
	var it Item
	err := q.QueryRow(ctx, "SELECT id, name FROM items WHERE id = $1", id).Scan(&it.ID, &it.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch item: %w", err)
	}
	return &it, nil
}

// applyBalanceDeltaTx moves a party's balance by delta as a single atomic
// increment in the caller's transaction, and returns the new balance.
// The row lock it takes serialises concurrent postings for the same party.
func applyBalanceDeltaTx(ctx context.Context, tx pgx.Tx, partyID int, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE parties
		SET current_balance = current_balance + $2
		WHERE id = $1
		RETURNING current_balance
	`, partyID, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %d", ErrPartyNotFound, partyID)
		}
		return decimal.Zero, fmt.Errorf("failed to update party balance: %w", err)
	}
	return balance, nil
}
