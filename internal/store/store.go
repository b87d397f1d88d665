package store

import (
	"context"
	"database/sql"
	"errors"

	"OTCOfframp/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) UpsertListing(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO otc_listings (token_symbol, price_eur, available_amount, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (token_symbol) DO UPDATE SET
			price_eur=EXCLUDED.price_eur,
			available_amount=EXCLUDED.available_amount,
			updated_at=now()
		RETURNING token_symbol, price_eur, available_amount, updated_at
	`, listing.TokenSymbol, listing.PriceEUR, listing.AvailableAmount)

	var out models.Listing
	if err := row.Scan(&out.TokenSymbol, &out.PriceEUR, &out.AvailableAmount, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetListing(ctx context.Context, tokenSymbol string) (*models.Listing, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT token_symbol, price_eur, available_amount, updated_at
		FROM otc_listings WHERE token_symbol=$1
	`, tokenSymbol)

	var listing models.Listing
	err := row.Scan(&listing.TokenSymbol, &listing.PriceEUR, &listing.AvailableAmount, &listing.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (s *Store) ListListings(ctx context.Context) ([]*models.Listing, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT token_symbol, price_eur, available_amount, updated_at
		FROM otc_listings ORDER BY token_symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		var listing models.Listing
		if err := rows.Scan(&listing.TokenSymbol, &listing.PriceEUR, &listing.AvailableAmount, &listing.UpdatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, &listing)
	}
	return listings, rows.Err()
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, token_symbol, amount_tokens, price_eur, amount_eur,
			iban, beneficiary_name, redirect_url, status, external_payout_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.OrderID,
		order.TokenSymbol,
		order.AmountTokens,
		order.PriceEUR,
		order.AmountEUR,
		order.IBAN,
		order.BeneficiaryName,
		order.RedirectURL,
		order.Status,
		order.ExternalPayoutID,
	)
	return err
}

const orderColumns = `
	order_id, token_symbol, amount_tokens, price_eur, amount_eur,
	iban, beneficiary_name, redirect_url, status, external_payout_id,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var payoutID sql.NullString
	err := row.Scan(
		&order.OrderID,
		&order.TokenSymbol,
		&order.AmountTokens,
		&order.PriceEUR,
		&order.AmountEUR,
		&order.IBAN,
		&order.BeneficiaryName,
		&order.RedirectURL,
		&order.Status,
		&payoutID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if payoutID.Valid {
		order.ExternalPayoutID = &payoutID.String
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) GetOrderByPayoutID(ctx context.Context, payoutID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE external_payout_id=$1`, payoutID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `SELECT`+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// TransitionOrder applies one edge of the order state machine under a row
// lock, so the precondition check and the status write are a single unit.
// Re-requesting the current status with the same payout id is a no-op and
// returns the row unchanged; external_payout_id is write-once.
func (s *Store) TransitionOrder(ctx context.Context, orderID string, newStatus models.OrderStatus, externalPayoutID *string) (*models.Order, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE order_id=$1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if order.Status == newStatus {
		if !samePayoutID(order.ExternalPayoutID, externalPayoutID) {
			return nil, ErrInvalidTransition
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return order, nil
	}

	if !models.CanTransition(order.Status, newStatus) {
		return nil, ErrInvalidTransition
	}
	if externalPayoutID != nil && order.ExternalPayoutID != nil && *order.ExternalPayoutID != *externalPayoutID {
		return nil, ErrInvalidTransition
	}

	row = tx.QueryRow(ctx, `
		UPDATE orders
		SET status=$2, external_payout_id=COALESCE($3, external_payout_id), updated_at=now()
		WHERE order_id=$1
		RETURNING`+orderColumns+`
	`, orderID, newStatus, externalPayoutID)
	updated, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func samePayoutID(current, requested *string) bool {
	if requested == nil {
		return true
	}
	return current != nil && *current == *requested
}
