package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"OTCOfframp/internal/models"
	"OTCOfframp/internal/store"
)

func setupStore(t *testing.T) (*store.Store, *pgxpool.Pool) {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)

	applyMigrations(t, pool)
	resetDB(t, pool)

	return store.New(pool), pool
}

func applyMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, file := range findMigrations(t) {
		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read migration: %v", err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			t.Fatalf("apply migration %s: %v", file, err)
		}
	}
}

func findMigrations(t *testing.T) []string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := wd
	for i := 0; i < 6; i++ {
		pattern := filepath.Join(dir, "migrations", "*.sql")
		files, _ := filepath.Glob(pattern)
		if len(files) > 0 {
			return files
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	t.Fatalf("migrations not found from %s", wd)
	return nil
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, "TRUNCATE orders, otc_listings"); err != nil {
		t.Fatalf("reset db: %v", err)
	}
}

func newOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		OrderID:         uuid.NewString(),
		TokenSymbol:     "NENO",
		AmountTokens:    decimal.RequireFromString("1000"),
		PriceEUR:        decimal.RequireFromString("5000"),
		AmountEUR:       decimal.RequireFromString("5000000.00"),
		IBAN:            "DE89370400440532013000",
		BeneficiaryName: "Mario Rossi",
		Status:          status,
	}
}

func TestUpsertListingLastWriteWins(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	first := &models.Listing{
		TokenSymbol:     "NENO",
		PriceEUR:        decimal.RequireFromString("5000"),
		AvailableAmount: decimal.RequireFromString("1000000"),
	}
	if _, err := st.UpsertListing(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := &models.Listing{
		TokenSymbol:     "NENO",
		PriceEUR:        decimal.RequireFromString("4500"),
		AvailableAmount: decimal.RequireFromString("2000"),
	}
	if _, err := st.UpsertListing(ctx, second); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}

	got, err := st.GetListing(ctx, "NENO")
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if !got.PriceEUR.Equal(second.PriceEUR) || !got.AvailableAmount.Equal(second.AvailableAmount) {
		t.Fatalf("expected overwrite, got price=%s available=%s", got.PriceEUR, got.AvailableAmount)
	}
}

func TestGetListingNotFound(t *testing.T) {
	st, _ := setupStore(t)

	if _, err := st.GetListing(context.Background(), "MISSING"); !errors.Is(err, store.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	order := newOrder(models.OrderQuoted)
	if err := st.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := st.GetOrder(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != models.OrderQuoted || !got.AmountEUR.Equal(order.AmountEUR) {
		t.Fatalf("unexpected order %+v", got)
	}
	if got.ExternalPayoutID != nil {
		t.Fatalf("expected no payout id on fresh order")
	}

	if _, err := st.GetOrder(ctx, uuid.NewString()); !errors.Is(err, store.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestTransitionOrderLifecycle(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	order := newOrder(models.OrderQuoted)
	if err := st.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	payoutID := "np_abc123"
	pending, err := st.TransitionOrder(ctx, order.OrderID, models.OrderPayoutPending, &payoutID)
	if err != nil {
		t.Fatalf("transition to payout_pending: %v", err)
	}
	if pending.Status != models.OrderPayoutPending || pending.ExternalPayoutID == nil || *pending.ExternalPayoutID != payoutID {
		t.Fatalf("unexpected order after trigger: %+v", pending)
	}

	byPayout, err := st.GetOrderByPayoutID(ctx, payoutID)
	if err != nil || byPayout.OrderID != order.OrderID {
		t.Fatalf("lookup by payout id failed: %v", err)
	}

	done, err := st.TransitionOrder(ctx, order.OrderID, models.OrderCompleted, &payoutID)
	if err != nil {
		t.Fatalf("transition to completed: %v", err)
	}
	if done.Status != models.OrderCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
}

func TestTransitionIdempotentRepeat(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	order := newOrder(models.OrderQuoted)
	if err := st.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	payoutID := "np_abc123"
	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderPayoutPending, &payoutID); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	// Identical repeat is a no-op, not an error.
	repeat, err := st.TransitionOrder(ctx, order.OrderID, models.OrderPayoutPending, &payoutID)
	if err != nil {
		t.Fatalf("idempotent repeat: %v", err)
	}
	if repeat.Status != models.OrderPayoutPending {
		t.Fatalf("expected payout_pending, got %s", repeat.Status)
	}

	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderCompleted, &payoutID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	again, err := st.TransitionOrder(ctx, order.OrderID, models.OrderCompleted, &payoutID)
	if err != nil {
		t.Fatalf("terminal redelivery: %v", err)
	}
	if again.Status != models.OrderCompleted {
		t.Fatalf("expected completed, got %s", again.Status)
	}
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	order := newOrder(models.OrderQuoted)
	if err := st.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	// quoted cannot jump straight to a webhook outcome.
	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderCompleted, nil); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	payoutID := "np_abc123"
	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderPayoutPending, &payoutID); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	// payout id is write-once.
	other := "np_other"
	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderPayoutPending, &other); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for payout id overwrite, got %v", err)
	}
	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderCompleted, &other); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for mismatched payout id, got %v", err)
	}

	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderFailed, &payoutID); err != nil {
		t.Fatalf("fail: %v", err)
	}

	// No exit from a terminal state, conflicting outcome included.
	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderCompleted, &payoutID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition out of failed, got %v", err)
	}
	if _, err := st.TransitionOrder(ctx, order.OrderID, models.OrderCancelled, nil); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for cancel of failed, got %v", err)
	}

	got, err := st.GetOrder(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != models.OrderFailed {
		t.Fatalf("failed transitions must not corrupt state, got %s", got.Status)
	}
}

func TestTransitionUnknownOrder(t *testing.T) {
	st, _ := setupStore(t)

	if _, err := st.TransitionOrder(context.Background(), uuid.NewString(), models.OrderCancelled, nil); !errors.Is(err, store.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
