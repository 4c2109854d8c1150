package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumeris/hub/internal/domain"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("LUMERIS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LUMERIS_TEST_POSTGRES_DSN not set, skipping")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres not available, skipping: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_Documents(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()

	if _, err := s.GetProfile(ctx, userID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SaveProfile(ctx, &domain.Profile{UserID: userID, Username: "neo", Level: 3}); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	if err := s.SaveProfile(ctx, &domain.Profile{UserID: userID, Username: "neo", Level: 4}); err != nil {
		t.Fatalf("SaveProfile upsert failed: %v", err)
	}
	p, err := s.GetProfile(ctx, userID)
	if err != nil || p.Level != 4 {
		t.Fatalf("GetProfile = %+v, %v", p, err)
	}

	if err := s.SavePortfolio(ctx, &domain.Portfolio{UserID: userID, TotalValue: 12.5}); err != nil {
		t.Fatalf("SavePortfolio failed: %v", err)
	}
	pf, err := s.GetPortfolio(ctx, userID)
	if err != nil || pf.TotalValue != 12.5 {
		t.Fatalf("GetPortfolio = %+v, %v", pf, err)
	}
}

func TestPostgresStore_History(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 3; i++ {
		tx := &domain.Transaction{Type: domain.TxStake, Amount: float64(i), Timestamp: now.Add(time.Duration(i) * time.Second)}
		if err := s.SaveTransaction(ctx, userID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}
	txs, err := s.RecentTransactions(ctx, userID, 2)
	if err != nil || len(txs) != 2 || txs[0].Amount != 2 {
		t.Fatalf("RecentTransactions = %+v, %v", txs, err)
	}

	old := &domain.Activity{UserID: userID, Category: "gaming", CreatedAt: now.Add(-10 * 24 * time.Hour)}
	fresh := &domain.Activity{UserID: userID, Category: "defi"}
	if err := s.LogActivity(ctx, old); err != nil {
		t.Fatalf("LogActivity failed: %v", err)
	}
	if err := s.LogActivity(ctx, fresh); err != nil {
		t.Fatalf("LogActivity failed: %v", err)
	}
	acts, err := s.RecentActivity(ctx, userID, now.Add(-7*24*time.Hour), 10)
	if err != nil || len(acts) != 1 || acts[0].ID != fresh.ID {
		t.Fatalf("RecentActivity = %+v, %v", acts, err)
	}
}
