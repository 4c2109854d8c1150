package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lumeris/hub/internal/store"
)

const sampleFixtures = `
users:
  - profile:
      userId: u-1
      username: orin
      level: 7
      rank: Gold
    gaming:
      gamesPlayed: 12
    portfolio:
      totalValue: 1500.5
    transactions:
      - transactionId: tx-1
        type: swap
        status: completed
        timestamp: "2026-10-01T10:00:00Z"
    activity:
      - type: gaming
        action: game_completed
        createdAt: "2026-10-02T10:00:00Z"
`

func TestParseFixturesUsesJSONFieldNames(t *testing.T) {
	f, err := parseFixtures([]byte(sampleFixtures))
	if err != nil {
		t.Fatalf("parseFixtures: %v", err)
	}
	if len(f.Users) != 1 {
		t.Fatalf("users = %d, want 1", len(f.Users))
	}
	u := f.Users[0]
	if u.Profile.UserID != "u-1" || u.Profile.Level != 7 || u.Profile.Rank != "Gold" {
		t.Fatalf("profile = %+v", u.Profile)
	}
	if u.Portfolio == nil || u.Portfolio.TotalValue != 1500.5 {
		t.Fatalf("portfolio = %+v", u.Portfolio)
	}
	if len(u.Transactions) != 1 || !u.Transactions[0].Timestamp.Equal(time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("transactions = %+v", u.Transactions)
	}
}

func TestLoadFixturesIntoMemoryStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(path, []byte(sampleFixtures), 0o644); err != nil {
		t.Fatalf("write fixtures: %v", err)
	}
	records := store.NewMemoryStore()
	ctx := context.Background()
	if err := loadFixtures(ctx, path, records); err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}

	p, err := records.GetProfile(ctx, "u-1")
	if err != nil || p.Username != "orin" {
		t.Fatalf("GetProfile = %+v, %v", p, err)
	}
	g, err := records.GetGamingStats(ctx, "u-1")
	if err != nil || g.UserID != "u-1" {
		t.Fatalf("GetGamingStats = %+v, %v", g, err)
	}
	acts, err := records.RecentActivity(ctx, "u-1", time.Time{}, 10)
	if err != nil || len(acts) != 1 || acts[0].UserID != "u-1" {
		t.Fatalf("RecentActivity = %+v, %v", acts, err)
	}
}
