// Package store holds the upstream user records read by the dashboard:
// profiles, gaming statistics, DeFi portfolios, transaction history and the
// activity log.
package store

import (
	"context"

	"github.com/lumeris/hub/internal/dashboard"
	"github.com/lumeris/hub/internal/domain"
)

// RecordStore is the durable record store behind the dashboard.
type RecordStore interface {
	dashboard.Source

	Close() error
	Ping(ctx context.Context) error

	SaveProfile(ctx context.Context, p *domain.Profile) error
	SaveGamingStats(ctx context.Context, st *domain.GamingStats) error
	SavePortfolio(ctx context.Context, p *domain.Portfolio) error
	SaveTransaction(ctx context.Context, userID string, tx *domain.Transaction) error
	LogActivity(ctx context.Context, a *domain.Activity) error
}

var (
	_ RecordStore = (*PostgresStore)(nil)
	_ RecordStore = (*MemoryStore)(nil)
)
