package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lumeris/hub/internal/domain"
)

// documentTables are the per-user JSONB document tables.
const (
	tableProfiles   = "user_profiles"
	tableGaming     = "gaming_stats"
	tablePortfolios = "defi_portfolios"
)

func (s *PostgresStore) getDocument(ctx context.Context, table, userID string, out any) error {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM `+table+` WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", table, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) putDocument(ctx context.Context, table, userID string, doc any) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+table+` (user_id, data, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, userID, data)
	if err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := s.getDocument(ctx, tableProfiles, userID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p *domain.Profile) error {
	return s.putDocument(ctx, tableProfiles, p.UserID, p)
}

func (s *PostgresStore) GetGamingStats(ctx context.Context, userID string) (*domain.GamingStats, error) {
	var st domain.GamingStats
	if err := s.getDocument(ctx, tableGaming, userID, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) SaveGamingStats(ctx context.Context, st *domain.GamingStats) error {
	return s.putDocument(ctx, tableGaming, st.UserID, st)
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, userID string) (*domain.Portfolio, error) {
	var p domain.Portfolio
	if err := s.getDocument(ctx, tablePortfolios, userID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) SavePortfolio(ctx context.Context, p *domain.Portfolio) error {
	return s.putDocument(ctx, tablePortfolios, p.UserID, p)
}
