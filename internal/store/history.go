package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumeris/hub/internal/domain"
)

func (s *PostgresStore) SaveTransaction(ctx context.Context, userID string, tx *domain.Transaction) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if tx.TransactionID == "" {
		tx.TransactionID = uuid.NewString()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO transaction_history (id, user_id, tx_type, data, occurred_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (id) DO UPDATE SET
			tx_type = EXCLUDED.tx_type,
			data = EXCLUDED.data,
			occurred_at = EXCLUDED.occurred_at
	`, tx.TransactionID, userID, tx.Type, data, tx.Timestamp)
	if err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

// RecentTransactions returns up to limit transactions, newest first.
func (s *PostgresStore) RecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT data
		FROM transaction_history
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var tx domain.Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// LogActivity appends an activity record, assigning an ID and creation time
// when absent.
func (s *PostgresStore) LogActivity(ctx context.Context, a *domain.Activity) error {
	if a.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_activity (id, user_id, category, data, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, a.ID, a.UserID, a.Category, data, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

// RecentActivity returns up to limit activities created at or after since,
// newest first.
func (s *PostgresStore) RecentActivity(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT data
		FROM user_activity
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	acts := make([]domain.Activity, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var a domain.Activity
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}
