package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumeris/hub/internal/domain"
)

// MemoryStore is a RecordStore kept in process memory. It backs local
// development runs started without a Postgres DSN.
type MemoryStore struct {
	mu           sync.RWMutex
	profiles     map[string]domain.Profile
	gaming       map[string]domain.GamingStats
	portfolios   map[string]domain.Portfolio
	transactions map[string][]domain.Transaction
	activity     map[string][]domain.Activity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:     make(map[string]domain.Profile),
		gaming:       make(map[string]domain.GamingStats),
		portfolios:   make(map[string]domain.Portfolio),
		transactions: make(map[string][]domain.Transaction),
		activity:     make(map[string][]domain.Activity),
	}
}

func (s *MemoryStore) Close() error                   { return nil }
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = *p
	return nil
}

func (s *MemoryStore) GetGamingStats(_ context.Context, userID string) (*domain.GamingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.gaming[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (s *MemoryStore) SaveGamingStats(_ context.Context, st *domain.GamingStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaming[st.UserID] = *st
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, userID string) (*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *domain.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[p.UserID] = *p
	return nil
}

func (s *MemoryStore) SaveTransaction(_ context.Context, userID string, tx *domain.Transaction) error {
	if tx.TransactionID == "" {
		tx.TransactionID = uuid.NewString()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txs := append(s.transactions[userID], *tx)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp.After(txs[j].Timestamp) })
	s.transactions[userID] = txs
	return nil
}

func (s *MemoryStore) RecentTransactions(_ context.Context, userID string, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs := s.transactions[userID]
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return append([]domain.Transaction(nil), txs...), nil
}

func (s *MemoryStore) LogActivity(_ context.Context, a *domain.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acts := append(s.activity[a.UserID], *a)
	sort.SliceStable(acts, func(i, j int) bool { return acts[i].CreatedAt.After(acts[j].CreatedAt) })
	s.activity[a.UserID] = acts
	return nil
}

func (s *MemoryStore) RecentActivity(_ context.Context, userID string, since time.Time, limit int) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Activity, 0, limit)
	for _, a := range s.activity[userID] {
		if a.CreatedAt.Before(since) {
			break
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
