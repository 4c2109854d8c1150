package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lumeris/hub/internal/cache"
	"github.com/lumeris/hub/internal/circuitbreaker"
	"github.com/lumeris/hub/internal/domain"
	"github.com/lumeris/hub/internal/recommend"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves canned records and counts reads.
type fakeSource struct {
	mu           sync.Mutex
	profiles     map[string]*domain.Profile
	gaming       map[string]*domain.GamingStats
	portfolios   map[string]*domain.Portfolio
	transactions map[string][]domain.Transaction
	activity     map[string][]domain.Activity

	failOn  string
	errWith error
	delay   time.Duration
	block   chan struct{}

	profileReads atomic.Int32
	lastSince    time.Time
	lastTxLimit  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		profiles:     map[string]*domain.Profile{},
		gaming:       map[string]*domain.GamingStats{},
		portfolios:   map[string]*domain.Portfolio{},
		transactions: map[string][]domain.Transaction{},
		activity:     map[string][]domain.Activity{},
		errWith:      errors.New("connection refused"),
	}
}

func (f *fakeSource) wait(ctx context.Context, dependency string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failOn == dependency {
		return f.errWith
	}
	return nil
}

func (f *fakeSource) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	f.profileReads.Add(1)
	if err := f.wait(ctx, DependencyProfile); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeSource) GetGamingStats(ctx context.Context, userID string) (*domain.GamingStats, error) {
	if err := f.wait(ctx, DependencyGaming); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.gaming[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st, nil
}

func (f *fakeSource) GetPortfolio(ctx context.Context, userID string) (*domain.Portfolio, error) {
	if err := f.wait(ctx, DependencyPortfolio); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.portfolios[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeSource) RecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if err := f.wait(ctx, DependencyTransactions); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTxLimit = limit
	return f.transactions[userID], nil
}

func (f *fakeSource) RecentActivity(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Activity, error) {
	if err := f.wait(ctx, DependencyActivity); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSince = since
	return f.activity[userID], nil
}

func newTestService(t *testing.T, src Source, cfg Config) (*Service, *cache.Loader) {
	t.Helper()
	store := cache.NewStore(cache.NewInMemoryCache(), nil, cache.StoreConfig{})
	t.Cleanup(func() { store.Close() })
	loader := cache.NewLoader(store, cache.TierService)
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewFakeClockAt(testNow)
	}
	return NewService(src, loader, recommend.New(recommend.DefaultThresholds()), cfg), loader
}

func seedFullUser(src *fakeSource) {
	src.profiles["u1"] = &domain.Profile{UserID: "u1", Username: "neo", Level: 7, Rank: "Gold"}
	src.gaming["u1"] = &domain.GamingStats{
		UserID: "u1", GamesPlayed: 42, Wins: 30, WinRate: 71.4, TotalEarnings: 250, CurrentStreak: 2,
		RecentSessions: []domain.GameSession{
			{SessionID: "s1", GameName: "Chess", Score: 900, Result: "win", Earnings: 10, EndTime: testNow.Add(-1 * time.Hour)},
			{SessionID: "s2", GameName: "Go", Score: 300, Result: "loss", EndTime: testNow.Add(-5 * time.Hour)},
		},
	}
	src.portfolios["u1"] = &domain.Portfolio{
		UserID: "u1", TotalValue: 1000, TotalPnL: 50, TotalPnLPercent: 5,
		Positions: []domain.Position{
			{PoolID: "p1", Status: domain.StatusActive, APY: 120},
			{PoolID: "p2", Status: domain.StatusClosed, APY: 10},
		},
		Staking: []domain.Stake{{YieldID: "y1", Status: domain.StatusActive}},
	}
	src.transactions["u1"] = []domain.Transaction{
		{TransactionID: "t1", Type: domain.TxSwap, TokenIn: "ETH", TokenOut: "USDC", AmountIn: 1, AmountOut: 3000, Timestamp: testNow.Add(-2 * time.Hour)},
	}
	src.activity["u1"] = []domain.Activity{
		{ID: "a1", Category: "social", Action: "Joined Guild", Description: "Night Owls", CreatedAt: testNow.Add(-30 * time.Minute)},
	}
}

func TestGetDashboard_Complete(t *testing.T) {
	src := newFakeSource()
	seedFullUser(src)
	svc, _ := newTestService(t, src, Config{})

	view, err := svc.GetDashboard(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetDashboard failed: %v", err)
	}
	if view.User.Username != "neo" || view.Gaming.Level != 7 || view.Gaming.Rank != "Gold" {
		t.Fatalf("profile not carried through: %+v / %+v", view.User, view.Gaming)
	}
	if view.Overview.CombinedValue != 1250 {
		t.Fatalf("combinedValue = %v, want 1250", view.Overview.CombinedValue)
	}
	if len(view.DeFi.Positions) != 1 || view.DeFi.Positions[0].PoolID != "p1" {
		t.Fatalf("expected only the active position, got %+v", view.DeFi.Positions)
	}
	if got := view.Activity.Last7Days; got.GamesPlayed != 42 || got.DeFiTransactions != 1 || got.TotalTransactions != 43 {
		t.Fatalf("unexpected counts %+v", got)
	}
	feed := view.Activity.RecentActivity
	if len(feed) != 4 || feed[0].Action != "Joined Guild" || feed[1].Action != "Won Game" || feed[2].Action != "Token Swap" {
		t.Fatalf("unexpected feed order: %+v", feed)
	}
	if len(view.Recommendations) == 0 {
		t.Fatal("expected recommendations")
	}
	if src.lastTxLimit != 10 {
		t.Fatalf("transactions limit = %d, want 10", src.lastTxLimit)
	}
	if want := testNow.Add(-7 * 24 * time.Hour); !src.lastSince.Equal(want) {
		t.Fatalf("activity lookback = %v, want %v", src.lastSince, want)
	}
}

func TestGetDashboard_MissingSectionsAreZeroed(t *testing.T) {
	src := newFakeSource()
	src.profiles["u2"] = &domain.Profile{UserID: "u2", Username: "fresh"}
	svc, _ := newTestService(t, src, Config{})

	view, err := svc.GetDashboard(context.Background(), "u2")
	if err != nil {
		t.Fatalf("GetDashboard failed: %v", err)
	}
	if view.Gaming.Level != 1 || view.Gaming.Rank != "Unranked" || view.Gaming.GamesPlayed != 0 {
		t.Fatalf("unexpected gaming defaults: %+v", view.Gaming)
	}
	if view.Gaming.RecentSessions == nil || view.DeFi.Positions == nil || view.DeFi.Staking == nil ||
		view.DeFi.RecentTransactions == nil || view.Recommendations == nil || view.Activity.RecentActivity == nil {
		t.Fatal("empty sections must be empty slices, not nil")
	}
	if view.Overview.CombinedValue != 0 {
		t.Fatalf("combinedValue = %v, want 0", view.Overview.CombinedValue)
	}
}

func TestGetDashboard_UnknownUserNotCached(t *testing.T) {
	src := newFakeSource()
	svc, loader := newTestService(t, src, Config{})
	ctx := context.Background()

	if _, err := svc.GetDashboard(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	loader.Wait()
	if loader.Store().Has(ctx, ServiceKey("ghost")) {
		t.Fatal("not-found result was cached")
	}
	if _, err := svc.GetDashboard(ctx, "  "); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("expected ErrUserIDRequired, got %v", err)
	}
}

func TestGetDashboard_UpstreamFailure(t *testing.T) {
	src := newFakeSource()
	seedFullUser(src)
	src.failOn = DependencyPortfolio
	svc, loader := newTestService(t, src, Config{})
	ctx := context.Background()

	_, err := svc.GetDashboard(ctx, "u1")
	var depErr *DependencyUnavailableError
	if !errors.As(err, &depErr) || depErr.Dependency != DependencyPortfolio {
		t.Fatalf("expected portfolio dependency error, got %v", err)
	}
	if !errors.Is(err, src.errWith) {
		t.Fatal("dependency error does not wrap the cause")
	}
	loader.Wait()
	if loader.Store().Has(ctx, ServiceKey("u1")) {
		t.Fatal("failed aggregation was cached")
	}
}

func TestGetDashboard_OpenBreakerFailsFast(t *testing.T) {
	src := newFakeSource()
	seedFullUser(src)
	src.failOn = DependencyPortfolio
	clock := clockwork.NewFakeClockAt(testNow)
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		ErrorPct:       50,
		WindowDuration: time.Minute,
		OpenDuration:   30 * time.Second,
	}, clock)
	svc, _ := newTestService(t, src, Config{Clock: clock, Breakers: breakers})
	ctx := context.Background()

	if _, err := svc.GetDashboard(ctx, "u1"); err == nil {
		t.Fatal("expected first call to fail")
	}
	if open := breakers.Open(); len(open) != 1 || open[0] != DependencyPortfolio {
		t.Fatalf("open breakers = %v", open)
	}

	src.failOn = ""
	_, err := svc.GetDashboard(ctx, "u1")
	var depErr *DependencyUnavailableError
	if !errors.As(err, &depErr) || depErr.Dependency != DependencyPortfolio || !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected open-breaker dependency error, got %v", err)
	}

	clock.Advance(30 * time.Second)
	if _, err := svc.GetDashboard(ctx, "u1"); err != nil {
		t.Fatalf("half-open probe should succeed: %v", err)
	}
	if len(breakers.Open()) != 0 {
		t.Fatalf("breaker did not close: %v", breakers.Snapshot())
	}
}

func TestGetDashboard_Timeout(t *testing.T) {
	src := newFakeSource()
	seedFullUser(src)
	src.block = make(chan struct{})
	defer close(src.block)
	svc, _ := newTestService(t, src, Config{UpstreamTimeout: 20 * time.Millisecond})

	_, err := svc.GetDashboard(context.Background(), "u1")
	var depErr *DependencyUnavailableError
	if !errors.As(err, &depErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout dependency error, got %v", err)
	}
}

func TestGetDashboard_ServedFromCache(t *testing.T) {
	src := newFakeSource()
	seedFullUser(src)
	svc, loader := newTestService(t, src, Config{})
	ctx := context.Background()

	first, err := svc.GetDashboard(ctx, "u1")
	if err != nil {
		t.Fatalf("first GetDashboard failed: %v", err)
	}
	loader.Wait()
	second, err := svc.GetDashboard(ctx, "u1")
	if err != nil {
		t.Fatalf("second GetDashboard failed: %v", err)
	}
	if src.profileReads.Load() != 1 {
		t.Fatalf("expected one upstream pass, got %d", src.profileReads.Load())
	}
	if second.Overview != first.Overview || len(second.Activity.RecentActivity) != len(first.Activity.RecentActivity) {
		t.Fatal("cached dashboard differs from the original")
	}
}

func TestGetDashboard_ConcurrentCallsShareAggregation(t *testing.T) {
	src := newFakeSource()
	seedFullUser(src)
	src.delay = 50 * time.Millisecond
	svc, _ := newTestService(t, src, Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetDashboard(context.Background(), "u1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GetDashboard failed: %v", err)
		}
	}
	if n := src.profileReads.Load(); n != 1 {
		t.Fatalf("expected one shared aggregation, got %d", n)
	}
}

func TestDependencyUnavailableError(t *testing.T) {
	var nilErr *DependencyUnavailableError
	if nilErr.Error() != "dependency unavailable" || nilErr.Unwrap() != nil {
		t.Fatal("nil error not handled")
	}
	err := &DependencyUnavailableError{Dependency: "gaming", Err: errors.New("boom")}
	if err.Error() != "dependency unavailable: gaming: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
