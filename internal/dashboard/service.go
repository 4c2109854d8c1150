// Package dashboard assembles the per-user dashboard from the profile,
// gaming, portfolio, transaction and activity sources.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/lumeris/hub/internal/cache"
	"github.com/lumeris/hub/internal/circuitbreaker"
	"github.com/lumeris/hub/internal/domain"
	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/metrics"
	"github.com/lumeris/hub/internal/observability"
	"github.com/lumeris/hub/internal/recommend"
)

const (
	defaultLevel   = 1
	defaultRank    = "Unranked"
	recentSessions = 5
)

// ProfileReader loads user profiles. It returns domain.ErrNotFound for an
// unknown user.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// GamingReader loads gaming statistics. domain.ErrNotFound means the user
// has never played.
type GamingReader interface {
	GetGamingStats(ctx context.Context, userID string) (*domain.GamingStats, error)
}

// PortfolioReader loads DeFi portfolios. domain.ErrNotFound means the user
// holds no portfolio.
type PortfolioReader interface {
	GetPortfolio(ctx context.Context, userID string) (*domain.Portfolio, error)
}

// TransactionReader lists the newest transactions first.
type TransactionReader interface {
	RecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// ActivityReader lists activity created at or after since, newest first.
type ActivityReader interface {
	RecentActivity(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Activity, error)
}

// Source is the full set of upstream reads behind a dashboard.
type Source interface {
	ProfileReader
	GamingReader
	PortfolioReader
	TransactionReader
	ActivityReader
}

// Config bounds one aggregation.
type Config struct {
	ServiceTTL        time.Duration
	UpstreamTimeout   time.Duration
	TransactionsLimit int
	ActivitiesLimit   int
	ActivityLookback  time.Duration
	Clock             clockwork.Clock
	// Breakers fails reads of a repeatedly failing dependency fast. Nil
	// disables breaking.
	Breakers *circuitbreaker.Registry
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ServiceTTL:        30 * time.Second,
		UpstreamTimeout:   5 * time.Second,
		TransactionsLimit: 10,
		ActivitiesLimit:   10,
		ActivityLookback:  7 * 24 * time.Hour,
	}
}

// Service builds dashboards and caches them at the service tier.
type Service struct {
	src    Source
	loader *cache.Loader
	engine *recommend.Engine
	cfg    Config
	log    *slog.Logger
}

// NewService creates a dashboard service. Zero config fields take their
// defaults.
func NewService(src Source, loader *cache.Loader, engine *recommend.Engine, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.ServiceTTL <= 0 {
		cfg.ServiceTTL = def.ServiceTTL
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = def.UpstreamTimeout
	}
	if cfg.TransactionsLimit <= 0 {
		cfg.TransactionsLimit = def.TransactionsLimit
	}
	if cfg.ActivitiesLimit <= 0 {
		cfg.ActivitiesLimit = def.ActivitiesLimit
	}
	if cfg.ActivityLookback <= 0 {
		cfg.ActivityLookback = def.ActivityLookback
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if engine == nil {
		engine = recommend.New(recommend.DefaultThresholds())
	}
	return &Service{
		src:    src,
		loader: loader,
		engine: engine,
		cfg:    cfg,
		log:    logging.Component("dashboard"),
	}
}

// ServiceKey is the service-tier cache key of a user's dashboard.
func ServiceKey(userID string) string {
	return "dashboard:service:" + userID
}

// GetDashboard returns the dashboard of userID, from the service-tier cache
// when fresh. Concurrent calls for one user share a single aggregation.
//
// It returns ErrUserNotFound for an unknown user and a
// *DependencyUnavailableError when any upstream read fails or times out.
// Neither outcome is cached.
func (s *Service) GetDashboard(ctx context.Context, userID string) (*domain.DashboardView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	ctx, span := observability.StartSpan(ctx, "dashboard.get", observability.AttrUserID.String(userID))
	defer span.End()

	res, err := s.loader.ReadThrough(ctx, ServiceKey(userID), s.cfg.ServiceTTL, func(ctx context.Context) ([]byte, bool, error) {
		view, err := s.aggregateTimed(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		raw, err := json.Marshal(view)
		if err != nil {
			return nil, false, fmt.Errorf("encode dashboard: %w", err)
		}
		return raw, true, nil
	})
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			observability.SetSpanError(span, err)
		}
		return nil, err
	}
	span.SetAttributes(observability.AttrCacheHit.Bool(res.Cached))

	var view domain.DashboardView
	if err := json.Unmarshal(res.Value, &view); err != nil {
		s.log.Warn("discarding undecodable dashboard", "user_id", userID, "error", err)
		s.loader.Store().Delete(ctx, ServiceKey(userID))
		return s.aggregateTimed(ctx, userID)
	}
	observability.SetSpanOK(span)
	return &view, nil
}

func (s *Service) aggregateTimed(ctx context.Context, userID string) (*domain.DashboardView, error) {
	start := s.cfg.Clock.Now()
	view, err := s.aggregate(ctx, userID)
	result := "ok"
	switch {
	case errors.Is(err, ErrUserNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	metrics.RecordAggregation(s.cfg.Clock.Since(start).Milliseconds(), result)
	return view, err
}

// upstream holds the raw results of the five reads.
type upstream struct {
	profile      *domain.Profile
	gaming       *domain.GamingStats
	portfolio    *domain.Portfolio
	transactions []domain.Transaction
	activity     []domain.Activity
}

// aggregate runs the upstream reads concurrently and assembles the view. The
// reads are detached from the caller's cancellation because other callers
// may be waiting on the same aggregation; UpstreamTimeout bounds them.
func (s *Service) aggregate(ctx context.Context, userID string) (*domain.DashboardView, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UpstreamTimeout)
	defer cancel()

	var up upstream
	since := s.cfg.Clock.Now().Add(-s.cfg.ActivityLookback)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := fetch(gctx, s.cfg.Breakers.Get(DependencyProfile), DependencyProfile, userID, s.src.GetProfile)
		if errors.Is(err, domain.ErrNotFound) {
			return ErrUserNotFound
		}
		up.profile = p
		return s.dependencyErr(DependencyProfile, err)
	})
	g.Go(func() error {
		st, err := fetch(gctx, s.cfg.Breakers.Get(DependencyGaming), DependencyGaming, userID, s.src.GetGamingStats)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		up.gaming = st
		return s.dependencyErr(DependencyGaming, err)
	})
	g.Go(func() error {
		p, err := fetch(gctx, s.cfg.Breakers.Get(DependencyPortfolio), DependencyPortfolio, userID, s.src.GetPortfolio)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		up.portfolio = p
		return s.dependencyErr(DependencyPortfolio, err)
	})
	g.Go(func() error {
		txs, err := fetch(gctx, s.cfg.Breakers.Get(DependencyTransactions), DependencyTransactions, userID, func(ctx context.Context, id string) ([]domain.Transaction, error) {
			return s.src.RecentTransactions(ctx, id, s.cfg.TransactionsLimit)
		})
		up.transactions = txs
		return s.dependencyErr(DependencyTransactions, err)
	})
	g.Go(func() error {
		acts, err := fetch(gctx, s.cfg.Breakers.Get(DependencyActivity), DependencyActivity, userID, func(ctx context.Context, id string) ([]domain.Activity, error) {
			return s.src.RecentActivity(ctx, id, since, s.cfg.ActivitiesLimit)
		})
		up.activity = acts
		return s.dependencyErr(DependencyActivity, err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if up.profile == nil {
		return nil, ErrUserNotFound
	}
	return s.assemble(userID, up), nil
}

func fetch[T any](ctx context.Context, breaker *circuitbreaker.Breaker, dependency, userID string, read func(context.Context, string) (T, error)) (T, error) {
	if breaker != nil && !breaker.Allow() {
		var zero T
		return zero, circuitbreaker.ErrOpen
	}

	ctx, span := observability.StartClientSpan(ctx, "dashboard.read."+dependency,
		observability.AttrDependency.String(dependency))
	defer span.End()
	v, err := read(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		observability.SetSpanError(span, err)
	}

	if breaker != nil {
		switch {
		case err == nil || errors.Is(err, domain.ErrNotFound):
			breaker.RecordSuccess()
		case errors.Is(err, context.Canceled):
			breaker.Abandon()
		default:
			breaker.RecordFailure()
		}
	}
	return v, err
}

func (s *Service) dependencyErr(dependency string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		// A sibling read failed first and cancelled this one.
		return err
	}
	metrics.RecordUpstreamFailure(dependency)
	s.log.Warn("upstream read failed", "dependency", dependency, "error", err)
	return &DependencyUnavailableError{Dependency: dependency, Err: err}
}

func (s *Service) assemble(userID string, up upstream) *domain.DashboardView {
	profile := *up.profile
	if profile.Achievements == nil {
		profile.Achievements = []domain.Achievement{}
	}

	gaming := gamingView(userID, &profile, up.gaming)
	defi := defiView(userID, up.portfolio, up.transactions)

	var sessions []domain.GameSession
	if up.gaming != nil {
		sessions = up.gaming.RecentSessions
	}

	recs := s.engine.Recommend(up.gaming, up.portfolio)
	if recs == nil {
		recs = []domain.Recommendation{}
	}

	return &domain.DashboardView{
		UserID: userID,
		User:   profile,
		Overview: domain.Overview{
			GamingEarnings:      gaming.TotalEarnings,
			PortfolioValue:      defi.TotalValue,
			CombinedValue:       gaming.TotalEarnings + defi.TotalValue,
			PortfolioPnL:        defi.TotalPnL,
			PortfolioPnLPercent: defi.TotalPnLPercent,
		},
		Gaming: gaming,
		DeFi:   defi,
		Activity: domain.ActivitySummary{
			Last7Days: domain.ActivityCounts{
				GamesPlayed:       gaming.GamesPlayed,
				DeFiTransactions:  len(defi.RecentTransactions),
				TotalTransactions: gaming.GamesPlayed + len(defi.RecentTransactions),
			},
			RecentActivity: MergeFeed(sessions, defi.RecentTransactions, up.activity),
		},
		Recommendations: recs,
	}
}

func gamingView(userID string, profile *domain.Profile, st *domain.GamingStats) domain.GamingView {
	v := domain.GamingView{
		UserID:         userID,
		Level:          profile.Level,
		Rank:           profile.Rank,
		RecentSessions: []domain.GameSession{},
		GameHistory:    []domain.GameRecord{},
		Tournaments:    []domain.Tournament{},
		Statistics:     map[string]float64{},
	}
	if v.Level <= 0 {
		v.Level = defaultLevel
	}
	if v.Rank == "" {
		v.Rank = defaultRank
	}
	if st == nil {
		return v
	}

	v.GamesPlayed = st.GamesPlayed
	v.TotalWins = st.Wins
	v.TotalLosses = st.Losses
	v.TotalDraws = st.Draws
	v.WinRate = st.WinRate
	v.TotalEarnings = st.TotalEarnings
	v.HighestScore = st.HighestScore
	v.AverageScore = st.AverageScore
	v.CurrentStreak = st.CurrentStreak
	v.LongestStreak = st.LongestStreak
	v.TotalPlaytime = st.TotalPlaytime
	if len(st.RecentSessions) > 0 {
		v.RecentSessions = append(v.RecentSessions, st.RecentSessions[:min(len(st.RecentSessions), recentSessions)]...)
	}
	v.GameHistory = append(v.GameHistory, st.GameHistory...)
	v.Tournaments = append(v.Tournaments, st.Tournaments...)
	for k, val := range st.Statistics {
		v.Statistics[k] = val
	}
	return v
}

func defiView(userID string, p *domain.Portfolio, txs []domain.Transaction) domain.DeFiView {
	v := domain.DeFiView{
		UserID:             userID,
		Positions:          []domain.Position{},
		Staking:            []domain.Stake{},
		RecentTransactions: append([]domain.Transaction{}, txs...),
		Statistics:         map[string]float64{},
	}
	if p == nil {
		return v
	}
	v.TotalValue = p.TotalValue
	v.TotalPnL = p.TotalPnL
	v.TotalPnLPercent = p.TotalPnLPercent
	v.Positions = append(v.Positions, p.ActivePositions()...)
	v.Staking = append(v.Staking, p.ActiveStaking()...)
	for k, val := range p.Statistics {
		v.Statistics[k] = val
	}
	return v
}
