// Package recommend derives ranked suggestions from a user's gaming
// statistics and DeFi portfolio.
//
// Rules are evaluated in a fixed order (gaming, DeFi, cross-platform) and each
// contributes at most one recommendation. The result is stable-sorted by
// priority weight, so equal priorities keep evaluation order, and truncated
// to Thresholds.MaxRecommendations. Recommend is pure.
package recommend

import (
	"fmt"
	"sort"

	"github.com/lumeris/hub/internal/domain"
)

// Thresholds configures when each rule fires.
type Thresholds struct {
	NewPlayerGames        int     `yaml:"new_player_games"`
	HighWinRate           float64 `yaml:"high_win_rate"`
	HotStreakMin          int     `yaml:"hot_streak_min"`
	MinPortfolioDiversity int     `yaml:"min_portfolio_diversity"`
	MinAPY                float64 `yaml:"min_apy"`
	PortfolioAlertPercent float64 `yaml:"portfolio_alert_percent"`
	MaxRecommendations    int     `yaml:"max_recommendations"`
}

// DefaultThresholds returns the production rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NewPlayerGames:        10,
		HighWinRate:           60,
		HotStreakMin:          5,
		MinPortfolioDiversity: 3,
		MinAPY:                100,
		PortfolioAlertPercent: -10,
		MaxRecommendations:    5,
	}
}

// Engine evaluates recommendation rules.
type Engine struct {
	t Thresholds
}

// New returns an Engine. A non-positive MaxRecommendations uses the default.
func New(t Thresholds) *Engine {
	if t.MaxRecommendations <= 0 {
		t.MaxRecommendations = DefaultThresholds().MaxRecommendations
	}
	return &Engine{t: t}
}

// Thresholds returns the engine configuration.
func (e *Engine) Thresholds() Thresholds {
	return e.t
}

// Recommend returns at most MaxRecommendations suggestions, highest priority
// first. Either argument may be nil.
func (e *Engine) Recommend(gaming *domain.GamingStats, portfolio *domain.Portfolio) []domain.Recommendation {
	recs := make([]domain.Recommendation, 0, 7)
	recs = append(recs, e.gamingRules(gaming)...)
	recs = append(recs, e.defiRules(portfolio)...)
	recs = append(recs, e.crossPlatformRules(gaming, portfolio)...)

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Weight() > recs[j].Priority.Weight()
	})
	if len(recs) > e.t.MaxRecommendations {
		recs = recs[:e.t.MaxRecommendations]
	}
	return recs
}

func (e *Engine) gamingRules(g *domain.GamingStats) []domain.Recommendation {
	if g == nil {
		return nil
	}
	var recs []domain.Recommendation

	if g.GamesPlayed < e.t.NewPlayerGames {
		recs = append(recs, domain.Recommendation{
			Category:    domain.CategoryGaming,
			Title:       "New Player Bonus",
			Description: fmt.Sprintf("Play %d games to unlock bonus rewards!", e.t.NewPlayerGames),
			Action:      "Play Now",
			Priority:    domain.PriorityHigh,
		})
	}
	if g.WinRate > e.t.HighWinRate {
		recs = append(recs, domain.Recommendation{
			Category:    domain.CategoryGaming,
			Title:       "Tournament Ready",
			Description: "Your high win rate qualifies you for premium tournaments!",
			Action:      "Join Tournament",
			Priority:    domain.PriorityMedium,
		})
	}
	if g.CurrentStreak >= e.t.HotStreakMin {
		recs = append(recs, domain.Recommendation{
			Category:    domain.CategoryGaming,
			Title:       "Hot Streak!",
			Description: fmt.Sprintf("You're on a %d game winning streak!", g.CurrentStreak),
			Action:      "Keep Playing",
			Priority:    domain.PriorityHigh,
		})
	}
	return recs
}

func (e *Engine) defiRules(p *domain.Portfolio) []domain.Recommendation {
	if p == nil {
		return nil
	}
	var recs []domain.Recommendation
	active := p.ActivePositions()

	if len(active) < e.t.MinPortfolioDiversity && p.TotalValue > 0 {
		recs = append(recs, domain.Recommendation{
			Category:    domain.CategoryDeFi,
			Title:       "Diversify Portfolio",
			Description: "Consider adding more pools to diversify your DeFi portfolio",
			Action:      "Browse Pools",
			Priority:    domain.PriorityMedium,
		})
	}
	if len(active) > 0 && averageAPY(active) < e.t.MinAPY {
		recs = append(recs, domain.Recommendation{
			Category:    domain.CategoryDeFi,
			Title:       "High Yield Opportunities",
			Description: fmt.Sprintf("Check out pools with higher APY rates (%g%%+)", e.t.MinAPY),
			Action:      "Explore Yields",
			Priority:    domain.PriorityLow,
		})
	}
	if p.TotalPnLPercent < e.t.PortfolioAlertPercent {
		recs = append(recs, domain.Recommendation{
			Category:    domain.CategoryDeFi,
			Title:       "Portfolio Alert",
			Description: "Your portfolio is down. Consider reviewing your positions.",
			Action:      "Review Portfolio",
			Priority:    domain.PriorityHigh,
		})
	}
	return recs
}

func (e *Engine) crossPlatformRules(g *domain.GamingStats, p *domain.Portfolio) []domain.Recommendation {
	if g == nil || p == nil || g.GamesPlayed <= 0 || p.TotalValue <= 0 {
		return nil
	}
	return []domain.Recommendation{{
		Category:    domain.CategoryCrossPlatform,
		Title:       "Power User Benefits",
		Description: "You're active on both Gaming and DeFi! Unlock special rewards.",
		Action:      "View Rewards",
		Priority:    domain.PriorityHigh,
	}}
}

func averageAPY(positions []domain.Position) float64 {
	var sum float64
	for _, p := range positions {
		sum += p.APY
	}
	return sum / float64(len(positions))
}
