package domain

import "time"

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight maps a priority to its sort weight; unknown priorities weigh 0.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Recommendation categories.
const (
	CategoryGaming        = "gaming"
	CategoryDeFi          = "defi"
	CategoryCrossPlatform = "cross-platform"
)

// Recommendation is a suggestion derived from gaming and portfolio data.
type Recommendation struct {
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
	Priority    Priority `json:"priority"`
}

// DashboardView is the composite served to dashboard clients. It is built
// whole on every aggregation and never modified afterwards.
type DashboardView struct {
	UserID          string           `json:"userId"`
	User            Profile          `json:"user"`
	Overview        Overview         `json:"overview"`
	Gaming          GamingView       `json:"gaming"`
	DeFi            DeFiView         `json:"defi"`
	Activity        ActivitySummary  `json:"activity"`
	Recommendations []Recommendation `json:"recommendations"`
}

type Overview struct {
	GamingEarnings      float64 `json:"gamingEarnings"`
	PortfolioValue      float64 `json:"portfolioValue"`
	CombinedValue       float64 `json:"combinedValue"`
	PortfolioPnL        float64 `json:"portfolioPnL"`
	PortfolioPnLPercent float64 `json:"portfolioPnLPercent"`
}

// GamingView is the gaming section. Users without gaming history get a
// zeroed view rather than an absent one.
type GamingView struct {
	UserID         string             `json:"userId"`
	GamesPlayed    int                `json:"gamesPlayed"`
	TotalWins      int                `json:"totalWins"`
	TotalLosses    int                `json:"totalLosses"`
	TotalDraws     int                `json:"totalDraws"`
	WinRate        float64            `json:"winRate"`
	TotalEarnings  float64            `json:"totalEarnings"`
	HighestScore   int64              `json:"highestScore"`
	AverageScore   float64            `json:"averageScore"`
	CurrentStreak  int                `json:"currentStreak"`
	LongestStreak  int                `json:"longestStreak"`
	TotalPlaytime  int64              `json:"totalPlaytime"`
	Level          int                `json:"level"`
	Rank           string             `json:"rank"`
	RecentSessions []GameSession      `json:"recentSessions"`
	GameHistory    []GameRecord       `json:"gameHistory"`
	Tournaments    []Tournament       `json:"tournaments"`
	Statistics     map[string]float64 `json:"statistics"`
}

// DeFiView is the portfolio section. Only active positions and stakes are listed.
type DeFiView struct {
	UserID             string             `json:"userId"`
	TotalValue         float64            `json:"totalValue"`
	TotalPnL           float64            `json:"totalPnL"`
	TotalPnLPercent    float64            `json:"totalPnLPercentage"`
	Positions          []Position         `json:"positions"`
	Staking            []Stake            `json:"staking"`
	RecentTransactions []Transaction      `json:"recentTransactions"`
	Statistics         map[string]float64 `json:"statistics"`
}

type ActivitySummary struct {
	Last7Days      ActivityCounts `json:"last7Days"`
	RecentActivity []FeedItem     `json:"recentActivity"`
}

type ActivityCounts struct {
	GamesPlayed       int `json:"gamesPlayed"`
	DeFiTransactions  int `json:"defiTransactions"`
	TotalTransactions int `json:"totalTransactions"`
}

// FeedItem is one row of the merged recent activity feed.
type FeedItem struct {
	Type        string    `json:"type"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
}
