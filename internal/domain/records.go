package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by upstream readers when the requested record does
// not exist. It is a normal outcome, not a failure.
var ErrNotFound = errors.New("record not found")

// Position and staking lifecycle states.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Profile is the user record as seen by the dashboard.
type Profile struct {
	UserID        string        `json:"userId"`
	Username      string        `json:"username"`
	Email         string        `json:"email"`
	WalletAddress string        `json:"walletAddress"`
	Level         int           `json:"level"`
	Rank          string        `json:"rank"`
	Avatar        string        `json:"avatar"`
	Achievements  []Achievement `json:"achievements"`
}

type Achievement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rarity      string    `json:"rarity"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

// GameSession is one finished game.
type GameSession struct {
	SessionID string    `json:"sessionId"`
	GameID    string    `json:"gameId"`
	GameName  string    `json:"gameName"`
	Score     int64     `json:"score"`
	Result    string    `json:"result"` // win, loss, draw
	Earnings  float64   `json:"earnings"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// GameRecord aggregates a user's history in a single game.
type GameRecord struct {
	GameID        string  `json:"gameId"`
	GameName      string  `json:"gameName"`
	GamesPlayed   int     `json:"gamesPlayed"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Earnings      float64 `json:"earnings"`
	HighScore     int64   `json:"highScore"`
	TotalPlaytime int64   `json:"totalPlaytime"`
}

type Tournament struct {
	TournamentID string    `json:"tournamentId"`
	Name         string    `json:"name"`
	Position     int       `json:"position"`
	Prize        float64   `json:"prize"`
	Status       string    `json:"status"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// GamingStats is the aggregated gaming record of one user.
type GamingStats struct {
	UserID         string             `json:"userId"`
	GamesPlayed    int                `json:"gamesPlayed"`
	Wins           int                `json:"wins"`
	Losses         int                `json:"losses"`
	Draws          int                `json:"draws"`
	WinRate        float64            `json:"winRate"`
	TotalEarnings  float64            `json:"totalEarnings"`
	HighestScore   int64              `json:"highestScore"`
	AverageScore   float64            `json:"averageScore"`
	CurrentStreak  int                `json:"currentStreak"`
	LongestStreak  int                `json:"longestStreak"`
	TotalPlaytime  int64              `json:"totalPlaytime"` // minutes
	RecentSessions []GameSession      `json:"recentSessions"`
	GameHistory    []GameRecord       `json:"gameHistory"`
	Tournaments    []Tournament       `json:"tournaments"`
	Statistics     map[string]float64 `json:"statistics"`
}

// Position is a liquidity pool position.
type Position struct {
	PoolID      string    `json:"poolId"`
	PoolName    string    `json:"poolName"`
	Liquidity   float64   `json:"liquidity"`
	LPTokens    float64   `json:"lpTokens"`
	PnL         float64   `json:"pnl"`
	PnLPercent  float64   `json:"pnlPercentage"`
	APY         float64   `json:"apy"`
	Rewards     float64   `json:"rewards"`
	FeesEarned  float64   `json:"feesEarned"`
	Status      string    `json:"status"`
	AddedAt     time.Time `json:"addedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Stake is a yield staking position.
type Stake struct {
	YieldID        string    `json:"yieldId"`
	Staked         float64   `json:"staked"`
	Rewards        float64   `json:"rewards"`
	APY            float64   `json:"apy"`
	ClaimedRewards float64   `json:"claimedRewards"`
	Status         string    `json:"status"`
	StakedAt       time.Time `json:"stakedAt"`
}

// Portfolio is a user's DeFi holdings.
type Portfolio struct {
	UserID          string             `json:"userId"`
	TotalValue      float64            `json:"totalValue"`
	TotalPnL        float64            `json:"totalPnL"`
	TotalPnLPercent float64            `json:"totalPnLPercentage"`
	Positions       []Position         `json:"positions"`
	Staking         []Stake            `json:"staking"`
	Statistics      map[string]float64 `json:"statistics"`
}

// ActivePositions returns the positions whose status is active, in input order.
func (p *Portfolio) ActivePositions() []Position {
	if p == nil {
		return nil
	}
	out := make([]Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		if pos.Status == StatusActive {
			out = append(out, pos)
		}
	}
	return out
}

// ActiveStaking returns the stakes whose status is active, in input order.
func (p *Portfolio) ActiveStaking() []Stake {
	if p == nil {
		return nil
	}
	out := make([]Stake, 0, len(p.Staking))
	for _, s := range p.Staking {
		if s.Status == StatusActive {
			out = append(out, s)
		}
	}
	return out
}

// Transaction types recorded in the DeFi transaction log.
const (
	TxSwap            = "swap"
	TxAddLiquidity    = "add_liquidity"
	TxRemoveLiquidity = "remove_liquidity"
	TxStake           = "stake"
	TxUnstake         = "unstake"
	TxClaimRewards    = "claim_rewards"
)

// Transaction is one DeFi transaction log entry.
type Transaction struct {
	TransactionID string    `json:"transactionId"`
	Type          string    `json:"type"`
	PoolID        string    `json:"poolId,omitempty"`
	YieldID       string    `json:"yieldId,omitempty"`
	TokenIn       string    `json:"tokenIn,omitempty"`
	TokenOut      string    `json:"tokenOut,omitempty"`
	AmountIn      float64   `json:"amountIn,omitempty"`
	AmountOut     float64   `json:"amountOut,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	Fee           float64   `json:"fee,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Activity is one entry of the generic user activity log.
type Activity struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Type        string            `json:"type"`
	Category    string            `json:"category"`
	Action      string            `json:"action"`
	Description string            `json:"description"`
	Value       float64           `json:"value"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
