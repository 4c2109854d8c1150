package dashboard

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/lumeris/hub/internal/domain"
)

const (
	feedPerSource = 3
	feedSize      = 5
)

// Feed item types.
const (
	FeedGaming = "gaming"
	FeedDeFi   = "defi"
)

var transactionLabels = map[string]string{
	domain.TxSwap:            "Token Swap",
	domain.TxAddLiquidity:    "Added Liquidity",
	domain.TxRemoveLiquidity: "Removed Liquidity",
	domain.TxStake:           "Staked Tokens",
	domain.TxUnstake:         "Unstaked Tokens",
	domain.TxClaimRewards:    "Claimed Rewards",
}

// TransactionLabel returns the display label for a transaction type. Unknown
// types are shown as-is.
func TransactionLabel(txType string) string {
	if label, ok := transactionLabels[txType]; ok {
		return label
	}
	return txType
}

// TransactionDescription renders the one-line summary of a transaction.
func TransactionDescription(tx domain.Transaction) string {
	switch tx.Type {
	case domain.TxSwap:
		return fmt.Sprintf("%s %s → %s %s", formatAmount(tx.AmountIn), tx.TokenIn, formatAmount(tx.AmountOut), tx.TokenOut)
	case domain.TxAddLiquidity, domain.TxRemoveLiquidity:
		return fmt.Sprintf("%s - $%s", tx.PoolID, formatAmount(tx.Amount))
	case domain.TxStake, domain.TxUnstake:
		return fmt.Sprintf("%s - $%s", tx.YieldID, formatAmount(tx.Amount))
	default:
		return "Transaction " + tx.TransactionID
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sessionAction(s domain.GameSession) string {
	if s.Result == "win" {
		return "Won Game"
	}
	return "Played Game"
}

// MergeFeed builds the recent activity feed: up to three items from each
// source, newest first, at most five overall. Items with equal timestamps keep
// source order (sessions, then transactions, then generic activity).
func MergeFeed(sessions []domain.GameSession, txs []domain.Transaction, activity []domain.Activity) []domain.FeedItem {
	items := make([]domain.FeedItem, 0, 3*feedPerSource)

	for _, s := range head(sessions) {
		items = append(items, domain.FeedItem{
			Type:        FeedGaming,
			Action:      sessionAction(s),
			Description: fmt.Sprintf("%s - Score: %d", s.GameName, s.Score),
			Timestamp:   s.EndTime,
			Value:       s.Earnings,
		})
	}
	for _, tx := range head(txs) {
		value := tx.Amount
		if value == 0 {
			value = tx.AmountOut
		}
		items = append(items, domain.FeedItem{
			Type:        FeedDeFi,
			Action:      TransactionLabel(tx.Type),
			Description: TransactionDescription(tx),
			Timestamp:   tx.Timestamp,
			Value:       value,
		})
	}
	for _, a := range head(activity) {
		items = append(items, domain.FeedItem{
			Type:        a.Category,
			Action:      a.Action,
			Description: a.Description,
			Timestamp:   a.CreatedAt,
			Value:       a.Value,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if len(items) > feedSize {
		items = items[:feedSize]
	}
	return items
}

func head[T any](s []T) []T {
	if len(s) > feedPerSource {
		return s[:feedPerSource]
	}
	return s
}
