package dashboard

import (
	"errors"
	"strings"
)

var (
	// ErrUserIDRequired indicates a missing user ID.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrUserNotFound indicates the profile lookup found no user.
	ErrUserNotFound = errors.New("user not found")
)

// Upstream dependency names reported in DependencyUnavailableError and metrics.
const (
	DependencyProfile      = "profile"
	DependencyGaming       = "gaming"
	DependencyPortfolio    = "portfolio"
	DependencyTransactions = "transactions"
	DependencyActivity     = "activity"
)

// DependencyUnavailableError reports that an upstream read failed or timed
// out. A dashboard is never assembled from partial data.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

// Error returns the dependency failure message.
func (e *DependencyUnavailableError) Error() string {
	if e == nil || strings.TrimSpace(e.Dependency) == "" {
		return "dependency unavailable"
	}
	if e.Err == nil {
		return "dependency unavailable: " + e.Dependency
	}
	return "dependency unavailable: " + e.Dependency + ": " + e.Err.Error()
}

// Unwrap returns the underlying dependency error.
func (e *DependencyUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
