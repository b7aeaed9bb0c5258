// Package ratelimit enforces per-user generation quotas over rolling
// calendar windows. Counts come from the durable generation ledger, so a
// restart never resets a user's usage.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagegen-api/internal/config"
	"github.com/phrazzld/imagegen-api/internal/platform/logger"
	"github.com/phrazzld/imagegen-api/internal/store"
)

// Quota scopes reported in QuotaError and Status.
const (
	ScopeDaily   = "daily"
	ScopeMonthly = "monthly"
)

// QuotaError indicates a user has reached a generation quota. It reports
// which window was exhausted and the numbers behind the decision.
type QuotaError struct {
	Scope string // ScopeDaily or ScopeMonthly
	Used  int
	Limit int
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s generation limit reached (%d/%d)", e.Scope, e.Used, e.Limit)
}

// Status is a point-in-time snapshot of a user's quota consumption.
type Status struct {
	DailyUsed    int
	DailyLimit   int
	MonthlyUsed  int
	MonthlyLimit int
}

// Limiter checks per-user generation counts against configured ceilings.
// Failed generations do not count toward either window.
type Limiter struct {
	generationStore store.GenerationStore
	dailyLimit      int
	monthlyLimit    int
	logger          *slog.Logger
	timeFunc        func() time.Time // Injectable for testing
}

// NewLimiter creates a Limiter backed by the given generation store.
func NewLimiter(
	generationStore store.GenerationStore,
	cfg config.LimitsConfig,
	log *slog.Logger,
) *Limiter {
	if generationStore == nil {
		panic("generationStore cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Limiter{
		generationStore: generationStore,
		dailyLimit:      cfg.DailyGenerations,
		monthlyLimit:    cfg.MonthlyGenerations,
		logger:          log.With(slog.String("component", "rate_limiter")),
		timeFunc:        time.Now,
	}
}

// Check verifies the user is under both the daily and monthly quotas.
// Window boundaries are calendar-based in UTC: the daily window starts at
// midnight and the monthly window on the first of the month. Returns a
// *QuotaError naming the exhausted window, daily checked first.
func (l *Limiter) Check(ctx context.Context, userID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, l.logger)
	now := l.timeFunc().UTC()

	dailyUsed, err := l.generationStore.CountNonFailedSince(ctx, userID, startOfDay(now))
	if err != nil {
		return fmt.Errorf("failed to count daily generations: %w", err)
	}
	if dailyUsed >= l.dailyLimit {
		log.Info("daily generation limit reached",
			slog.String("user_id", userID.String()),
			slog.Int("used", dailyUsed),
			slog.Int("limit", l.dailyLimit))
		return &QuotaError{Scope: ScopeDaily, Used: dailyUsed, Limit: l.dailyLimit}
	}

	monthlyUsed, err := l.generationStore.CountNonFailedSince(ctx, userID, startOfMonth(now))
	if err != nil {
		return fmt.Errorf("failed to count monthly generations: %w", err)
	}
	if monthlyUsed >= l.monthlyLimit {
		log.Info("monthly generation limit reached",
			slog.String("user_id", userID.String()),
			slog.Int("used", monthlyUsed),
			slog.Int("limit", l.monthlyLimit))
		return &QuotaError{Scope: ScopeMonthly, Used: monthlyUsed, Limit: l.monthlyLimit}
	}

	return nil
}

// Status returns the user's current usage against both windows without
// enforcing anything.
func (l *Limiter) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	now := l.timeFunc().UTC()

	dailyUsed, err := l.generationStore.CountNonFailedSince(ctx, userID, startOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count daily generations: %w", err)
	}

	monthlyUsed, err := l.generationStore.CountNonFailedSince(ctx, userID, startOfMonth(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count monthly generations: %w", err)
	}

	return &Status{
		DailyUsed:    dailyUsed,
		DailyLimit:   l.dailyLimit,
		MonthlyUsed:  monthlyUsed,
		MonthlyLimit: l.monthlyLimit,
	}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
