// Package budget tracks token spend shared by the embedding and generation backends.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/metrics"
)

// Action defines behavior when the budget is spent.
type Action string

const (
	// ActionWarn logs and lets the request through.
	ActionWarn Action = "warn"
	// ActionReject fails the request with domain.ErrTokenBudgetExceeded.
	ActionReject Action = "reject"
)

// ParseAction maps a config value to an Action. Anything but "reject" warns.
func ParseAction(s string) Action {
	if s == string(ActionReject) {
		return ActionReject
	}
	return ActionWarn
}

// Backends that spend tokens.
const (
	BackendEmbedding  = "embedding"
	BackendGeneration = "generation"
)

const persistTimeout = 2 * time.Second

// Store persists counters across restarts. IncrBy must be safe to repeat.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// window is one budget period: a counter, its cap and the period start.
type window struct {
	start time.Time
	used  int64
	limit int64
}

func (w window) exceeded() bool { return w.limit > 0 && w.used >= w.limit }

// remaining is -1 for an unlimited window.
func (w window) remaining() int64 {
	if w.limit == 0 {
		return -1
	}
	return max(w.limit-w.used, 0)
}

// Tracker keeps daily and monthly token counters in memory.
// Check never touches the store; Record writes behind to it.
type Tracker struct {
	mu     sync.Mutex
	day    window
	month  window
	action Action
	scope  string
	now    func() time.Time
	store  Store
	logger *zap.Logger
}

// New creates a tracker. Zero limits are unlimited.
// scope namespaces the persisted keys.
func New(scope string, dailyLimit, monthlyLimit int64, action Action, logger *zap.Logger) *Tracker {
	t := &Tracker{
		day:    window{limit: dailyLimit},
		month:  window{limit: monthlyLimit},
		action: action,
		scope:  scope,
		now:    time.Now,
		logger: logger,
	}
	t.day.start, t.month.start = t.periodStarts()
	return t
}

// WithClock replaces the time source. Counters restart at the clock's current period.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.day = window{limit: t.day.limit}
	t.month = window{limit: t.month.limit}
	t.day.start, t.month.start = t.periodStarts()
	return t
}

// WithStore attaches a persistence store and loads the current period's counters.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = store
	t.roll()

	if used, err := store.Get(ctx, t.dailyKey(t.day.start)); err == nil {
		t.day.used = used
	} else {
		t.logger.Warn("Failed to load daily budget", zap.Error(err))
	}
	if used, err := store.Get(ctx, t.monthlyKey(t.month.start)); err == nil {
		t.month.used = used
	} else {
		t.logger.Warn("Failed to load monthly budget", zap.Error(err))
	}

	t.logger.Info("Budget loaded",
		zap.String("scope", t.scope),
		zap.Int64("daily_used", t.day.used),
		zap.Int64("monthly_used", t.month.used),
	)
	return t
}

// Check reports whether a new backend call may proceed.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	if !t.day.exceeded() && !t.month.exceeded() {
		return nil
	}
	if t.action == ActionReject {
		return domain.ErrTokenBudgetExceeded
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("scope", t.scope),
		zap.Int64("daily_used", t.day.used),
		zap.Int64("daily_limit", t.day.limit),
		zap.Int64("monthly_used", t.month.used),
		zap.Int64("monthly_limit", t.month.limit),
	)
	return nil
}

// Record adds tokens spent by backend and persists them when a store is attached.
func (t *Tracker) Record(backend string, tokens int64) {
	if tokens <= 0 {
		return
	}

	t.mu.Lock()
	t.roll()
	t.day.used += tokens
	t.month.used += tokens
	dayKey, monthKey := t.dailyKey(t.day.start), t.monthlyKey(t.month.start)
	dayLeft, monthLeft := t.day.remaining(), t.month.remaining()
	store := t.store
	t.mu.Unlock()

	metrics.BudgetTokensSpent.WithLabelValues(backend).Add(float64(tokens))
	metrics.BudgetTokensRemaining.WithLabelValues("daily").Set(float64(dayLeft))
	metrics.BudgetTokensRemaining.WithLabelValues("monthly").Set(float64(monthLeft))

	if store == nil {
		return
	}

	// detached from the caller: the answer must not wait on the counter store
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := store.IncrBy(ctx, dayKey, tokens); err != nil {
		t.logger.Warn("Failed to persist daily budget", zap.String("key", dayKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthKey, tokens); err != nil {
		t.logger.Warn("Failed to persist monthly budget", zap.String("key", monthKey), zap.Error(err))
	}
}

// DailyLimit returns the daily cap (0 = unlimited).
func (t *Tracker) DailyLimit() int64 { return t.day.limit }

// MonthlyLimit returns the monthly cap (0 = unlimited).
func (t *Tracker) MonthlyLimit() int64 { return t.month.limit }

// DailyUsed returns tokens spent today.
func (t *Tracker) DailyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	return t.day.used
}

// MonthlyUsed returns tokens spent this month.
func (t *Tracker) MonthlyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	return t.month.used
}

// RemainingDaily returns tokens left today, -1 if unlimited.
func (t *Tracker) RemainingDaily() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	return t.day.remaining()
}

// RemainingMonthly returns tokens left this month, -1 if unlimited.
func (t *Tracker) RemainingMonthly() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	return t.month.remaining()
}

// roll zeroes a counter whose period has ended. Callers hold mu.
func (t *Tracker) roll() {
	day, month := t.periodStarts()
	if day.After(t.day.start) {
		t.day.start, t.day.used = day, 0
	}
	if month.After(t.month.start) {
		t.month.start, t.month.used = month, 0
	}
}

func (t *Tracker) periodStarts() (day, month time.Time) {
	now := t.now().UTC()
	day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, month
}

func (t *Tracker) dailyKey(day time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", domain.KeyPrefix, t.scope, day.Format(time.DateOnly))
}

func (t *Tracker) monthlyKey(month time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", domain.KeyPrefix, t.scope, month.Format("2006-01"))
}
