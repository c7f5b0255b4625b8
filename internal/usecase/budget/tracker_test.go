package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	incErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]int64)}
}

func (m *memStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incErr != nil {
		return m.incErr
	}
	m.data[key] += val
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTracker(daily, monthly int64, action Action, c *clock) *Tracker {
	return New("test", daily, monthly, action, zap.NewNop()).WithClock(c.Now)
}

var oct15 = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"reject": ActionReject, "warn": ActionWarn, "": ActionWarn, "bogus": ActionWarn} {
		if got := ParseAction(in); got != want {
			t.Errorf("ParseAction(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTracker_RejectsWhenDailySpent(t *testing.T) {
	tr := newTracker(100, 0, ActionReject, &clock{now: oct15})
	tr.Record(BackendEmbedding, 60)

	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("below limit: %v", err)
	}

	tr.Record(BackendGeneration, 40)
	if err := tr.Check(context.Background()); !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Fatalf("expected ErrTokenBudgetExceeded, got %v", err)
	}
}

func TestTracker_RejectsWhenMonthlySpent(t *testing.T) {
	tr := newTracker(0, 500, ActionReject, &clock{now: oct15})
	tr.Record(BackendGeneration, 500)

	if err := tr.Check(context.Background()); !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Fatalf("expected ErrTokenBudgetExceeded, got %v", err)
	}
}

func TestTracker_WarnLetsRequestsThrough(t *testing.T) {
	tr := newTracker(100, 0, ActionWarn, &clock{now: oct15})
	tr.Record(BackendEmbedding, 200)

	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("warn action must not fail, got %v", err)
	}
}

func TestTracker_ZeroLimitsAreUnlimited(t *testing.T) {
	tr := newTracker(0, 0, ActionReject, &clock{now: oct15})
	tr.Record(BackendEmbedding, 1<<40)

	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("unlimited budget refused: %v", err)
	}
	if tr.RemainingDaily() != -1 || tr.RemainingMonthly() != -1 {
		t.Errorf("remaining = %d/%d, want -1/-1", tr.RemainingDaily(), tr.RemainingMonthly())
	}
}

func TestTracker_RemainingNeverNegative(t *testing.T) {
	tr := newTracker(1000, 10000, ActionWarn, &clock{now: oct15})
	tr.Record(BackendEmbedding, 300)

	if tr.RemainingDaily() != 700 {
		t.Errorf("daily remaining = %d, want 700", tr.RemainingDaily())
	}
	if tr.RemainingMonthly() != 9700 {
		t.Errorf("monthly remaining = %d, want 9700", tr.RemainingMonthly())
	}

	tr.Record(BackendGeneration, 5000)
	if tr.RemainingDaily() != 0 {
		t.Errorf("daily remaining = %d, want 0", tr.RemainingDaily())
	}
}

func TestTracker_IgnoresNonPositiveSpend(t *testing.T) {
	tr := newTracker(100, 0, ActionReject, &clock{now: oct15})
	tr.Record(BackendEmbedding, 0)
	tr.Record(BackendEmbedding, -5)

	if tr.DailyUsed() != 0 {
		t.Errorf("daily used = %d, want 0", tr.DailyUsed())
	}
}

func TestTracker_DayRollover(t *testing.T) {
	c := &clock{now: oct15}
	tr := newTracker(100, 1000, ActionReject, c)
	tr.Record(BackendEmbedding, 100)

	c.Set(oct15.Add(24 * time.Hour))

	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("new day should reset the daily counter: %v", err)
	}
	if tr.DailyUsed() != 0 {
		t.Errorf("daily used = %d, want 0", tr.DailyUsed())
	}
	if tr.MonthlyUsed() != 100 {
		t.Errorf("monthly used = %d, want 100", tr.MonthlyUsed())
	}
}

func TestTracker_MonthRollover(t *testing.T) {
	c := &clock{now: oct15}
	tr := newTracker(0, 100, ActionReject, c)
	tr.Record(BackendGeneration, 100)

	c.Set(time.Date(2026, 11, 1, 0, 0, 1, 0, time.UTC))

	if tr.MonthlyUsed() != 0 {
		t.Errorf("monthly used = %d, want 0", tr.MonthlyUsed())
	}
	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("new month should reset the monthly counter: %v", err)
	}
}

func TestTracker_WithStoreLoadsCurrentPeriod(t *testing.T) {
	store := newMemStore()
	store.data["abai:budget:test:daily:2026-10-15"] = 300
	store.data["abai:budget:test:monthly:2026-10"] = 5000
	store.data["abai:budget:test:daily:2026-10-14"] = 999

	tr := newTracker(1000, 10000, ActionReject, &clock{now: oct15}).WithStore(context.Background(), store)

	if tr.DailyUsed() != 300 {
		t.Errorf("daily used = %d, want 300", tr.DailyUsed())
	}
	if tr.MonthlyUsed() != 5000 {
		t.Errorf("monthly used = %d, want 5000", tr.MonthlyUsed())
	}
}

func TestTracker_WithStoreLoadErrorStartsAtZero(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")

	tr := newTracker(1000, 10000, ActionReject, &clock{now: oct15}).WithStore(context.Background(), store)

	if tr.DailyUsed() != 0 || tr.MonthlyUsed() != 0 {
		t.Errorf("used = %d/%d, want 0/0", tr.DailyUsed(), tr.MonthlyUsed())
	}
}

func TestTracker_RecordPersists(t *testing.T) {
	store := newMemStore()
	tr := newTracker(1000, 10000, ActionWarn, &clock{now: oct15}).WithStore(context.Background(), store)

	tr.Record(BackendEmbedding, 42)
	tr.Record(BackendGeneration, 8)

	if got := store.data["abai:budget:test:daily:2026-10-15"]; got != 50 {
		t.Errorf("daily key = %d, want 50", got)
	}
	if got := store.data["abai:budget:test:monthly:2026-10"]; got != 50 {
		t.Errorf("monthly key = %d, want 50", got)
	}
}

func TestTracker_StoreWriteErrorKeepsMemoryCount(t *testing.T) {
	store := newMemStore()
	tr := newTracker(100, 0, ActionReject, &clock{now: oct15}).WithStore(context.Background(), store)
	store.incErr = errors.New("readonly replica")

	tr.Record(BackendEmbedding, 100)

	if tr.DailyUsed() != 100 {
		t.Errorf("daily used = %d, want 100", tr.DailyUsed())
	}
	if err := tr.Check(context.Background()); !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Fatalf("expected ErrTokenBudgetExceeded, got %v", err)
	}
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := newTracker(0, 0, ActionWarn, &clock{now: oct15})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(BackendEmbedding, 2)
		}()
	}
	wg.Wait()

	if tr.DailyUsed() != 100 {
		t.Errorf("daily used = %d, want 100", tr.DailyUsed())
	}
}
