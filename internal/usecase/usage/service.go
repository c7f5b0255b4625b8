// Package usage reports embedding token consumption against the configured budget.
package usage

import (
	"context"
	"time"
)

// Period selects the reporting window.
type Period string

const (
	// PeriodDay is the current UTC day.
	PeriodDay Period = "day"
	// PeriodMonth is the current UTC month.
	PeriodMonth Period = "month"
	// PeriodTotal reports the monthly counters without window bounds.
	PeriodTotal Period = "total"
)

// ParsePeriod maps a query value to a Period; unknown values fall back to PeriodMonth.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodDay, PeriodTotal:
		return Period(s)
	default:
		return PeriodMonth
	}
}

// Report is the usage view for one period. Times are zero for PeriodTotal.
type Report struct {
	Period          Period     `json:"period"`
	PeriodStart     *time.Time `json:"period_start,omitempty"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`
	TokensUsed      int64      `json:"tokens_used"`
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	Exhausted       bool       `json:"exhausted"`
}

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: time.Now}
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := s.now().UTC()
	r := Report{Period: period}

	switch period {
	case PeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end := start.Add(24 * time.Hour)
		r.PeriodStart, r.PeriodEnd = &start, &end
		if s.br != nil {
			r.TokensLimit = s.br.DailyLimit()
			r.TokensUsed = s.br.DailyUsed()
			r.TokensRemaining = s.br.RemainingDaily()
		}
	default:
		if period != PeriodTotal {
			r.Period = PeriodMonth
			start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, 0)
			r.PeriodStart, r.PeriodEnd = &start, &end
		}
		if s.br != nil {
			r.TokensLimit = s.br.MonthlyLimit()
			r.TokensUsed = s.br.MonthlyUsed()
			r.TokensRemaining = s.br.RemainingMonthly()
		}
	}

	r.Exhausted = r.TokensLimit > 0 && r.TokensRemaining <= 0
	return r
}
