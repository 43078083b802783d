package models

import (
	"fmt"
	"regexp"
	"time"
)

// MonthLayout is the key format of monthly statistics
const MonthLayout = "2006-01"

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ProviderStat is one counter row of the monthly statistics
type ProviderStat struct {
	Month      string     `json:"month" db:"month"`
	Provider   ProviderID `json:"provider" db:"provider"`
	Operation  Operation  `json:"operation" db:"operation"`
	Selections int64      `json:"selections" db:"selections"`
	Failures   int64      `json:"failures" db:"failures"`
}

// TableName returns the table name for the ProviderStat model
func (ProviderStat) TableName() string {
	return "provider_stats"
}

// OperationCounters holds counters of one provider for one operation
type OperationCounters struct {
	Selections int64 `json:"selections"`
	Failures   int64 `json:"failures"`
}

// ProviderSummary aggregates counters of one provider across operations
type ProviderSummary struct {
	Selections int64                           `json:"selections"`
	Failures   int64                           `json:"failures"`
	Operations map[Operation]OperationCounters `json:"operations"`
}

// MonthlyStats is the per-provider view of a month
type MonthlyStats struct {
	Month     string                         `json:"month"`
	Providers map[ProviderID]ProviderSummary `json:"providers"`
}

// NewMonthlyStats folds counter rows into a per-provider summary
func NewMonthlyStats(month string, rows []ProviderStat) MonthlyStats {
	stats := MonthlyStats{
		Month:     month,
		Providers: make(map[ProviderID]ProviderSummary),
	}
	for _, row := range rows {
		summary, ok := stats.Providers[row.Provider]
		if !ok {
			summary = ProviderSummary{Operations: make(map[Operation]OperationCounters)}
		}
		summary.Selections += row.Selections
		summary.Failures += row.Failures
		counters := summary.Operations[row.Operation]
		counters.Selections += row.Selections
		counters.Failures += row.Failures
		summary.Operations[row.Operation] = counters
		stats.Providers[row.Provider] = summary
	}
	return stats
}

// MonthOf returns the UTC month key of t
func MonthOf(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// ValidateMonth checks a yyyy-MM month key
func ValidateMonth(month string) error {
	if !monthPattern.MatchString(month) {
		return fmt.Errorf("month must match yyyy-MM: %q", month)
	}
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return fmt.Errorf("invalid month %q: %w", month, err)
	}
	return nil
}
