package quota

import (
	"math"
	"time"

	"github.com/upb/market-gateway/models"
)

// Unbounded is reported as remaining capacity when no granularity is configured.
const Unbounded = math.MaxInt

// Granularity is a quota window size
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityDay    Granularity = "day"
	GranularityMonth  Granularity = "month"
)

// ResetIfNeeded clears the shared counter when now falls in a different
// calendar month, day or minute than the last use, considering only the
// granularities configured in limits. Comparisons are in UTC.
func ResetIfNeeded(usage models.LimitUsage, limits models.LimitConfig, now time.Time) models.LimitUsage {
	if usage.LastUsedAt == nil {
		return usage
	}

	last := usage.LastUsedAt.UTC()
	now = now.UTC()

	crossed := (limits.PerMonth != nil && !sameMonth(last, now)) ||
		(limits.PerDay != nil && !sameDay(last, now)) ||
		(limits.PerMinute != nil && !sameMinute(last, now))
	if crossed {
		usage.UsedCount = 0
	}
	return usage
}

// CanUse reports whether one more call fits under every configured ceiling.
func CanUse(usage models.LimitUsage, limits models.LimitConfig, now time.Time) bool {
	usage = ResetIfNeeded(usage, limits, now)
	for _, limit := range []*int{limits.PerMinute, limits.PerDay, limits.PerMonth} {
		if limit != nil && usage.UsedCount >= *limit {
			return false
		}
	}
	return true
}

// Increment reserves one call. The reservation is never refunded.
func Increment(usage models.LimitUsage, limits models.LimitConfig, now time.Time) models.LimitUsage {
	usage = ResetIfNeeded(usage, limits, now)
	stamp := now.UTC()
	return models.LimitUsage{
		LastUsedAt: &stamp,
		UsedCount:  usage.UsedCount + 1,
	}
}

// RemainingCapacity returns the calls left in the finest configured window,
// checked minute, then day, then month. It never goes below zero.
func RemainingCapacity(usage models.LimitUsage, limits models.LimitConfig, now time.Time) int {
	usage = ResetIfNeeded(usage, limits, now)

	_, limit, ok := FinestWindow(limits)
	if !ok {
		return Unbounded
	}
	if remaining := limit - usage.UsedCount; remaining > 0 {
		return remaining
	}
	return 0
}

// FinestWindow returns the narrowest configured granularity and its limit
func FinestWindow(limits models.LimitConfig) (Granularity, int, bool) {
	switch {
	case limits.PerMinute != nil:
		return GranularityMinute, *limits.PerMinute, true
	case limits.PerDay != nil:
		return GranularityDay, *limits.PerDay, true
	case limits.PerMonth != nil:
		return GranularityMonth, *limits.PerMonth, true
	}
	return "", 0, false
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func sameDay(a, b time.Time) bool {
	return sameMonth(a, b) && a.Day() == b.Day()
}

func sameMinute(a, b time.Time) bool {
	return sameDay(a, b) && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}
