package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderID(t *testing.T) {
	t.Run("known provider", func(t *testing.T) {
		id, err := ParseProviderID("finnhub")
		require.NoError(t, err)
		assert.Equal(t, ProviderFinnhub, id)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := ParseProviderID("bloomberg")
		assert.Error(t, err)
	})
}

func TestLimitConfig_IsUnbounded(t *testing.T) {
	assert.True(t, LimitConfig{}.IsUnbounded())
	assert.False(t, LimitConfig{PerDay: IntPtr(10)}.IsUnbounded())
}

func TestLimitUsage_JSONMarshaling(t *testing.T) {
	usage := LimitUsage{UsedCount: 3}

	data, err := json.Marshal(usage)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_used_at")
	assert.Contains(t, string(data), `"used_count":3`)
}

func TestNewMonthlyStats(t *testing.T) {
	rows := []ProviderStat{
		{Month: "2024-05", Provider: ProviderFinnhub, Operation: OperationSearch, Selections: 4, Failures: 1},
		{Month: "2024-05", Provider: ProviderFinnhub, Operation: OperationNews, Selections: 2},
		{Month: "2024-05", Provider: ProviderFMP, Operation: OperationInfo, Selections: 7, Failures: 3},
	}

	stats := NewMonthlyStats("2024-05", rows)

	assert.Equal(t, "2024-05", stats.Month)
	require.Len(t, stats.Providers, 2)

	finnhub := stats.Providers[ProviderFinnhub]
	assert.Equal(t, int64(6), finnhub.Selections)
	assert.Equal(t, int64(1), finnhub.Failures)
	assert.Equal(t, OperationCounters{Selections: 4, Failures: 1}, finnhub.Operations[OperationSearch])

	fmp := stats.Providers[ProviderFMP]
	assert.Equal(t, int64(7), fmp.Selections)
	assert.Equal(t, int64(3), fmp.Failures)
}

func TestMonthOf(t *testing.T) {
	ts := time.Date(2024, 12, 31, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, "2025-01", MonthOf(ts))
}

func TestValidateMonth(t *testing.T) {
	tests := []struct {
		month   string
		wantErr bool
	}{
		{"2024-05", false},
		{"2024-5", true},
		{"24-05", true},
		{"2024-13", true},
		{"2024-05-01", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.month, func(t *testing.T) {
			err := ValidateMonth(tt.month)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPriorityTable_Rank(t *testing.T) {
	table := PriorityTable{ProviderFinnhub: 1, ProviderFMP: 2}

	assert.Equal(t, 1, table.Rank(ProviderFinnhub))
	assert.Equal(t, 2, table.Rank(ProviderFMP))
	assert.Equal(t, math.MaxInt, table.Rank(ProviderTiingo))
}
