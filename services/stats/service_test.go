package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories/memory"
	"github.com/upb/market-gateway/services"
)

type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) Increment(ctx context.Context, month string, provider models.ProviderID, operation models.Operation, selections, failures int64) error {
	args := m.Called(ctx, month, provider, operation, selections, failures)
	return args.Error(0)
}

func (m *MockStatsRepository) ListMonth(ctx context.Context, month string) ([]models.ProviderStat, error) {
	args := m.Called(ctx, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProviderStat), args.Error(1)
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 31, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
}

func TestService_RecordAndMonthly(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStatsRepository(), nil, zap.NewNop()).WithClock(fixedClock)

	svc.RecordSelection(ctx, models.OperationNews, models.ProviderMarketaux)
	svc.RecordSelection(ctx, models.OperationNews, models.ProviderMarketaux)
	svc.RecordFailure(ctx, models.OperationNews, models.ProviderMarketaux)
	svc.RecordSelection(ctx, models.OperationInfo, models.ProviderMarketaux)
	svc.RecordSelection(ctx, models.OperationSearch, models.ProviderFinnhub)

	// 23:30 at UTC-5 is already April in UTC
	assert.Equal(t, "2024-04", svc.CurrentMonth())

	stats, err := svc.Monthly(ctx, "2024-04")
	require.NoError(t, err)
	require.Len(t, stats.Providers, 2)

	marketaux := stats.Providers[models.ProviderMarketaux]
	assert.Equal(t, int64(3), marketaux.Selections)
	assert.Equal(t, int64(1), marketaux.Failures)
	assert.Equal(t, models.OperationCounters{Selections: 2, Failures: 1}, marketaux.Operations[models.OperationNews])

	empty, err := svc.Monthly(ctx, "2024-03")
	require.NoError(t, err)
	assert.Empty(t, empty.Providers)
}

func TestService_RecordErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	repo := new(MockStatsRepository)
	repo.On("Increment", ctx, "2024-04", models.ProviderFMP, models.OperationInfo, int64(1), int64(0)).
		Return(errors.New("store down"))

	svc := NewService(repo, nil, zap.NewNop()).WithClock(fixedClock)
	assert.NotPanics(t, func() {
		svc.RecordSelection(ctx, models.OperationInfo, models.ProviderFMP)
	})
	repo.AssertExpectations(t)
}

func TestService_Monthly_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid month", func(t *testing.T) {
		svc := NewService(new(MockStatsRepository), nil, zap.NewNop())
		for _, month := range []string{"2024-4", "2024-13", "april", ""} {
			_, err := svc.Monthly(ctx, month)
			assert.True(t, services.IsValidationError(err), month)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		repo := new(MockStatsRepository)
		repo.On("ListMonth", ctx, "2024-01").Return(nil, errors.New("store down"))

		_, err := NewService(repo, nil, zap.NewNop()).Monthly(ctx, "2024-01")
		assert.True(t, services.IsInternalError(err))
	})
}
