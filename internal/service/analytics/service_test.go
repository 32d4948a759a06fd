package analytics

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/service/forecast"
)

// Mock implementations

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) MonthlyValues(ctx context.Context, year int, types []metric.Type) ([]metric.Observation, error) {
	args := m.Called(ctx, year, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metric.Observation), args.Error(1)
}

func (m *MockRepository) AvailableYears(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockRepository) Upsert(ctx context.Context, obs []metric.Observation) error {
	args := m.Called(ctx, obs)
	return args.Error(0)
}

func TestMonthlyRequiresMetricBeforeRepository(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil)

	for _, raw := range []string{"", "   "} {
		_, err := svc.Monthly(context.Background(), MonthlyRequest{Metric: raw, Year: 2024})
		assert.ErrorIs(t, err, errors.ErrInvalidRequest)
	}
	repo.AssertNotCalled(t, "MonthlyValues", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "AvailableYears", mock.Anything)
}

func TestMonthlyRejectsBadInput(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil)

	_, err := svc.Monthly(context.Background(), MonthlyRequest{Metric: "weather", Year: 2024})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	_, err = svc.Monthly(context.Background(), MonthlyRequest{Metric: "requests", Year: 0})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	repo.AssertExpectations(t)
}

func TestMonthlyBuildsRecordsWithPredictions(t *testing.T) {
	repo := new(MockRepository)
	repo.On("MonthlyValues", mock.Anything, 2024, []metric.Type{metric.TypeRequests}).Return([]metric.Observation{
		{MetricType: metric.TypeRequests, Year: 2024, Month: 2, Value: 20},
		{MetricType: metric.TypeRequests, Year: 2024, Month: 1, Value: 10},
		{MetricType: metric.TypeRequests, Year: 2024, Month: 3, Value: 30},
	}, nil)
	repo.On("AvailableYears", mock.Anything).Return([]int{2023, 2024}, nil)

	svc := NewService(repo, nil)
	res, err := svc.Monthly(context.Background(), MonthlyRequest{Metric: " Requests ", Year: 2024})
	require.NoError(t, err)

	assert.Equal(t, "requests", res.Metric)
	assert.Equal(t, []int{2023, 2024}, res.AvailableYears)
	require.Len(t, res.Records, 12, "observed months plus projections to December")

	assert.Equal(t, 1, res.Records[0].Month)
	assert.Equal(t, 10.0, res.Records[0].Metrics["requests"])
	assert.Equal(t, 10.0, res.Records[0].Predicted["requests"])

	dec := res.Records[11]
	assert.Equal(t, 12, dec.Month)
	assert.Empty(t, dec.Metrics)
	assert.Equal(t, 120.0, dec.Predicted["requests"])
	repo.AssertExpectations(t)
}

func TestMonthlyAllMetrics(t *testing.T) {
	repo := new(MockRepository)
	repo.On("MonthlyValues", mock.Anything, 2024, metric.Types()).Return([]metric.Observation{
		{MetricType: metric.TypeRequests, Year: 2024, Month: 12, Value: 5},
		{MetricType: metric.TypeReports, Year: 2024, Month: 12, Value: 7},
	}, nil)
	repo.On("AvailableYears", mock.Anything).Return([]int{2024}, nil)

	svc := NewService(repo, nil)
	res, err := svc.Monthly(context.Background(), MonthlyRequest{Metric: MetricAll, Year: 2024})
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, map[string]float64{"requests": 5, "reports": 7}, res.Records[0].Metrics)
	assert.Equal(t, map[string]float64{"requests": 5, "reports": 7}, res.Records[0].Predicted)
}

func TestMonthlyStorageFailureIsTransient(t *testing.T) {
	repo := new(MockRepository)
	repo.On("MonthlyValues", mock.Anything, 2024, mock.Anything).Return(nil, fmt.Errorf("connection refused"))

	svc := NewService(repo, nil)
	_, err := svc.Monthly(context.Background(), MonthlyRequest{Metric: "requests", Year: 2024})

	assert.ErrorIs(t, err, errors.ErrTransientFetch)
	assert.True(t, errors.IsRetryable(err))
}

func TestPredict(t *testing.T) {
	svc := NewService(new(MockRepository), nil)

	f, err := svc.Predict(context.Background(), PredictionRequest{
		Data:    []forecast.Point{{Month: 2, Value: 20}, {Month: 1, Value: 10}},
		Horizon: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []forecast.Point{{Month: 3, Value: 30}}, f.Predictions)
}

func TestPredictRejectsEmptyData(t *testing.T) {
	svc := NewService(new(MockRepository), nil)

	for name, data := range map[string][]forecast.Point{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Predict(context.Background(), PredictionRequest{Data: data})
			assert.ErrorIs(t, err, errors.ErrInvalidRequest)
		})
	}

	_, err := svc.Predict(context.Background(), PredictionRequest{Data: []forecast.Point{{Month: 13, Value: 1}}})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestPredictRejectsOverflowingValues(t *testing.T) {
	svc := NewService(new(MockRepository), nil)

	_, err := svc.Predict(context.Background(), PredictionRequest{
		Data: []forecast.Point{{Month: 1, Value: 1e308}, {Month: 12, Value: 1e308}},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestMonthlySkipsPredictionsThatOverflow(t *testing.T) {
	repo := new(MockRepository)
	repo.On("MonthlyValues", mock.Anything, 2024, []metric.Type{metric.TypeRequests}).Return([]metric.Observation{
		{MetricType: metric.TypeRequests, Year: 2024, Month: 1, Value: 1e308},
		{MetricType: metric.TypeRequests, Year: 2024, Month: 12, Value: 1e308},
	}, nil)
	repo.On("AvailableYears", mock.Anything).Return([]int{2024}, nil)

	svc := NewService(repo, nil)
	res, err := svc.Monthly(context.Background(), MonthlyRequest{Metric: "requests", Year: 2024})
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, 1e308, res.Records[0].Metrics["requests"])
	assert.Nil(t, res.Records[0].Predicted)
}

func TestImport(t *testing.T) {
	obs := []metric.Observation{{MetricType: metric.TypeResidents, Year: 2024, Month: 1, Value: 1200}}

	repo := new(MockRepository)
	repo.On("Upsert", mock.Anything, obs).Return(nil).Once()

	svc := NewService(repo, nil)
	n, err := svc.Import(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	repo.AssertExpectations(t)
}

func TestImportValidates(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil)

	_, err := svc.Import(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	_, err = svc.Import(context.Background(), []metric.Observation{{MetricType: "weather", Year: 2024, Month: 1}})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	_, err = svc.Import(context.Background(), []metric.Observation{{MetricType: metric.TypeReports, Year: 2024, Month: 0}})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}
