package forecast

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/insight"
)

func TestLinearPerfectLine(t *testing.T) {
	points := []Point{{1, 10}, {2, 20}, {3, 30}, {4, 40}}

	f, err := Linear(points, 2)
	require.NoError(t, err)

	assert.Equal(t, points, f.Fitted)
	assert.Equal(t, []Point{{5, 50}, {6, 60}}, f.Predictions)
	assert.Equal(t, 10.0, f.Slope)
	assert.Equal(t, insight.TrendUpward, f.Trend)
	assert.Equal(t, "+300%", f.PercentageChange)
}

func TestLinearWrapsIntoNextYear(t *testing.T) {
	f, err := Linear([]Point{{11, 5}, {12, 6}}, 2)
	require.NoError(t, err)
	assert.Equal(t, []Point{{1, 7}, {2, 8}}, f.Predictions)
}

func TestLinearTrendClassification(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		trend  insight.Trend
		pct    string
	}{
		{"flat", []Point{{1, 10}, {2, 10}}, insight.TrendStable, "0%"},
		{"inside band", []Point{{1, 100}, {2, 102}}, insight.TrendStable, "+2%"},
		{"just above band", []Point{{1, 100}, {2, 102.5}}, insight.TrendUpward, "+2.5%"},
		{"fractional", []Point{{1, 80}, {2, 90}}, insight.TrendUpward, "+12.5%"},
		{"falling", []Point{{1, 100}, {2, 90}}, insight.TrendDownward, "-10%"},
		{"from zero", []Point{{1, 0}, {2, 4}}, insight.TrendUpward, "+100%"},
		{"single point", []Point{{6, 42}}, insight.TrendStable, "0%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Linear(tt.points, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.trend, f.Trend)
			assert.Equal(t, tt.pct, f.PercentageChange)
			assert.True(t, insight.ValidPercentage(f.PercentageChange))
			assert.Empty(t, f.Predictions)
		})
	}
}

func TestLinearClampsNegativeProjections(t *testing.T) {
	f, err := Linear([]Point{{1, 10}, {2, 5}}, 3)
	require.NoError(t, err)

	for _, p := range f.Predictions {
		assert.GreaterOrEqual(t, p.Value, 0.0)
	}
	assert.Equal(t, 0.0, f.Predictions[2].Value)
}

func TestLinearRejectsBadInput(t *testing.T) {
	_, err := Linear(nil, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = Linear([]Point{{1, 1}}, MaxHorizon+1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = Linear([]Point{{1, 1}}, -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestLinearRejectsOverflowingValues(t *testing.T) {
	tests := []struct {
		name    string
		points  []Point
		horizon int
	}{
		{"sums overflow", []Point{{1, 1e308}, {12, 1e308}}, 1},
		{"slope overflows", []Point{{1, -1.5e308}, {2, 1.5e308}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = Linear(tt.points, tt.horizon) })
			assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
		})
	}
}

func TestLinearLargeFiniteValues(t *testing.T) {
	f, err := Linear([]Point{{1, 1e12}, {2, 1e12}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []Point{{3, 1e12}}, f.Predictions)
	assert.Equal(t, insight.TrendStable, f.Trend)
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "+8.3%", FormatPercentage(decimal.RequireFromString("8.33")))
	assert.Equal(t, "-0.1%", FormatPercentage(decimal.RequireFromString("-0.05")))
	assert.Equal(t, "0%", FormatPercentage(decimal.RequireFromString("0.04")))
}
