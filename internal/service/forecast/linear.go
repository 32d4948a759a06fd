// Package forecast fits a least-squares linear trend to a monthly series
// and projects it forward.
package forecast

import (
	"math"

	"github.com/shopspring/decimal"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/insight"
)

// StableBand is the absolute percentage change, inclusive, still reported
// as a stable trend.
var StableBand = decimal.NewFromInt(2)

// MaxHorizon caps how many months ahead a forecast may reach.
const MaxHorizon = 24

// Point is one observed or projected month.
type Point struct {
	Month int     `json:"month" validate:"min=1,max=12"`
	Value float64 `json:"value"`
}

// Forecast is the fitted line over the input and its projection.
type Forecast struct {
	Fitted           []Point       `json:"fitted"`
	Predictions      []Point       `json:"predictions"`
	Slope            float64       `json:"slope"`
	Trend            insight.Trend `json:"trend"`
	PercentageChange string        `json:"percentageChange"`
}

// Linear fits y = a + b*x over points, x being the month, and projects
// horizon further months. Months past December wrap to January while x
// keeps increasing. Values are rounded to two decimals and projections
// are clamped at zero. Values too large to fit without overflowing are
// rejected as an invalid request.
func Linear(points []Point, horizon int) (*Forecast, error) {
	if len(points) == 0 {
		return nil, apperrors.NewInvalidRequestError("at least one data point is required")
	}
	if horizon < 0 || horizon > MaxHorizon {
		return nil, apperrors.NewInvalidRequestError("horizon out of range").
			WithDetail("max", MaxHorizon)
	}

	intercept, slope := fit(points)
	if !finite(intercept, slope) {
		return nil, errValuesOutOfRange()
	}
	at := func(x float64) float64 { return intercept + slope*x }

	out := &Forecast{
		Fitted:      make([]Point, len(points)),
		Predictions: make([]Point, 0, horizon),
		Slope:       round(slope, 4),
	}
	for i, p := range points {
		v := at(float64(p.Month))
		if !finite(v) {
			return nil, errValuesOutOfRange()
		}
		out.Fitted[i] = Point{Month: p.Month, Value: round(v, 2)}
	}

	last := points[len(points)-1].Month
	for i := 1; i <= horizon; i++ {
		x := last + i
		v := at(float64(x))
		if !finite(v) {
			return nil, errValuesOutOfRange()
		}
		if v < 0 {
			v = 0
		}
		out.Predictions = append(out.Predictions, Point{Month: (x-1)%12 + 1, Value: round(v, 2)})
	}

	first := at(float64(points[0].Month))
	end := at(float64(last))
	pct := percentChange(first, end)
	out.Trend = classify(pct)
	out.PercentageChange = FormatPercentage(pct)
	return out, nil
}

// fit returns the least-squares intercept and slope. A single point, or
// points all in one month, give a flat line through the mean.
func fit(points []Point) (float64, float64) {
	n := float64(len(points))
	var sx, sy, sxx, sxy float64
	for _, p := range points {
		x := float64(p.Month)
		sx += x
		sy += p.Value
		sxx += x * x
		sxy += x * p.Value
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return sy / n, 0
	}
	slope := (n*sxy - sx*sy) / denom
	return (sy - slope*sx) / n, slope
}

func percentChange(from, to float64) decimal.Decimal {
	f := decimal.NewFromFloat(from)
	t := decimal.NewFromFloat(to)
	if f.IsZero() {
		switch {
		case t.IsPositive():
			return decimal.NewFromInt(100)
		case t.IsNegative():
			return decimal.NewFromInt(-100)
		default:
			return decimal.Zero
		}
	}
	return t.Sub(f).Div(f.Abs()).Mul(decimal.NewFromInt(100))
}

func classify(pct decimal.Decimal) insight.Trend {
	switch {
	case pct.GreaterThan(StableBand):
		return insight.TrendUpward
	case pct.LessThan(StableBand.Neg()):
		return insight.TrendDownward
	default:
		return insight.TrendStable
	}
}

// FormatPercentage renders pct with one decimal and an explicit sign, for
// example "+12.5%", "-3%" or "0%".
func FormatPercentage(pct decimal.Decimal) string {
	r := pct.Round(1)
	if r.IsZero() {
		return "0%"
	}
	if r.IsPositive() {
		return "+" + r.String() + "%"
	}
	return r.String() + "%"
}

func errValuesOutOfRange() error {
	return apperrors.NewInvalidRequestError("values out of range")
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
