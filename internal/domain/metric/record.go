// Package metric holds the monthly time-series shapes shown on the portal
// dashboard.
package metric

import (
	"fmt"
	"sort"
	"strings"
)

// Type names a dashboard metric series.
type Type string

const (
	TypeRequests   Type = "requests"
	TypeReports    Type = "reports"
	TypeRecords    Type = "records"
	TypeHouseholds Type = "households"
	TypeBusinesses Type = "businesses"
	TypeResidents  Type = "residents"
)

// PredictedSuffix is appended to a metric name for its forecast value.
const PredictedSuffix = "Predicted"

var knownTypes = []Type{TypeRequests, TypeReports, TypeRecords, TypeHouseholds, TypeBusinesses, TypeResidents}

// Types returns every known metric type.
func Types() []Type {
	out := make([]Type, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// ParseType validates a metric type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range knownTypes {
		if t == k {
			return t, nil
		}
	}
	if t == "" {
		return "", fmt.Errorf("metric type is required")
	}
	return "", fmt.Errorf("unknown metric type %q", s)
}

func (t Type) String() string { return string(t) }

// PredictedKey is the chart key holding t's forecast value.
func (t Type) PredictedKey() string { return string(t) + PredictedSuffix }

// Observation is one stored monthly value of one metric.
type Observation struct {
	MetricType Type    `json:"metricType" validate:"required"`
	Year       int     `json:"year" validate:"required,min=1900,max=9999"`
	Month      int     `json:"month" validate:"required,min=1,max=12"`
	Value      float64 `json:"value" validate:"min=0"`
}

// Key identifies one record: a calendar month of a year.
type Key struct {
	Year  int
	Month int
}

// Record is one month of observed and predicted values.
type Record struct {
	Year      int                `json:"year"`
	Month     int                `json:"month"`
	Metrics   map[string]float64 `json:"metrics"`
	Predicted map[string]float64 `json:"predicted,omitempty"`
}

func (r Record) Key() Key { return Key{Year: r.Year, Month: r.Month} }

// Valid reports whether the record has a usable year and month.
func (r Record) Valid() bool {
	return r.Year > 0 && r.Month >= 1 && r.Month <= 12
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{Year: r.Year, Month: r.Month}
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	if r.Predicted != nil {
		out.Predicted = make(map[string]float64, len(r.Predicted))
		for k, v := range r.Predicted {
			out.Predicted[k] = v
		}
	}
	return out
}

// Value returns the observed value of t and whether it exists.
func (r Record) Value(t Type) (float64, bool) {
	v, ok := r.Metrics[string(t)]
	return v, ok
}

// PredictedValue returns the forecast value of t and whether it exists.
func (r Record) PredictedValue(t Type) (float64, bool) {
	v, ok := r.Predicted[string(t)]
	return v, ok
}

// SortByMonth orders records by year then month, in place.
func SortByMonth(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Year != records[j].Year {
			return records[i].Year < records[j].Year
		}
		return records[i].Month < records[j].Month
	})
}

// SeriesPoint is one chart point keyed by field name: "month", the metric
// name and the metric name with PredictedSuffix.
type SeriesPoint map[string]float64

// Month returns the point's month number.
func (p SeriesPoint) Month() int { return int(p["month"]) }

// Points flattens records into chart points, month ascending. Every metric
// and forecast value of a record lands in the same point.
func Points(records []Record) []SeriesPoint {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	SortByMonth(sorted)

	out := make([]SeriesPoint, 0, len(sorted))
	for _, r := range sorted {
		p := SeriesPoint{"month": float64(r.Month)}
		for k, v := range r.Metrics {
			p[k] = v
		}
		for k, v := range r.Predicted {
			p[k+PredictedSuffix] = v
		}
		out = append(out, p)
	}
	return out
}
