// Package insight defines the validated trend analysis produced for a
// dashboard metric series.
package insight

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Trend is the direction of a series.
type Trend string

const (
	TrendUpward   Trend = "upward"
	TrendDownward Trend = "downward"
	TrendStable   Trend = "stable"
)

// Valid reports whether t is one of the three known trends.
func (t Trend) Valid() bool {
	switch t {
	case TrendUpward, TrendDownward, TrendStable:
		return true
	}
	return false
}

var percentagePattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?%$`)

// ValidPercentage reports whether s looks like "+12.5%", "-3%" or "0%".
func ValidPercentage(s string) bool {
	return percentagePattern.MatchString(s)
}

// FieldKind describes the JSON shape of a result field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindStringList
)

// Field describes one required member of the model's JSON reply.
type Field struct {
	Name        string
	Kind        FieldKind
	Enum        []string
	Pattern     string
	Description string
}

// Fields is the complete set of members a reply must contain, in order.
// The prompt template, the response schema and the parser all read it.
var Fields = []Field{
	{Name: "trend", Kind: KindString, Enum: []string{string(TrendUpward), string(TrendDownward), string(TrendStable)},
		Description: "overall direction of the series"},
	{Name: "percentageChange", Kind: KindString, Pattern: percentagePattern.String(),
		Description: `signed percentage change over the period, e.g. "+12.5%"`},
	{Name: "analysis", Kind: KindString,
		Description: "short narrative analysis of the observed values"},
	{Name: "prediction", Kind: KindString,
		Description: "narrative forecast for the coming months"},
	{Name: "insights", Kind: KindStringList,
		Description: "key observations, at least one"},
	{Name: "recommendations", Kind: KindStringList,
		Description: "actionable recommendations for barangay staff, at least one"},
}

// FieldNames returns the names in Fields.
func FieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// Result is a validated analysis of one metric series.
type Result struct {
	Trend            Trend    `json:"trend"`
	PercentageChange string   `json:"percentageChange"`
	Analysis         string   `json:"analysis"`
	Prediction       string   `json:"prediction"`
	Insights         []string `json:"insights"`
	Recommendations  []string `json:"recommendations"`
}

// FieldError names the member that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks every field of r.
func (r *Result) Validate() error {
	if !r.Trend.Valid() {
		return &FieldError{Field: "trend", Reason: fmt.Sprintf("%q is not one of upward, downward, stable", r.Trend)}
	}
	if !ValidPercentage(r.PercentageChange) {
		return &FieldError{Field: "percentageChange", Reason: fmt.Sprintf("%q is not a percentage", r.PercentageChange)}
	}
	if strings.TrimSpace(r.Analysis) == "" {
		return &FieldError{Field: "analysis", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.Prediction) == "" {
		return &FieldError{Field: "prediction", Reason: "must not be empty"}
	}
	if err := validateList("insights", r.Insights); err != nil {
		return err
	}
	return validateList("recommendations", r.Recommendations)
}

func validateList(name string, items []string) error {
	if len(items) == 0 {
		return &FieldError{Field: name, Reason: "must contain at least one entry"}
	}
	for i, s := range items {
		if strings.TrimSpace(s) == "" {
			return &FieldError{Field: name, Reason: fmt.Sprintf("entry %d is blank", i)}
		}
	}
	return nil
}

// Point is one month of a series as sent to the model.
type Point struct {
	Month          int      `json:"month"`
	Value          *float64 `json:"value"`
	PredictedValue *float64 `json:"predictedValue"`
}

// Snapshot is the latest accepted result for a metric type.
type Snapshot struct {
	MetricType  string    `json:"metricType"`
	Result      Result    `json:"result"`
	GeneratedAt time.Time `json:"generatedAt"`
}
