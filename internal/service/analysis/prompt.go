// Package analysis turns a dashboard metric series into a validated trend
// analysis using a generative model.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/insight"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/llm"
)

const systemInstruction = "You are a data analyst for a barangay records office. " +
	"You explain monthly service statistics to local government staff in plain language."

// Prompt is everything sent to the model for one analysis.
type Prompt struct {
	System string
	Text   string
	Schema llm.Schema
	Series []insight.Point
}

// Project keeps only the month, the observed value and the forecast value
// of metricType from each chart point.
func Project(metricType metric.Type, series []metric.SeriesPoint) []insight.Point {
	out := make([]insight.Point, 0, len(series))
	for _, p := range series {
		pt := insight.Point{Month: p.Month()}
		if v, ok := p[string(metricType)]; ok {
			pt.Value = &v
		}
		if v, ok := p[metricType.PredictedKey()]; ok {
			pt.PredictedValue = &v
		}
		out = append(out, pt)
	}
	return out
}

// BuildPrompt renders the analysis prompt for series. An empty series is
// an INVALID_REQUEST.
func BuildPrompt(metricType metric.Type, series []metric.SeriesPoint) (Prompt, error) {
	if len(series) == 0 {
		return Prompt{}, apperrors.NewInvalidRequestError("no data to analyse for " + string(metricType))
	}

	points := Project(metricType, series)
	data, err := json.Marshal(points)
	if err != nil {
		return Prompt{}, fmt.Errorf("encoding series: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the monthly %q data below. Each entry has the month number (1-12), "+
		"the observed value and the forecast value; either value may be null.\n\n", metricType)
	b.WriteString("Data:\n")
	b.Write(data)
	b.WriteString("\n\nRespond with a single JSON object inside a ```json code fence and nothing else. ")
	fmt.Fprintf(&b, "The object must have exactly these %d fields:\n", len(insight.Fields))
	for _, f := range insight.Fields {
		fmt.Fprintf(&b, "- %q (%s): %s", f.Name, kindLabel(f), f.Description)
		if len(f.Enum) > 0 {
			fmt.Fprintf(&b, "; one of %s", quoteAll(f.Enum))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nExample:\n```json\n")
	b.WriteString(exampleReply)
	b.WriteString("\n```\n")

	return Prompt{
		System: systemInstruction,
		Text:   b.String(),
		Schema: ResponseSchema(),
		Series: points,
	}, nil
}

const exampleReply = `{
  "trend": "upward",
  "percentageChange": "+12.5%",
  "analysis": "Requests rose from 40 in January to 45 in June.",
  "prediction": "Volume should keep growing slowly through the next quarter.",
  "insights": ["March had the highest volume"],
  "recommendations": ["Schedule an extra clerk during the first week of each month"]
}`

func kindLabel(f insight.Field) string {
	if f.Kind == insight.KindStringList {
		return "array of strings"
	}
	return "string"
}

func quoteAll(vals []string) string {
	q := make([]string, len(vals))
	for i, v := range vals {
		q[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(q, ", ")
}

// ResponseSchema describes the reply object for providers that can
// constrain their output.
func ResponseSchema() llm.Schema {
	props := make(map[string]llm.Schema, len(insight.Fields))
	for _, f := range insight.Fields {
		s := llm.Schema{"description": f.Description}
		switch f.Kind {
		case insight.KindStringList:
			s["type"] = "array"
			s["items"] = llm.Schema{"type": "string"}
		default:
			s["type"] = "string"
		}
		if len(f.Enum) > 0 {
			s["enum"] = append([]string(nil), f.Enum...)
		}
		props[f.Name] = s
	}
	return llm.Schema{
		"type":       "object",
		"properties": props,
		"required":   insight.FieldNames(),
	}
}
