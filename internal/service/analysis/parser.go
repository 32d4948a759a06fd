package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/insight"
)

// ParseResponse extracts and validates the analysis object in a model
// reply. Everything before the first '{' and after the last '}' is
// ignored, which covers prose and code fences around the object. Failures
// are MALFORMED_RESPONSE errors whose reason tells apart a reply with no
// JSON, invalid JSON, missing fields and invalid field values.
func ParseResponse(raw string) (*insight.Result, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, apperrors.NewMalformedResponseError(apperrors.ReasonNoJSON, "no JSON found in response")
	}
	body := raw[start : end+1]

	var members map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &members); err != nil {
		return nil, apperrors.NewMalformedResponseError(apperrors.ReasonInvalidJSON, "response is not valid JSON").
			WithCause(err)
	}

	var missing []string
	for _, f := range insight.Fields {
		v, ok := members[f.Name]
		if !ok || string(v) == "null" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewIncompleteFieldsError(missing)
	}

	var r insight.Result
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		field := "unknown"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field = typeErr.Field
		}
		return nil, invalidField(field, "has the wrong type", err)
	}

	if err := r.Validate(); err != nil {
		var fe *insight.FieldError
		if errors.As(err, &fe) {
			return nil, invalidField(fe.Field, fe.Reason, err)
		}
		return nil, invalidField("unknown", err.Error(), err)
	}

	return &r, nil
}

func invalidField(field, reason string, cause error) *apperrors.AppError {
	return apperrors.NewMalformedResponseError(apperrors.ReasonInvalidField,
		fmt.Sprintf("invalid analysis field %s: %s", field, reason)).
		WithCause(cause).
		WithDetail("field", field)
}
